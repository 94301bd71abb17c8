// Package api implements the optional operator HTTP API for logix-uplink.
//
// Endpoints (all under /api/v1):
//   - GET  /health          liveness plus dependency checks
//   - GET  /metrics         runtime, pool and pass statistics
//   - GET  /uplink/status   configuration summary, scheduler state, last pass
//   - GET  /uplink/staging  paged staging rows, filterable by outcome
//   - POST /uplink/run      queue a manual pass (202, or 409 when refused)
//
// The API is read-mostly. The only write is the manual trigger, which is
// queued onto the scheduler goroutine, so it can never overlap a pass.
package api
