// Package uplink delivers staged readings to the regulator API.
//
// A pass fetches every eligible staging row older than now, groups the
// rows into hourly batches and submits the batches one at a time. Each
// submission fetches a fresh credential, signs the batch as an HS256
// JWT keyed by that credential, posts it and writes the outcome back to
// storage:
//
//   - accepted: the batch range is moved to the permanent table
//   - duplicate conflict: the reported timestamps are deleted, the range
//     is re-read from storage and resubmitted, up to the configured bound
//   - anything else: the range is annotated retry with the reason
//
// The Scheduler runs passes on a single goroutine, at most once per tick
// boundary, so no two passes ever touch the staging table concurrently.
package uplink
