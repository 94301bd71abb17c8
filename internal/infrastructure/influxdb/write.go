package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the uplink.
const (
	MeasurementPass  = "uplink_pass"
	MeasurementBatch = "uplink_batch"
)

// PassMetrics summarises one submission pass.
type PassMetrics struct {
	Pending    int
	Batches    int
	Sent       int
	Retried    int
	Unresolved int
	Resolved   int
	RowsSent   int64
	Deleted    int64
	Duration   time.Duration
	Failed     bool
	At         time.Time
}

// BatchMetrics describes the outcome of one hourly batch.
type BatchMetrics struct {
	Outcome         string
	Rows            int
	Attempts        int
	DuplicateRounds int
	Deleted         int64
	Sent            int64
	At              time.Time
}

// RecordPass buffers a pass summary point.
func (r *Recorder) RecordPass(m PassMetrics) {
	if r.closed.Load() {
		return
	}
	r.writeAPI.WritePoint(passPoint(m))
}

// RecordBatch buffers one point for a batch outcome.
func (r *Recorder) RecordBatch(m BatchMetrics) {
	if r.closed.Load() {
		return
	}
	r.writeAPI.WritePoint(batchPoint(m))
}

// The target and site tags are added by the client as default tags.

func passPoint(m PassMetrics) *write.Point {
	status := "ok"
	if m.Failed {
		status = "failed"
	}
	return write.NewPoint(
		MeasurementPass,
		map[string]string{"status": status},
		map[string]interface{}{
			"pending":     int64(m.Pending),
			"batches":     int64(m.Batches),
			"sent":        int64(m.Sent),
			"retried":     int64(m.Retried),
			"unresolved":  int64(m.Unresolved),
			"resolved":    int64(m.Resolved),
			"rows_sent":   m.RowsSent,
			"deleted":     m.Deleted,
			"duration_ms": m.Duration.Milliseconds(),
		},
		pointTime(m.At),
	)
}

func batchPoint(m BatchMetrics) *write.Point {
	return write.NewPoint(
		MeasurementBatch,
		map[string]string{"outcome": m.Outcome},
		map[string]interface{}{
			"rows":             int64(m.Rows),
			"attempts":         int64(m.Attempts),
			"duplicate_rounds": int64(m.DuplicateRounds),
			"deleted":          m.Deleted,
			"sent":             m.Sent,
		},
		pointTime(m.At),
	)
}

func pointTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
