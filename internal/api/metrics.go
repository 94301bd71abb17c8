package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/logix-uplink/internal/uplink"
)

// SystemMetrics represents the complete metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	Database      DatabaseMetrics `json:"database"`
	Scheduler     SchedulerStats  `json:"scheduler"`
	LastPass      *PassMetrics    `json:"last_pass,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	Dialect         string `json:"dialect,omitempty"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
	WaitCount       int64  `json:"wait_count"`
}

// SchedulerStats contains scheduler counters.
type SchedulerStats struct {
	Active bool `json:"active"`
	Passes int  `json:"passes"`
	InPass bool `json:"in_pass"`
}

// PassMetrics condenses the last pass report.
type PassMetrics struct {
	ID         string `json:"id"`
	FinishedAt string `json:"finished_at"`
	DurationMS int64  `json:"duration_ms"`
	Batches    int    `json:"batches"`
	Sent       int    `json:"sent"`
	Retried    int    `json:"retried"`
	Unresolved int    `json:"unresolved"`
	RowsSent   int64  `json:"rows_sent"`
	Failed     bool   `json:"failed"`
}

// handleMetrics returns runtime and pass statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	st := s.scheduler.Status()
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Scheduler: SchedulerStats{
			Active: st.Active,
			Passes: st.Passes,
			InPass: st.InPass,
		},
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			Dialect:         string(s.db.Dialect()),
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	if last, ok := s.passes.LastPass(); ok {
		metrics.LastPass = passMetrics(last)
	}

	writeJSON(w, http.StatusOK, metrics)
}

func passMetrics(r uplink.PassReport) *PassMetrics {
	return &PassMetrics{
		ID:         r.ID,
		FinishedAt: r.FinishedAt.Format(time.RFC3339),
		DurationMS: r.Duration().Milliseconds(),
		Batches:    len(r.Batches),
		Sent:       r.Sent,
		Retried:    r.Retried,
		Unresolved: r.Unresolved,
		RowsSent:   r.RowsSent,
		Failed:     r.Error != "",
	}
}
