package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/logix-uplink/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	// A pass produces one point per batch plus one summary, so small
	// batches flushed every few seconds keep the dashboards current.
	defaultBatchSize     = 50
	defaultFlushInterval = 10
)

// Tags identify the uplink instance. They are added to every point as
// InfluxDB default tags.
type Tags struct {
	Site   string
	Target string
}

// Logger receives asynchronous write failures.
type Logger interface {
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}

// Recorder writes pass and batch metrics for one uplink target.
//
// Writes never block a pass: points are buffered and flushed in the
// background, and failures are only logged.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	bucket   string
	closed   atomic.Bool

	mu     sync.RWMutex
	logger Logger

	drained chan struct{}
}

// Open connects to the server named in cfg and verifies it with a ping.
func Open(cfg config.InfluxDBConfig, tags Tags) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if tags.Target == "" {
		return nil, ErrNoTarget
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	// #nosec G115 -- both values are positive here
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batchSize)).
		SetFlushInterval(uint(time.Duration(flushInterval) * time.Second / time.Millisecond)).
		AddDefaultTag("target", tags.Target)
	if tags.Site != "" {
		opts.AddDefaultTag("site", tags.Site)
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, err
	}

	r := &Recorder{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
		logger:   noopLogger{},
		drained:  make(chan struct{}),
	}
	go r.logWriteErrors()
	return r, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if !healthy {
		return fmt.Errorf("%w: ping reported unhealthy", ErrUnreachable)
	}
	return nil
}

// logWriteErrors runs until the write API is closed.
func (r *Recorder) logWriteErrors() {
	defer close(r.drained)
	for err := range r.writeAPI.Errors() {
		r.log().Error("InfluxDB write failed", "bucket", r.bucket, "error", err)
	}
}

// SetLogger sets the logger for write failures.
func (r *Recorder) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

func (r *Recorder) log() Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logger
}

// HealthCheck pings the server.
func (r *Recorder) HealthCheck(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return ping(ctx, r.client)
}

// Close flushes buffered points, releases the client and waits until the
// last write failure has been logged. Points recorded after Close are
// dropped.
func (r *Recorder) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.client.Close()
	<-r.drained
	return nil
}
