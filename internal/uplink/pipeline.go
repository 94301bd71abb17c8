package uplink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/logix-uplink/internal/reading"
)

// PassReport summarises one submission pass.
type PassReport struct {
	ID         string    `json:"id"`
	Target     string    `json:"target"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Pending is the number of eligible rows found at the start of the pass.
	Pending int `json:"pending"`

	Batches    []Result `json:"batches"`
	Sent       int      `json:"sent"`
	Retried    int      `json:"retried"`
	Unresolved int      `json:"unresolved"`
	Resolved   int      `json:"resolved"`
	RowsSent   int64    `json:"rows_sent"`
	Deleted    int64    `json:"deleted"`

	// Error is set when the pass stopped early.
	Error string `json:"error,omitempty"`
}

// Duration returns how long the pass took.
func (r PassReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// PassObserver is notified after every pass, including failed ones.
type PassObserver interface {
	ObservePass(ctx context.Context, report PassReport)
}

// PassObserverFunc adapts a function to PassObserver.
type PassObserverFunc func(ctx context.Context, report PassReport)

// ObservePass calls f.
func (f PassObserverFunc) ObservePass(ctx context.Context, report PassReport) {
	f(ctx, report)
}

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	// Target labels reports, e.g. "klhk".
	Target   string
	Location *time.Location
}

// Pipeline runs submission passes: fetch pending rows, group by hour,
// submit each batch in order.
type Pipeline struct {
	store     Store
	submitter *Submitter
	cfg       PipelineConfig
	logger    Logger
	now       func() time.Time

	mu        sync.RWMutex
	observers []PassObserver
	last      *PassReport
}

// NewPipeline creates a Pipeline over store and submitter.
func NewPipeline(store Store, submitter *Submitter, cfg PipelineConfig) *Pipeline {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Pipeline{
		store:     store,
		submitter: submitter,
		cfg:       cfg,
		logger:    noopLogger{},
		now:       time.Now,
	}
}

// SetLogger sets the logger for the pipeline.
func (p *Pipeline) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// AddObserver registers an observer for pass reports.
func (p *Pipeline) AddObserver(o PassObserver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

// LastPass returns the most recent pass report, if any pass has run.
func (p *Pipeline) LastPass() (PassReport, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return PassReport{}, false
	}
	return *p.last, true
}

// RunPass performs one pass over all pending rows.
//
// Batch failures are recorded in the report and do not stop the pass,
// except that a credential failure marks every remaining batch retry
// without posting, and a storage failure stops the pass and is returned
// wrapping ErrStorage.
func (p *Pipeline) RunPass(ctx context.Context) (PassReport, error) {
	report := PassReport{
		ID:        uuid.NewString(),
		Target:    p.cfg.Target,
		StartedAt: p.now(),
		Batches:   []Result{},
	}
	log := p.logger

	passErr := p.run(ctx, &report)
	report.FinishedAt = p.now()
	if passErr != nil {
		report.Error = passErr.Error()
		log.Error("submission pass aborted", "pass_id", report.ID, "error", passErr)
	} else {
		log.Info("submission pass complete",
			"pass_id", report.ID,
			"pending", report.Pending,
			"batches", len(report.Batches),
			"sent", report.Sent,
			"retried", report.Retried,
			"unresolved", report.Unresolved,
			"rows_sent", report.RowsSent,
			"duration_ms", report.Duration().Milliseconds(),
		)
	}

	p.mu.Lock()
	stored := report
	p.last = &stored
	observers := append([]PassObserver(nil), p.observers...)
	p.mu.Unlock()

	for _, o := range observers {
		o.ObservePass(ctx, report)
	}

	return report, passErr
}

func (p *Pipeline) run(ctx context.Context, report *PassReport) error {
	readings, err := p.store.FetchPending(ctx, report.StartedAt)
	if err != nil {
		return fmt.Errorf("%w: fetching pending rows: %w", ErrStorage, err)
	}
	report.Pending = len(readings)

	if len(readings) == 0 {
		p.logger.Info("no pending readings", "pass_id", report.ID)
		return nil
	}

	batches := GroupByHour(readings, p.cfg.Location)
	p.logger.Debug("grouped pending readings", "pass_id", report.ID, "rows", len(readings), "batches", len(batches))

	for i, batch := range batches {
		result, err := p.submitter.Submit(ctx, batch)
		report.add(result)

		switch {
		case err == nil:
		case errors.Is(err, ErrStorage):
			return err
		case errors.Is(err, ErrAuth):
			return p.retryRemaining(ctx, report, batches[i+1:])
		default:
			p.logger.Warn("batch not delivered", "pass_id", report.ID, "batch", batch.Key, "outcome", result.Outcome, "error", err)
		}
	}
	return nil
}

// retryRemaining marks batches retry without posting after a credential failure.
func (p *Pipeline) retryRemaining(ctx context.Context, report *PassReport, rest []Batch) error {
	for _, b := range rest {
		if _, err := p.store.MarkRetry(ctx, b.Start, b.End, reading.NoteAuthFailure); err != nil {
			report.add(Result{Key: b.Key, Start: b.Start, End: b.End, Rows: len(b.Readings), Outcome: BatchFailed, Reason: err.Error()})
			return fmt.Errorf("%w: marking batch retry: %w", ErrStorage, err)
		}
		report.add(Result{
			Key:     b.Key,
			Start:   b.Start,
			End:     b.End,
			Rows:    len(b.Readings),
			Outcome: BatchRetry,
			Reason:  reading.NoteAuthFailure,
		})
	}
	if len(rest) > 0 {
		p.logger.Warn("credential unavailable, remaining batches deferred", "pass_id", report.ID, "batches", len(rest))
	}
	return nil
}

func (r *PassReport) add(res Result) {
	r.Batches = append(r.Batches, res)
	r.Deleted += res.Deleted
	switch res.Outcome {
	case BatchSent:
		r.Sent++
		r.RowsSent += res.Sent
	case BatchRetry:
		r.Retried++
	case BatchDuplicateUnresolved:
		r.Unresolved++
	case BatchResolved:
		r.Resolved++
	}
}
