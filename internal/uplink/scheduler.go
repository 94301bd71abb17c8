package uplink

import (
	"context"
	"sync"
	"time"
)

// ScheduleMode selects how tick boundaries are computed.
type ScheduleMode string

const (
	// ModeHourly fires at the top of every hour in the site timezone.
	ModeHourly ScheduleMode = "hourly"

	// ModeInterval fires every Interval, aligned to the Unix epoch.
	ModeInterval ScheduleMode = "interval"
)

// defaultResolution is the polling period when none is configured.
const defaultResolution = time.Second

// PassRunner runs one submission pass.
type PassRunner interface {
	RunPass(ctx context.Context) (PassReport, error)
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Mode     ScheduleMode
	Interval time.Duration

	// Resolution is how often the loop compares the clock to the watermark.
	Resolution time.Duration

	Location *time.Location

	// Active gates every pass. An inactive scheduler only logs its ticks.
	Active bool

	// RunOnStart fires on the first observed tick instead of waiting for
	// the next boundary.
	RunOnStart bool
}

// SchedulerStatus is a snapshot of scheduler state.
type SchedulerStatus struct {
	Mode      ScheduleMode `json:"mode"`
	Active    bool         `json:"active"`
	// LastTick and NextTick are nil until the first tick is observed.
	LastTick  *time.Time   `json:"last_tick,omitempty"`
	NextTick  *time.Time   `json:"next_tick,omitempty"`
	Passes    int          `json:"passes"`
	InPass    bool         `json:"in_pass"`
	LastError string       `json:"last_error,omitempty"`
}

// Scheduler triggers passes on a single goroutine.
//
// A watermark holds the canonical key of the last tick that fired; a pass
// runs only when the current key differs, so there is at most one pass per
// tick boundary however fine the polling resolution. Manual triggers are
// queued onto the same goroutine, so passes never overlap.
type Scheduler struct {
	runner PassRunner
	cfg    SchedulerConfig
	logger Logger
	now    func() time.Time

	trigger chan struct{}

	mu        sync.Mutex
	lastFired time.Time
	seen      bool
	passes    int
	inPass    bool
	lastErr   string
}

// NewScheduler creates a Scheduler for runner.
func NewScheduler(runner PassRunner, cfg SchedulerConfig) *Scheduler {
	if cfg.Mode == "" {
		cfg.Mode = ModeHourly
	}
	if cfg.Resolution <= 0 {
		cfg.Resolution = defaultResolution
	}
	if cfg.Mode == ModeInterval && cfg.Interval < time.Second {
		cfg.Interval = time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{
		runner:  runner,
		cfg:     cfg,
		logger:  noopLogger{},
		now:     time.Now,
		trigger: make(chan struct{}, 1),
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Run polls the clock until ctx is cancelled. A pass that is already
// running when ctx is cancelled completes before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"mode", s.cfg.Mode,
		"active", s.cfg.Active,
		"resolution", s.cfg.Resolution.String(),
	)

	ticker := time.NewTicker(s.cfg.Resolution)
	defer ticker.Stop()

	s.tick(ctx, s.now())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx, s.now())
		case <-s.trigger:
			s.logger.Info("manual pass requested")
			s.fire(ctx)
		}
	}
}

// Trigger queues a manual pass on the scheduler goroutine.
func (s *Scheduler) Trigger() error {
	if !s.cfg.Active {
		return ErrInactive
	}
	select {
	case s.trigger <- struct{}{}:
		return nil
	default:
		return ErrTriggerPending
	}
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SchedulerStatus{
		Mode:      s.cfg.Mode,
		Active:    s.cfg.Active,
		Passes:    s.passes,
		InPass:    s.inPass,
		LastError: s.lastErr,
	}
	if s.seen {
		last, next := s.lastFired, s.nextKey(s.lastFired)
		st.LastTick = &last
		st.NextTick = &next
	}
	return st
}

// tick compares now against the watermark and fires on a new boundary.
// It reports whether a boundary was crossed.
func (s *Scheduler) tick(ctx context.Context, now time.Time) bool {
	key := s.tickKey(now)

	s.mu.Lock()
	first := !s.seen
	if !first && key.Equal(s.lastFired) {
		s.mu.Unlock()
		return false
	}
	s.seen = true
	s.lastFired = key
	s.mu.Unlock()

	if first && !s.cfg.RunOnStart {
		s.logger.Debug("scheduler waiting for next boundary", "next", s.nextKey(key))
		return false
	}

	s.fire(ctx)
	return true
}

// fire runs one pass unless the scheduler is inactive.
//
// The pass runs on a context detached from cancellation so an interrupt
// can never land between an accepted POST and the matching write-back.
// Request and query timeouts still bound every step.
func (s *Scheduler) fire(ctx context.Context) {
	if !s.cfg.Active {
		s.logger.Info("uplink inactive, skipping pass")
		return
	}

	s.mu.Lock()
	s.inPass = true
	s.mu.Unlock()

	_, err := s.runner.RunPass(context.WithoutCancel(ctx))

	s.mu.Lock()
	s.inPass = false
	s.passes++
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()
}

// tickKey returns the canonical timestamp of the tick period containing now.
//
// Hourly keys are the instant the local hour began, computed by stepping
// back from now rather than rebuilding a wall-clock date, so the hour that
// repeats on a DST fall-back gets its own key.
func (s *Scheduler) tickKey(now time.Time) time.Time {
	switch s.cfg.Mode {
	case ModeInterval:
		secs := int64(s.cfg.Interval / time.Second)
		return time.Unix(now.Unix()/secs*secs, 0).In(s.cfg.Location)
	default:
		t := now.In(s.cfg.Location)
		elapsed := time.Duration(t.Minute())*time.Minute +
			time.Duration(t.Second())*time.Second +
			time.Duration(t.Nanosecond())
		return t.Add(-elapsed)
	}
}

// nextKey returns the boundary after key.
func (s *Scheduler) nextKey(key time.Time) time.Time {
	if s.cfg.Mode == ModeInterval {
		return key.Add(s.cfg.Interval)
	}
	return s.tickKey(key.Add(time.Hour))
}
