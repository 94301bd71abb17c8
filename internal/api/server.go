package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/logix-uplink/internal/infrastructure/config"
	"github.com/nerrad567/logix-uplink/internal/infrastructure/database"
	"github.com/nerrad567/logix-uplink/internal/infrastructure/logging"
	"github.com/nerrad567/logix-uplink/internal/reading"
	"github.com/nerrad567/logix-uplink/internal/staging"
	"github.com/nerrad567/logix-uplink/internal/uplink"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Scheduler is the part of uplink.Scheduler the API drives.
type Scheduler interface {
	Trigger() error
	Status() uplink.SchedulerStatus
}

// PassHistory exposes the most recent pass report.
type PassHistory interface {
	LastPass() (uplink.PassReport, bool)
}

// StagingReader is the read side of the staging repository.
type StagingReader interface {
	List(ctx context.Context, filter staging.Filter) (*staging.ListResult, error)
	CountByOutcome(ctx context.Context) (map[reading.Outcome]int, error)
	CountPermanent(ctx context.Context) (int, error)
}

// HealthChecker is implemented by database, MQTT and InfluxDB clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Uplink    config.UplinkConfig
	Logger    *logging.Logger
	Scheduler Scheduler
	Passes    PassHistory
	Staging   StagingReader

	// DB is optional; when set its pool statistics appear in /metrics.
	DB *database.DB

	// Checks are run by /health, keyed by component name.
	Checks map[string]HealthChecker

	Version string
}

// Server is the operator HTTP API server.
type Server struct {
	cfg       config.APIConfig
	uplinkCfg config.UplinkConfig
	logger    *logging.Logger
	scheduler Scheduler
	passes    PassHistory
	staging   StagingReader
	db        *database.DB
	checks    map[string]HealthChecker
	version   string
	startTime time.Time
	server    *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if deps.Passes == nil {
		return nil, fmt.Errorf("pass history is required")
	}
	if deps.Staging == nil {
		return nil, fmt.Errorf("staging reader is required")
	}

	return &Server{
		cfg:       deps.Config,
		uplinkCfg: deps.Uplink,
		logger:    deps.Logger,
		scheduler: deps.Scheduler,
		passes:    deps.Passes,
		staging:   deps.Staging,
		db:        deps.DB,
		checks:    deps.Checks,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
