package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/logix-uplink/internal/infrastructure/config"
	"github.com/nerrad567/logix-uplink/internal/infrastructure/database"
	"github.com/nerrad567/logix-uplink/internal/infrastructure/influxdb"
	"github.com/nerrad567/logix-uplink/internal/infrastructure/logging"
	"github.com/nerrad567/logix-uplink/internal/infrastructure/mqtt"
	"github.com/nerrad567/logix-uplink/internal/reading"
	"github.com/nerrad567/logix-uplink/internal/staging"
	"github.com/nerrad567/logix-uplink/internal/uplink"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("LOGIX_CONFIG", path)
}

func quietLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("LOGIX_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_MissingFields(t *testing.T) {
	writeConfig(t, `
site:
  id: test-site
database:
  path: "`+filepath.Join(t.TempDir(), "logix.db")+`"
`)

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "uplink.fields") {
		t.Fatalf("run() error = %v, want uplink.fields validation error", err)
	}
}

func TestRun_InactiveStartupAndShutdown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "logix.db")
	writeConfig(t, `
site:
  id: test-site
  timezone: Asia/Jakarta
database:
  path: "`+dbPath+`"
uplink:
  active: false
  fields: [pH, cod, flow]
  schedule:
    resolution_ms: 10
logging:
  level: error
  format: text
`)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

// TestRun_DeliversStagedReadings drives a full pass against a fake
// regulator API and checks the rows reach the permanent table.
func TestRun_DeliversStagedReadings(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	dbPath := filepath.Join(t.TempDir(), "logix.db")
	fields := []string{"pH", "cod", "flow"}

	// Seed the staging table before the service starts.
	db, err := database.Open(database.Config{Path: dbPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	repo, err := staging.NewSQLRepository(db.DB, db.Dialect(), staging.Options{Fields: fields, Location: loc})
	if err != nil {
		t.Fatalf("NewSQLRepository: %v", err)
	}
	base := time.Now().In(loc).Truncate(time.Hour).Add(-3 * time.Hour)
	for _, offset := range []time.Duration{0, 15 * time.Minute} {
		if _, err := repo.Stage(context.Background(), reading.Reading{
			Device: "DEV-01",
			Date:   base.Add(offset),
			Values: map[string]float64{"pH": 7.1, "cod": 30, "flow": 2.5},
		}); err != nil {
			t.Fatalf("Stage: %v", err)
		}
	}
	db.Close()

	posted := make(chan struct{}, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "signing-key")
	})
	mux.HandleFunc("/submit", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":true,"desc":"ok"}`)
		select {
		case posted <- struct{}{}:
		default:
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	writeConfig(t, `
site:
  id: test-site
  timezone: Asia/Jakarta
database:
  path: "`+dbPath+`"
uplink:
  active: true
  uid: SITE-UID
  token_url: "`+srv.URL+`/token"
  submit_url: "`+srv.URL+`/submit"
  fields: [pH, cod, flow]
  schedule:
    resolution_ms: 10
    run_on_start: true
logging:
  level: error
  format: text
`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	select {
	case <-posted:
	case err := <-done:
		t.Fatalf("run() returned early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("no submission received")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run() did not return after cancel")
	}

	db, err = database.Open(database.Config{Path: dbPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	repo, err = staging.NewSQLRepository(db.DB, db.Dialect(), staging.Options{Fields: fields, Location: loc})
	if err != nil {
		t.Fatalf("NewSQLRepository: %v", err)
	}
	permanent, err := repo.CountPermanent(context.Background())
	if err != nil {
		t.Fatalf("CountPermanent: %v", err)
	}
	if permanent != 2 {
		t.Errorf("permanent rows = %d, want 2", permanent)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("LOGIX_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("LOGIX_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestTokenProvider(t *testing.T) {
	if _, ok := tokenProvider(config.UplinkConfig{StaticToken: "k"}, nil).(*uplink.StaticTokenProvider); !ok {
		t.Error("static token should select StaticTokenProvider")
	}
	if _, ok := tokenProvider(config.UplinkConfig{TokenURL: "http://x/token"}, nil).(*uplink.HTTPTokenProvider); !ok {
		t.Error("token url should select HTTPTokenProvider")
	}
}

func TestSchedulerConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Uplink.Active = true
	cfg.Uplink.Schedule = config.ScheduleConfig{Mode: config.ScheduleInterval, IntervalSeconds: 90, ResolutionMS: 250}

	sc := schedulerConfig(cfg, time.UTC)
	if sc.Mode != uplink.ModeInterval || sc.Interval != 90*time.Second {
		t.Errorf("mode/interval = %s/%s, want interval/1m30s", sc.Mode, sc.Interval)
	}
	if sc.Resolution != 250*time.Millisecond || !sc.Active {
		t.Errorf("resolution/active = %s/%v", sc.Resolution, sc.Active)
	}

	cfg.Uplink.Schedule.Mode = config.ScheduleHourly
	if sc := schedulerConfig(cfg, time.UTC); sc.Mode != uplink.ModeHourly || sc.Interval != 0 {
		t.Errorf("hourly config = %+v", sc)
	}
}

func sampleReport() uplink.PassReport {
	finished := time.Date(2024, 1, 1, 12, 0, 3, 0, time.UTC)
	return uplink.PassReport{
		ID:         "pass-1",
		Target:     "klhk",
		StartedAt:  finished.Add(-3 * time.Second),
		FinishedAt: finished,
		Pending:    5,
		Batches: []uplink.Result{
			{Key: "2024-01-01 10", Rows: 3, Outcome: uplink.BatchSent, Attempts: 1, Sent: 3},
			{Key: "2024-01-01 11", Rows: 2, Outcome: uplink.BatchRetry, Attempts: 1, Reason: "HTTP 500"},
		},
		Sent:     1,
		Retried:  1,
		RowsSent: 3,
	}
}

type fakeMetrics struct {
	passes  []influxdb.PassMetrics
	batches []influxdb.BatchMetrics
}

func (f *fakeMetrics) RecordPass(m influxdb.PassMetrics)   { f.passes = append(f.passes, m) }
func (f *fakeMetrics) RecordBatch(m influxdb.BatchMetrics) { f.batches = append(f.batches, m) }

func TestInfluxPassRecorder(t *testing.T) {
	fm := &fakeMetrics{}
	(&influxPassRecorder{client: fm}).ObservePass(context.Background(), sampleReport())

	if len(fm.passes) != 1 || len(fm.batches) != 2 {
		t.Fatalf("got %d passes, %d batches; want 1, 2", len(fm.passes), len(fm.batches))
	}
	p := fm.passes[0]
	if p.Batches != 2 || p.Sent != 1 || p.Retried != 1 || p.RowsSent != 3 {
		t.Errorf("pass metrics = %+v", p)
	}
	if p.Duration != 3*time.Second || p.Failed {
		t.Errorf("duration/failed = %s/%v", p.Duration, p.Failed)
	}
	if b := fm.batches[1]; b.Outcome != "retry" || b.Rows != 2 || !b.At.Equal(sampleReport().FinishedAt) {
		t.Errorf("batch metrics = %+v", b)
	}
}

func TestPassMetrics_Failed(t *testing.T) {
	r := sampleReport()
	r.Error = "uplink: storage failure"
	if !passMetrics(r).Failed {
		t.Error("report with error should be marked failed")
	}
}

type fakePublisher struct {
	mu     sync.Mutex
	values []any
	err    error
}

func (f *fakePublisher) PublishPass(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = append(f.values, v)
	return f.err
}

func TestMQTTPassPublisher(t *testing.T) {
	fp := &fakePublisher{}
	p := &mqttPassPublisher{client: fp, log: quietLogger()}
	p.ObservePass(context.Background(), sampleReport())

	if len(fp.values) != 1 {
		t.Fatalf("published %d reports, want 1", len(fp.values))
	}
	if r, ok := fp.values[0].(uplink.PassReport); !ok || r.ID != "pass-1" {
		t.Errorf("published value = %#v", fp.values[0])
	}

	// Publish failures are swallowed.
	fp.err = errors.New("not connected")
	p.ObservePass(context.Background(), sampleReport())
}

type fakeTriggerer struct {
	calls int
	err   error
}

func (f *fakeTriggerer) Trigger() error {
	f.calls++
	return f.err
}

func TestCommandHandler(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"run", nil, nil},
		{"inactive", uplink.ErrInactive, uplink.ErrInactive},
		{"pending", uplink.ErrTriggerPending, uplink.ErrTriggerPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trig := &fakeTriggerer{err: tt.err}
			handler := commandHandler(trig, quietLogger())

			err := handler(mqtt.Command{Action: mqtt.ActionRun})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if trig.calls != 1 {
				t.Errorf("Trigger calls = %d, want 1", trig.calls)
			}
		})
	}
}
