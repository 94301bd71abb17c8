// logix-uplink forwards staged water-quality readings from a Logix data
// logger to the regulator's submission API, one hourly batch at a time.
//
// Readings land in the staging table (tmp). Every pass groups the pending
// rows by hour, signs each batch as an HS256 JWT and posts it. Accepted rows
// move to the permanent table (data); rejected ones are annotated with the
// reason and left for the operator.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/logix-uplink/migrations"

	"github.com/nerrad567/logix-uplink/internal/api"
	"github.com/nerrad567/logix-uplink/internal/infrastructure/config"
	"github.com/nerrad567/logix-uplink/internal/infrastructure/database"
	"github.com/nerrad567/logix-uplink/internal/infrastructure/influxdb"
	"github.com/nerrad567/logix-uplink/internal/infrastructure/logging"
	"github.com/nerrad567/logix-uplink/internal/infrastructure/mqtt"
	"github.com/nerrad567/logix-uplink/internal/staging"
	"github.com/nerrad567/logix-uplink/internal/uplink"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks in the scheduler until ctx is
// cancelled. A pass in flight when the signal arrives completes first.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting logix-uplink",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"site", cfg.Site.ID,
		"target", cfg.Uplink.Target,
		"active", cfg.Uplink.Active,
	)
	loc := cfg.Location()

	db, err := database.Open(database.Config{
		Driver:      cfg.Database.Driver,
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Name:        cfg.Database.Name,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "driver", db.Dialect(), "path", db.Path())

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	repo, err := staging.NewSQLRepository(db.DB, db.Dialect(), staging.Options{
		Fields:       cfg.Uplink.Fields,
		Location:     loc,
		QueryTimeout: cfg.GetQueryTimeout(),
	})
	if err != nil {
		return fmt.Errorf("creating staging repository: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.GetRequestTimeout()}

	submitter := uplink.NewSubmitter(repo, tokenProvider(cfg.Uplink, httpClient), httpClient, uplink.SubmitterConfig{
		UID:               cfg.Uplink.UID,
		SubmitURL:         cfg.Uplink.SubmitURL,
		Fields:            repo.Fields(),
		MaxDuplicateRetry: cfg.Uplink.MaxDuplicateRetry,
		Location:          loc,
	})
	submitter.SetLogger(log.With("component", "submitter"))

	pipeline := uplink.NewPipeline(repo, submitter, uplink.PipelineConfig{
		Target:   cfg.Uplink.Target,
		Location: loc,
	})
	pipeline.SetLogger(log.With("component", "pipeline"))

	scheduler := uplink.NewScheduler(pipeline, schedulerConfig(cfg, loc))
	scheduler.SetLogger(log.With("component", "scheduler"))

	checks := map[string]api.HealthChecker{"database": db}

	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := connectMQTT(cfg, scheduler, log)
		if mqttErr != nil {
			log.Warn("MQTT unavailable, continuing without pass events", "error", mqttErr)
		} else {
			defer func() {
				log.Info("disconnecting from MQTT")
				if closeErr := mqttClient.Close(); closeErr != nil {
					log.Error("error closing MQTT", "error", closeErr)
				}
			}()
			pipeline.AddObserver(&mqttPassPublisher{client: mqttClient, log: log})
			checks["mqtt"] = mqttClient
		}
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		recorder, influxErr := influxdb.Open(cfg.InfluxDB, influxdb.Tags{
			Site:   cfg.Site.ID,
			Target: cfg.Uplink.Target,
		})
		if influxErr != nil {
			log.Warn("InfluxDB unavailable, continuing without metrics", "error", influxErr)
		} else {
			defer func() {
				log.Info("closing InfluxDB connection")
				if closeErr := recorder.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			recorder.SetLogger(log.With("component", "influxdb"))
			pipeline.AddObserver(&influxPassRecorder{client: recorder})
			checks["influxdb"] = recorder
			log.Info("InfluxDB connected",
				"url", cfg.InfluxDB.URL,
				"org", cfg.InfluxDB.Org,
				"bucket", cfg.InfluxDB.Bucket,
			)
		}
	} else {
		log.Info("InfluxDB disabled")
	}

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:    cfg.API,
			Uplink:    cfg.Uplink,
			Logger:    log.With("component", "api"),
			Scheduler: scheduler,
			Passes:    pipeline,
			Staging:   repo,
			DB:        db,
			Checks:    checks,
			Version:   version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, scheduler running")
	if err := scheduler.Run(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	log.Info("logix-uplink stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LOGIX_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LOGIX_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// tokenProvider picks the static credential when one is configured,
// otherwise the token endpoint.
func tokenProvider(cfg config.UplinkConfig, client *http.Client) uplink.TokenProvider {
	if cfg.StaticToken != "" {
		return uplink.NewStaticTokenProvider(cfg.StaticToken)
	}
	return uplink.NewHTTPTokenProvider(cfg.TokenURL, client)
}

func schedulerConfig(cfg *config.Config, loc *time.Location) uplink.SchedulerConfig {
	sc := uplink.SchedulerConfig{
		Mode:       uplink.ModeHourly,
		Resolution: time.Duration(cfg.Uplink.Schedule.ResolutionMS) * time.Millisecond,
		Location:   loc,
		Active:     cfg.Uplink.Active,
		RunOnStart: cfg.Uplink.Schedule.RunOnStart,
	}
	if cfg.Uplink.Schedule.Mode == config.ScheduleInterval {
		sc.Mode = uplink.ModeInterval
		sc.Interval = time.Duration(cfg.Uplink.Schedule.IntervalSeconds) * time.Second
	}
	return sc
}

// connectMQTT connects to the broker and routes the command topic to the
// scheduler.
func connectMQTT(cfg *config.Config, scheduler triggerer, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT, mqtt.Identity{
		Site:    cfg.Site.ID,
		Target:  cfg.Uplink.Target,
		Active:  cfg.Uplink.Active,
		Version: version,
	})
	if err != nil {
		return nil, err
	}
	client.SetLogger(log.With("component", "mqtt"))

	if err := client.OnCommand(commandHandler(scheduler, log)); err != nil {
		client.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("subscribing %s: %w", client.Topics().Command(), err)
	}

	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"command_topic", client.Topics().Command(),
	)
	return client, nil
}
