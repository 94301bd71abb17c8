package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Database drivers supported by the staging store.
const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

// Scheduler modes.
const (
	ScheduleHourly   = "hourly"
	ScheduleInterval = "interval"
)

// Config is the root configuration structure for logix-uplink.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	Uplink   UplinkConfig   `yaml:"uplink"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SiteConfig contains logger-site information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
	DeviceID string `yaml:"device_id"`
}

// DatabaseConfig contains staging/permanent store settings.
//
// Driver "sqlite3" uses Path; driver "mysql" uses the MySQL fields.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	Path         string `yaml:"path"`
	WALMode      bool   `yaml:"wal_mode"`
	BusyTimeout  int    `yaml:"busy_timeout"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	QueryTimeout int    `yaml:"query_timeout"`
}

// UplinkConfig contains the upstream submission settings.
type UplinkConfig struct {
	// Target labels the upstream API in logs, metrics and MQTT topics ("klhk", "has").
	Target string `yaml:"target"`

	// Active gates every scheduled pass. Inactive ticks only log.
	Active bool `yaml:"active"`

	// TokenURL is fetched with GET before every batch; the plaintext body is the credential.
	TokenURL string `yaml:"token_url"`

	// StaticToken is used instead of TokenURL when set (HAS deployments).
	StaticToken string `yaml:"static_token"`

	SubmitURL string `yaml:"submit_url"`
	UID       string `yaml:"uid"`

	// Fields lists the reading parameters submitted upstream, e.g. [pH, tss, cod, flow, nh3n].
	Fields []string `yaml:"fields"`

	MaxDuplicateRetry int `yaml:"max_duplicate_retry"`

	// RequestTimeout bounds each token and submission request (seconds).
	RequestTimeout int `yaml:"request_timeout"`

	Schedule ScheduleConfig `yaml:"schedule"`
}

// ScheduleConfig controls when submission passes run.
type ScheduleConfig struct {
	// Mode is "hourly" (top of every hour) or "interval" (every IntervalSeconds).
	Mode            string `yaml:"mode"`
	IntervalSeconds int    `yaml:"interval_seconds"`

	// ResolutionMS is the polling period of the scheduler loop.
	ResolutionMS int `yaml:"resolution_ms"`

	// RunOnStart fires one pass on the first tick after startup.
	RunOnStart bool `yaml:"run_on_start"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains operator HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
// An empty AllowedOrigins list allows every origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LOGIX_SECTION_KEY
// For example: LOGIX_DATABASE_PASSWORD, LOGIX_UPLINK_TOKEN_URL
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "logix-001",
			Name:     "Logix",
			Timezone: "Asia/Jakarta",
			DeviceID: "TestDevice",
		},
		Database: DatabaseConfig{
			Driver:       DriverSQLite,
			Path:         "./data/logix.db",
			WALMode:      true,
			BusyTimeout:  5,
			Port:         3306,
			QueryTimeout: 15,
		},
		Uplink: UplinkConfig{
			Target:            "klhk",
			MaxDuplicateRetry: 3,
			RequestTimeout:    30,
			Schedule: ScheduleConfig{
				Mode:            ScheduleHourly,
				IntervalSeconds: 3600,
				ResolutionMS:    1000,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "logix-uplink",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 5020,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LOGIX_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Site
	if v := os.Getenv("LOGIX_TIMEZONE"); v != "" {
		cfg.Site.Timezone = v
	}
	if v := os.Getenv("LOGIX_DEVICE_ID"); v != "" {
		cfg.Site.DeviceID = v
	}

	// Database
	if v := os.Getenv("LOGIX_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("LOGIX_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("LOGIX_DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("LOGIX_DATABASE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("LOGIX_DATABASE_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("LOGIX_DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("LOGIX_DATABASE_NAME"); v != "" {
		cfg.Database.Name = v
	}

	// Uplink
	if v := os.Getenv("LOGIX_UPLINK_STATUS"); v != "" {
		cfg.Uplink.Active = strings.EqualFold(v, "active")
	}
	if v := os.Getenv("LOGIX_UPLINK_TOKEN_URL"); v != "" {
		cfg.Uplink.TokenURL = v
	}
	if v := os.Getenv("LOGIX_UPLINK_STATIC_TOKEN"); v != "" {
		cfg.Uplink.StaticToken = v
	}
	if v := os.Getenv("LOGIX_UPLINK_SUBMIT_URL"); v != "" {
		cfg.Uplink.SubmitURL = v
	}
	if v := os.Getenv("LOGIX_UPLINK_UID"); v != "" {
		cfg.Uplink.UID = v
	}
	if v := os.Getenv("LOGIX_UPLINK_FIELDS"); v != "" {
		cfg.Uplink.Fields = splitList(v)
	}
	if v := os.Getenv("LOGIX_UPLINK_MAX_DUP_RETRY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Uplink.MaxDuplicateRetry = n
		}
	}

	// MQTT
	if v := os.Getenv("LOGIX_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LOGIX_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LOGIX_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("LOGIX_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for errors.
//
// Field names are only checked for presence here; the reading package
// validates them against the column allow-list before any SQL is built.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a valid IANA zone", c.Site.Timezone))
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required")
		}
	case DriverMySQL:
		if c.Database.Host == "" || c.Database.Name == "" || c.Database.User == "" {
			errs = append(errs, "database.host, database.name and database.user are required for mysql")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be %q or %q", DriverSQLite, DriverMySQL))
	}

	errs = append(errs, c.Uplink.validate()...)

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (u *UplinkConfig) validate() []string {
	var errs []string

	if u.Target == "" {
		errs = append(errs, "uplink.target is required")
	}
	if len(u.Fields) == 0 {
		errs = append(errs, "uplink.fields must list at least one parameter")
	}
	if u.MaxDuplicateRetry < 1 {
		errs = append(errs, "uplink.max_duplicate_retry must be at least 1")
	}
	if u.RequestTimeout < 1 {
		errs = append(errs, "uplink.request_timeout must be at least 1 second")
	}

	// Endpoints are only mandatory once the module is switched on.
	if u.Active {
		if u.SubmitURL == "" {
			errs = append(errs, "uplink.submit_url is required when uplink is active")
		}
		if u.TokenURL == "" && u.StaticToken == "" {
			errs = append(errs, "uplink.token_url or uplink.static_token is required when uplink is active")
		}
		if u.UID == "" {
			errs = append(errs, "uplink.uid is required when uplink is active")
		}
	}

	switch u.Schedule.Mode {
	case ScheduleHourly:
	case ScheduleInterval:
		if u.Schedule.IntervalSeconds < 1 {
			errs = append(errs, "uplink.schedule.interval_seconds must be at least 1")
		}
	default:
		errs = append(errs, fmt.Sprintf("uplink.schedule.mode must be %q or %q", ScheduleHourly, ScheduleInterval))
	}
	if u.Schedule.ResolutionMS < 1 {
		errs = append(errs, "uplink.schedule.resolution_ms must be positive")
	}

	return errs
}

// Location returns the configured site timezone.
// Validate guarantees the zone loads; UTC is returned if it somehow does not.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetRequestTimeout returns the uplink HTTP request timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Uplink.RequestTimeout) * time.Second
}

// GetQueryTimeout returns the per-operation database timeout as a Duration.
func (c *Config) GetQueryTimeout() time.Duration {
	return time.Duration(c.Database.QueryTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
