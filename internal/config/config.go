// Package config provides dispatcher configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/api-dispatcher/pkg/fetcher"
)

const logPrefix = "config:LoadConfig"

// Audit log sinks.
const (
	AuditSinkNone     = "none"
	AuditSinkComms    = "comms"
	AuditSinkPostgres = "postgres"
)

// Config holds api-dispatcher configuration.
type Config struct {
	// Handler location. MSPath is read once and never changes afterwards.
	MSPath  string `envconfig:"MS_PATH"`
	APIRoot string `envconfig:"API_ROOT"`

	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL        string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName       string `envconfig:"SERVICE_NAME" default:"api-dispatcher"`
	DispatchSubject string `envconfig:"DISPATCH_SUBJECT" default:"api.dispatch"`

	// Audit log
	AuditLogSink          string `envconfig:"AUDIT_LOG_SINK" default:"none"`
	AuditLogSubjectPrefix string `envconfig:"AUDIT_LOG_SUBJECT_PREFIX" default:"api.logs"`

	// Dispatch ended events
	EventsEnabled bool `envconfig:"EVENTS_ENABLED" default:"false"`

	// Timeouts (transport level; the pipeline itself never times out)
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`

	// Dispatches running at once on this instance
	MaxInflightDispatches int `envconfig:"MAX_INFLIGHT_DISPATCHES" default:"64"`

	// Settings file with api.clientIdentifiers
	SettingsFile string `envconfig:"SETTINGS_FILE"`

	// Database (audit records, active clients). Empty disables both.
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// Active client cache. Empty REDIS_ADDR disables it.
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	ClientCacheTTL time.Duration `envconfig:"CLIENT_CACHE_TTL" default:"5m"`

	// HTTP health endpoint
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// FetcherConfig returns the handler location settings.
func (c *Config) FetcherConfig() fetcher.Config {
	cfg := fetcher.DefaultConfig()
	cfg.Root = c.APIRoot
	cfg.PathPrefix = c.MSPath
	return cfg
}

// ValidateForServe checks required config when running the dispatcher server.
func (c *Config) ValidateForServe() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.COMMSURL, validation.Required),
		validation.Field(&c.DispatchSubject, validation.Required),
		validation.Field(&c.AuditLogSink, validation.Required, validation.In(AuditSinkNone, AuditSinkComms, AuditSinkPostgres)),
		validation.Field(&c.DatabaseURL, validation.When(c.AuditLogSink == AuditSinkPostgres || c.RunMigrations, validation.Required)),
		validation.Field(&c.RequestTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MaxInflightDispatches, validation.Required, validation.Min(1)),
		validation.Field(&c.HealthCheckTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.ClientCacheTTL, validation.When(c.RedisAddr != "", validation.Required, validation.Min(time.Second))),
		validation.Field(&c.HTTPPort, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
	)
	if err != nil {
		return fmt.Errorf("%s - invalid serve config: %w", logPrefix, err)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
