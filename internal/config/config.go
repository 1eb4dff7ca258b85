// Package config provides configuration management for the back-office
// notification engine.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, SERVER_PORT, QUEUE_PREFIX)
// 3. Default values
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Queue names known to the broker.
const (
	QueueNotification = "notification"
	QueueEmail        = "email"
	QueuePayment      = "payment"
	QueueReport       = "report"
)

// QueueNames lists every named queue in a stable order.
var QueueNames = []string{QueueNotification, QueueEmail, QueuePayment, QueueReport}

// Dispatch modes.
const (
	DispatchAbortOnFirstFailure = "abort-on-first-failure"
	DispatchBestEffort          = "best-effort-all-channels"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Push     PushConfig     `mapstructure:"push"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Reports  ReportsConfig  `mapstructure:"reports"`
	Security SecurityConfig `mapstructure:"security"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// AllowedOrigins lists browser origins of the back-office UI. Empty
	// falls back to the local development origins.
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	// UnsafeAllowAllOrigins honours a "*" origin. Credentials are then
	// disabled.
	UnsafeAllowAllOrigins bool `mapstructure:"unsafe_allow_all_origins"`
	// ValidateResponses checks handler responses against the OpenAPI
	// document. Meant for staging.
	ValidateResponses bool `mapstructure:"validate_responses"`
}

// DatabaseConfig contains PostgreSQL connection settings.
// One pool is shared by the record store and the queue broker.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// QueueConfig contains queue broker settings.
type QueueConfig struct {
	// Prefix namespaces every broker table; it becomes the River schema.
	Prefix string `mapstructure:"prefix"`

	DefaultConcurrency int            `mapstructure:"default_concurrency"`
	Concurrency        map[string]int `mapstructure:"concurrency"`

	DefaultMaxAttempts int           `mapstructure:"default_max_attempts"`
	Backoff            BackoffConfig `mapstructure:"backoff"`

	// JobTimeout bounds a single handler run. Zero disables the bound.
	JobTimeout time.Duration `mapstructure:"job_timeout"`

	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// BackoffConfig is the default retry delay policy for a queue.
type BackoffConfig struct {
	Type  string        `mapstructure:"type"` // fixed or exponential
	Delay time.Duration `mapstructure:"delay"`
}

// ConcurrencyFor returns the per-queue ceiling, falling back to the default.
func (c QueueConfig) ConcurrencyFor(queue string) int {
	if n, ok := c.Concurrency[queue]; ok && n > 0 {
		return n
	}
	if c.DefaultConcurrency > 0 {
		return c.DefaultConcurrency
	}
	return 1
}

// DispatchConfig controls the notification orchestrator.
type DispatchConfig struct {
	Mode           string        `mapstructure:"mode"`
	ChannelTimeout time.Duration `mapstructure:"channel_timeout"`
}

// PushConfig configures the Expo push gateway.
type PushConfig struct {
	Host           string        `mapstructure:"host"`
	AccessToken    string        `mapstructure:"access_token"`
	BatchSize      int           `mapstructure:"batch_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SMTPConfig configures the email queue worker.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	// TLSMode is "implicit", "starttls" or "none".
	TLSMode string `mapstructure:"tls_mode"`
}

// Enabled reports whether an SMTP relay is configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

// RedisConfig configures the cross-instance realtime bridge.
// An empty URL keeps realtime delivery local to this process.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// ReportsConfig configures periodic report jobs.
type ReportsConfig struct {
	DigestInterval time.Duration `mapstructure:"digest_interval"`
	DigestWindow   time.Duration `mapstructure:"digest_window"`
}

// SecurityConfig contains security-related settings.
// Missing secrets are generated on first boot.
type SecurityConfig struct {
	JWTSecret           string        `mapstructure:"jwt_secret"`
	JWTVerificationKeys []string      `mapstructure:"jwt_verification_keys"`
	JWTIssuer           string        `mapstructure:"jwt_issuer"`
	TokenLifetime       time.Duration `mapstructure:"token_lifetime"`
}

// WorkerConfig contains goroutine pool settings.
type WorkerConfig struct {
	EventPoolSize    int `mapstructure:"event_pool_size"`
	RealtimePoolSize int `mapstructure:"realtime_pool_size"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
// Nested keys map to env names with "." replaced by "_" (queue.prefix → QUEUE_PREFIX).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/backoffice")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters")
	}
	switch c.Dispatch.Mode {
	case DispatchAbortOnFirstFailure, DispatchBestEffort:
	default:
		return fmt.Errorf("dispatch.mode %q is not one of %s, %s",
			c.Dispatch.Mode, DispatchAbortOnFirstFailure, DispatchBestEffort)
	}
	switch c.Queue.Backoff.Type {
	case "fixed", "exponential":
	default:
		return fmt.Errorf("queue.backoff.type %q must be fixed or exponential", c.Queue.Backoff.Type)
	}
	if c.Queue.DefaultMaxAttempts < 1 {
		return fmt.Errorf("queue.default_max_attempts must be >= 1")
	}
	if c.Push.BatchSize < 1 || c.Push.BatchSize > 100 {
		return fmt.Errorf("push.batch_size must be between 1 and 100")
	}
	for name := range c.Queue.Concurrency {
		if !isKnownQueue(name) {
			return fmt.Errorf("queue.concurrency.%s: unknown queue", name)
		}
	}
	return nil
}

func isKnownQueue(name string) bool {
	for _, q := range QueueNames {
		if q == name {
			return true
		}
	}
	return false
}

// ensureSecrets auto-generates a missing JWT secret.
func (c *Config) ensureSecrets() error {
	if c.Security.JWTSecret == "" {
		secret, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate jwt secret: %w", err)
		}
		c.Security.JWTSecret = secret
		logBootstrapWarn(
			"auto-generated jwt_secret; set SECURITY_JWT_SECRET env var so tokens survive restarts",
			zap.Int("length", len(secret)),
		)
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

// generateSecureRandomHex produces a hex-encoded string of n random bytes.
func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allow_credentials", true)
	v.SetDefault("server.unsafe_allow_all_origins", false)
	v.SetDefault("server.validate_responses", false)

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "backoffice")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "backoffice")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", true)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Queue broker. Per-queue keys are declared so env overrides
	// (QUEUE_CONCURRENCY_EMAIL) resolve.
	v.SetDefault("queue.prefix", "backoffice_queue")
	v.SetDefault("queue.default_concurrency", 5)
	v.SetDefault("queue.concurrency.notification", 10)
	v.SetDefault("queue.concurrency.email", 5)
	v.SetDefault("queue.concurrency.payment", 3)
	v.SetDefault("queue.concurrency.report", 1)
	v.SetDefault("queue.default_max_attempts", 3)
	v.SetDefault("queue.backoff.type", "exponential")
	v.SetDefault("queue.backoff.delay", "2s")
	v.SetDefault("queue.job_timeout", "2m")
	v.SetDefault("queue.completed_job_retention_period", "24h")

	// Dispatch
	v.SetDefault("dispatch.mode", DispatchAbortOnFirstFailure)
	v.SetDefault("dispatch.channel_timeout", "15s")

	// Push gateway
	v.SetDefault("push.host", "https://exp.host")
	v.SetDefault("push.access_token", "")
	v.SetDefault("push.batch_size", 100)
	v.SetDefault("push.request_timeout", "10s")

	// SMTP
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "no-reply@givedesk.io")
	v.SetDefault("smtp.tls_mode", "starttls")

	// Redis
	v.SetDefault("redis.url", "")

	// Reports
	v.SetDefault("reports.digest_interval", "24h")
	v.SetDefault("reports.digest_window", "24h")

	// Security
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_verification_keys", []string{})
	v.SetDefault("security.jwt_issuer", "backoffice")
	v.SetDefault("security.token_lifetime", "12h")

	// Goroutine pools
	v.SetDefault("worker.event_pool_size", 16)
	v.SetDefault("worker.realtime_pool_size", 64)
}
