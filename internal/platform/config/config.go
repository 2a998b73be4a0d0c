// Package config loads gateway configuration. An optional YAML file supplies
// base values and environment variables override them.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	platformstrings "github.com/niksbanna/ehr-portal-sub000/pkg/platform/strings"
)

// Config is the full gateway configuration.
type Config struct {
	Addr            string
	Env             string
	LogLevel        string
	APIPrefix       string
	UpstreamURL     string
	PrivilegedRoles []string
	DatabaseURL     string
	CORSOrigins     []string
	Migrate         bool

	JWT        JWTConfig
	Redis      RedisConfig
	Revocation RevocationConfig
	Audit      AuditConfig
	Tracing    TracingConfig
}

// JWTConfig holds token validation settings.
type JWTConfig struct {
	SigningKey string
	Issuer     string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RevocationConfig selects the revocation cache backend.
type RevocationConfig struct {
	Backend       string
	SweepInterval time.Duration
}

// AuditConfig tunes the audit recorder and its sinks.
type AuditConfig struct {
	Store          string
	QueueSize      int
	Workers        int
	OverflowPolicy string
	WriteTimeout   time.Duration
	MaxBodyBytes   int64
	KafkaBrokers   []string
	KafkaTopic     string
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool
	OTLPEndpoint string
	SamplingRate float64
	Insecure     bool
}

// Backend names.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Default values for non-secret configuration.
const (
	DefaultAddr                    = ":8080"
	DefaultEnv                     = "development"
	DefaultLogLevel                = "info"
	DefaultAPIPrefix               = "/api/v1"
	DefaultPrivilegedRoles         = "admin"
	DefaultRevocationSweepInterval = time.Minute
	DefaultAuditQueueSize          = 1024
	DefaultAuditWorkers            = 4
	DefaultAuditOverflowPolicy     = "drop-oldest"
	DefaultAuditWriteTimeout       = 5 * time.Second
	DefaultAuditMaxBodyBytes       = 1 << 20
	DefaultAuditKafkaTopic         = "ehr.audit.records"
	DefaultRedisPoolSize           = 10
	DefaultRedisTimeout            = 3 * time.Second
	DefaultTracingSamplingRate     = 1.0

	devSigningKey = "dev-secret-key-change-in-production"
)

// Configuration validation errors.
var (
	ErrMissingUpstreamURL     = errors.New("UPSTREAM_URL is required")
	ErrInvalidUpstreamURL     = errors.New("UPSTREAM_URL must be an absolute http(s) URL")
	ErrMissingJWTSigningKey   = errors.New("JWT_SIGNING_KEY is required in production")
	ErrMissingDatabaseURL     = errors.New("DATABASE_URL is required for the postgres backend")
	ErrMissingRedisURL        = errors.New("REDIS_URL is required for the redis backend")
	ErrInvalidRevocationStore = errors.New("REVOCATION_BACKEND must be memory, redis or postgres")
	ErrInvalidAuditStore      = errors.New("AUDIT_STORE must be memory or postgres")
	ErrInvalidOverflowPolicy  = errors.New("AUDIT_OVERFLOW_POLICY must be drop-oldest or drop-newest")
	ErrInvalidNumber          = errors.New("value must be a valid number")
	ErrInvalidDuration        = errors.New("value must be a valid duration")
	ErrNonPositive            = errors.New("value must be positive")
	ErrNoPrivilegedRoles      = errors.New("PRIVILEGED_ROLES must name at least one role")
)

// Load reads configuration from an optional YAML file and the environment.
// Environment variables take precedence over file values. It returns the
// config and every validation error found (empty if valid). A config file
// that cannot be read is reported alone with a nil config.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	l := &loader{k: k}
	cfg := &Config{
		Addr:            l.str("ADDR", "addr", DefaultAddr),
		Env:             l.str("ENV", "env", DefaultEnv),
		LogLevel:        l.str("LOG_LEVEL", "log_level", DefaultLogLevel),
		APIPrefix:       l.str("API_PREFIX", "api_prefix", DefaultAPIPrefix),
		UpstreamURL:     l.str("UPSTREAM_URL", "upstream_url", ""),
		PrivilegedRoles: platformstrings.SplitList(l.str("PRIVILEGED_ROLES", "privileged_roles", DefaultPrivilegedRoles)),
		DatabaseURL:     l.str("DATABASE_URL", "database_url", ""),
		CORSOrigins:     platformstrings.SplitList(l.str("CORS_ALLOWED_ORIGINS", "cors_allowed_origins", "")),
		Migrate:         l.boolean("MIGRATE", "migrate", false),
		JWT: JWTConfig{
			SigningKey: l.str("JWT_SIGNING_KEY", "jwt.signing_key", ""),
			Issuer:     l.str("JWT_ISSUER", "jwt.issuer", ""),
		},
		Redis: RedisConfig{
			URL:          l.str("REDIS_URL", "redis.url", ""),
			PoolSize:     l.integer("REDIS_POOL_SIZE", "redis.pool_size", DefaultRedisPoolSize),
			MinIdleConns: l.integer("REDIS_MIN_IDLE_CONNS", "redis.min_idle_conns", 0),
			DialTimeout:  l.duration("REDIS_DIAL_TIMEOUT", "redis.dial_timeout", DefaultRedisTimeout),
			ReadTimeout:  l.duration("REDIS_READ_TIMEOUT", "redis.read_timeout", DefaultRedisTimeout),
			WriteTimeout: l.duration("REDIS_WRITE_TIMEOUT", "redis.write_timeout", DefaultRedisTimeout),
		},
		Revocation: RevocationConfig{
			Backend:       l.str("REVOCATION_BACKEND", "revocation.backend", BackendMemory),
			SweepInterval: l.duration("REVOCATION_SWEEP_INTERVAL", "revocation.sweep_interval", DefaultRevocationSweepInterval),
		},
		Audit: AuditConfig{
			Store:          l.str("AUDIT_STORE", "audit.store", BackendMemory),
			QueueSize:      l.integer("AUDIT_QUEUE_SIZE", "audit.queue_size", DefaultAuditQueueSize),
			Workers:        l.integer("AUDIT_WORKERS", "audit.workers", DefaultAuditWorkers),
			OverflowPolicy: l.str("AUDIT_OVERFLOW_POLICY", "audit.overflow_policy", DefaultAuditOverflowPolicy),
			WriteTimeout:   l.duration("AUDIT_WRITE_TIMEOUT", "audit.write_timeout", DefaultAuditWriteTimeout),
			MaxBodyBytes:   int64(l.integer("AUDIT_MAX_BODY_BYTES", "audit.max_body_bytes", DefaultAuditMaxBodyBytes)),
			KafkaBrokers:   platformstrings.SplitList(l.str("AUDIT_KAFKA_BROKERS", "audit.kafka_brokers", "")),
			KafkaTopic:     l.str("AUDIT_KAFKA_TOPIC", "audit.kafka_topic", DefaultAuditKafkaTopic),
		},
		Tracing: TracingConfig{
			Enabled:      l.boolean("OTEL_ENABLED", "tracing.enabled", false),
			OTLPEndpoint: l.str("OTEL_EXPORTER_OTLP_ENDPOINT", "tracing.otlp_endpoint", ""),
			SamplingRate: l.float("OTEL_SAMPLING_RATE", "tracing.sampling_rate", DefaultTracingSamplingRate),
			Insecure:     l.boolean("OTEL_INSECURE", "tracing.insecure", false),
		},
	}

	if cfg.JWT.SigningKey == "" && !cfg.IsProduction() {
		cfg.JWT.SigningKey = devSigningKey
	}

	errs := append(l.errs, cfg.Validate()...)
	return cfg, errs
}

// IsProduction reports whether the gateway runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate checks required values and cross-field constraints.
func (c *Config) Validate() []error {
	var errs []error

	if c.UpstreamURL == "" {
		errs = append(errs, ErrMissingUpstreamURL)
	} else if u, err := url.Parse(c.UpstreamURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ErrInvalidUpstreamURL)
	}
	if c.JWT.SigningKey == "" {
		errs = append(errs, ErrMissingJWTSigningKey)
	}
	if len(c.PrivilegedRoles) == 0 {
		errs = append(errs, ErrNoPrivilegedRoles)
	}

	switch c.Revocation.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, ErrMissingRedisURL)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, ErrMissingDatabaseURL)
		}
	default:
		errs = append(errs, ErrInvalidRevocationStore)
	}

	switch c.Audit.Store {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" && c.Revocation.Backend != BackendPostgres {
			errs = append(errs, ErrMissingDatabaseURL)
		}
	default:
		errs = append(errs, ErrInvalidAuditStore)
	}

	switch c.Audit.OverflowPolicy {
	case "drop-oldest", "drop-newest":
	default:
		errs = append(errs, ErrInvalidOverflowPolicy)
	}
	if c.Audit.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("AUDIT_QUEUE_SIZE: %w", ErrNonPositive))
	}
	if c.Audit.Workers <= 0 {
		errs = append(errs, fmt.Errorf("AUDIT_WORKERS: %w", ErrNonPositive))
	}
	if c.Audit.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("AUDIT_WRITE_TIMEOUT: %w", ErrNonPositive))
	}
	if c.Audit.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("AUDIT_MAX_BODY_BYTES: %w", ErrNonPositive))
	}
	if c.Revocation.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("REVOCATION_SWEEP_INTERVAL: %w", ErrNonPositive))
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLING_RATE must be between 0 and 1, got %v", c.Tracing.SamplingRate))
	}

	return errs
}

// LogSummary returns the configuration with secrets masked.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"addr":               c.Addr,
		"env":                c.Env,
		"api_prefix":         c.APIPrefix,
		"upstream_url":       c.UpstreamURL,
		"privileged_roles":   strings.Join(c.PrivilegedRoles, ","),
		"database_url":       maskDatabaseURL(c.DatabaseURL),
		"redis_url":          maskDatabaseURL(c.Redis.URL),
		"jwt_signing_key":    maskSecret(c.JWT.SigningKey),
		"revocation_backend": c.Revocation.Backend,
		"audit_store":        c.Audit.Store,
		"audit_overflow":     c.Audit.OverflowPolicy,
		"audit_queue_size":   strconv.Itoa(c.Audit.QueueSize),
		"audit_workers":      strconv.Itoa(c.Audit.Workers),
		"audit_kafka":        strings.Join(c.Audit.KafkaBrokers, ","),
		"tracing_enabled":    strconv.FormatBool(c.Tracing.Enabled),
	}
}

// loader reads env-over-file values and collects parse errors.
type loader struct {
	k    *koanf.Koanf
	errs []error
}

func (l *loader) str(envKey, koanfKey, def string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if val := l.k.String(koanfKey); val != "" {
		return val
	}
	return def
}

func (l *loader) integer(envKey, koanfKey string, def int) int {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("%s: %w", envKey, ErrInvalidNumber))
			return def
		}
		return i
	}
	if l.k.Exists(koanfKey) {
		return l.k.Int(koanfKey)
	}
	return def
}

func (l *loader) float(envKey, koanfKey string, def float64) float64 {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("%s: %w", envKey, ErrInvalidNumber))
			return def
		}
		return f
	}
	if l.k.Exists(koanfKey) {
		return l.k.Float64(koanfKey)
	}
	return def
}

func (l *loader) duration(envKey, koanfKey string, def time.Duration) time.Duration {
	raw := os.Getenv(envKey)
	if raw == "" && l.k.Exists(koanfKey) {
		raw = l.k.String(koanfKey)
	}
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", envKey, ErrInvalidDuration))
		return def
	}
	return d
}

func (l *loader) boolean(envKey, koanfKey string, def bool) bool {
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	if l.k.Exists(koanfKey) {
		return l.k.Bool(koanfKey)
	}
	return def
}

func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return s
	}
	if _, hasPassword := u.User.Password(); !hasPassword {
		return s
	}
	u.User = url.UserPassword(u.User.Username(), "****")
	return u.String()
}
