package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Rate limiter backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all application configuration. It is loaded once at startup
// and handed to constructors by value or pointer; nothing mutates it later.
type Config struct {
	LogLevel                string        `env:"LOG_LEVEL" envDefault:"info"`
	ListenAddr              string        `env:"LISTEN_ADDR" envDefault:"127.0.0.1:8089"`
	MaxFrameSize            int           `env:"MAX_FRAME_SIZE" envDefault:"4096"`
	IdleTimeout             time.Duration `env:"IDLE_TIMEOUT" envDefault:"5s"`
	MaxConnections          int64         `env:"MAX_CONNECTIONS" envDefault:"0"` // 0 = unbounded
	LogDir                  string        `env:"LOG_DIR" envDefault:"logs"`
	RateLimit               int           `env:"RATE_LIMIT" envDefault:"10"`
	RateWindow              time.Duration `env:"RATE_WINDOW" envDefault:"60s"`
	RateSweepInterval       time.Duration `env:"RATE_SWEEP_INTERVAL" envDefault:"1m"`
	RateLimitBackend        string        `env:"RATE_LIMIT_BACKEND" envDefault:"memory"`
	MetricsAddr             string        `env:"METRICS_ADDR" envDefault:":9091"`
	RedisAddr               string        `env:"REDIS_ADDR"`
	RedisStream             string        `env:"REDIS_STREAM" envDefault:"log_records"`
	RedisDLQStream          string        `env:"REDIS_DLQ_STREAM" envDefault:"log_records_dlq"`
	MirrorSpoolDir          string        `env:"MIRROR_SPOOL_DIR" envDefault:"spool"` // empty disables spooling
	MirrorSpoolSegmentBytes int64         `env:"MIRROR_SPOOL_SEGMENT_BYTES" envDefault:"1048576"`
	MirrorSpoolMaxBytes     int64         `env:"MIRROR_SPOOL_MAX_BYTES" envDefault:"67108864"`
	MirrorRedactFields      []string      `env:"MIRROR_REDACT_FIELDS" envSeparator:","`
	PostgresURL             string        `env:"POSTGRES_URL"`
	ConsumerGroup           string        `env:"CONSUMER_GROUP" envDefault:"log-archivers"`
	TraceStdout             bool          `env:"TRACE_STDOUT" envDefault:"false"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxFrameSize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_FRAME_SIZE must be positive, got %d", c.MaxFrameSize))
	}
	if c.IdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("IDLE_TIMEOUT must be positive, got %s", c.IdleTimeout))
	}
	if c.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("MAX_CONNECTIONS must not be negative, got %d", c.MaxConnections))
	}
	if c.RateLimit <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT must be positive, got %d", c.RateLimit))
	}
	if c.RateWindow <= 0 {
		errs = append(errs, fmt.Errorf("RATE_WINDOW must be positive, got %s", c.RateWindow))
	}
	if c.MirrorSpoolDir != "" && (c.MirrorSpoolSegmentBytes <= 0 || c.MirrorSpoolMaxBytes < c.MirrorSpoolSegmentBytes) {
		errs = append(errs, fmt.Errorf("MIRROR_SPOOL_MAX_BYTES (%d) must be at least MIRROR_SPOOL_SEGMENT_BYTES (%d) and both positive", c.MirrorSpoolMaxBytes, c.MirrorSpoolSegmentBytes))
	}
	if c.LogDir == "" {
		errs = append(errs, errors.New("LOG_DIR must not be empty"))
	}
	switch c.RateLimitBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("RATE_LIMIT_BACKEND=redis requires REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimitBackend))
	}
	return errors.Join(errs...)
}
