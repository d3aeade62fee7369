// Package config loads service configuration from defaults, an optional YAML
// file, a .env file and REANALYZE_* environment variables.
package config

import (
	"time"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/detector"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/service"
)

// Config is the root configuration shared by the api, worker and admin CLI
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Content  ContentConfig  `mapstructure:"content"`
	Server   ServerConfig   `mapstructure:"server"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Trigger  TriggerConfig  `mapstructure:"trigger"`
	Detector DetectorConfig `mapstructure:"detector"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig locates the SQLite job record store
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// Content drivers
const (
	ContentDriverSQLite   = "sqlite"
	ContentDriverPostgres = "postgres"
)

type ContentConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AllowedOrigins lists CORS origins; empty allows all
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type WorkerConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	Concurrency      int           `mapstructure:"concurrency"`
	DefaultBatchSize int           `mapstructure:"default_batch_size"`
	ErrorLogCap      int           `mapstructure:"error_log_cap"`
	// WritesPerSecond throttles document writes; 0 means unlimited
	WritesPerSecond float64 `mapstructure:"writes_per_second"`
}

type RetryConfig struct {
	MaxRetries      uint64        `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// Policy converts the section into the service retry policy
func (r RetryConfig) Policy() service.RetryPolicy {
	return service.RetryPolicy{
		MaxRetries:      r.MaxRetries,
		InitialInterval: r.InitialInterval,
		MaxInterval:     r.MaxInterval,
	}
}

type TriggerConfig struct {
	BufferSize              int `mapstructure:"buffer_size"`
	MaxSubmissionsPerMinute int `mapstructure:"max_submissions_per_minute"`
}

type DetectorConfig struct {
	Tools []detector.Tool `mapstructure:"tools"`
}
