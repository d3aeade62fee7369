package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/models"
)

// Validate checks the configuration for enum and range errors
func (c *Config) Validate() error {
	if err := c.validateLog(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.validateStores(); err != nil {
		return fmt.Errorf("stores: %w", err)
	}
	if err := c.validateServer(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.validateWorker(); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	if err := c.validateRetry(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if c.Trigger.BufferSize <= 0 {
		return errors.New("trigger: buffer_size must be positive")
	}
	if c.Trigger.MaxSubmissionsPerMinute < 0 {
		return errors.New("trigger: max_submissions_per_minute must not be negative")
	}
	if err := c.validateDetector(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	return nil
}

func (c *Config) validateLog() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown format %q", c.Log.Format)
	}
	return nil
}

func (c *Config) validateStores() error {
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	switch c.Content.Driver {
	case ContentDriverSQLite:
		if c.Content.SQLitePath == "" {
			return errors.New("content.sqlite_path is required for the sqlite driver")
		}
	case ContentDriverPostgres:
		if c.Content.PostgresDSN == "" {
			return errors.New("content.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown content driver %q", c.Content.Driver)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown_timeout must be positive")
	}
	return nil
}

func (c *Config) validateWorker() error {
	w := c.Worker
	if w.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if w.Concurrency <= 0 {
		return errors.New("concurrency must be positive")
	}
	if w.DefaultBatchSize <= 0 || w.DefaultBatchSize > models.MaxBatchSize {
		return fmt.Errorf("default_batch_size must be in 1..%d", models.MaxBatchSize)
	}
	if w.ErrorLogCap <= 0 {
		return errors.New("error_log_cap must be positive")
	}
	if w.WritesPerSecond < 0 {
		return errors.New("writes_per_second must not be negative")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.InitialInterval <= 0 {
		return errors.New("initial_interval must be positive")
	}
	if c.Retry.MaxInterval < c.Retry.InitialInterval {
		return errors.New("max_interval must not be less than initial_interval")
	}
	return nil
}

func (c *Config) validateDetector() error {
	seen := make(map[string]bool, len(c.Detector.Tools))
	for i, tool := range c.Detector.Tools {
		if tool.ID == "" {
			return fmt.Errorf("tools[%d]: id is required", i)
		}
		if seen[tool.ID] {
			return fmt.Errorf("tools[%d]: duplicate id %q", i, tool.ID)
		}
		seen[tool.ID] = true
		if len(tool.Keywords) == 0 {
			return fmt.Errorf("tools[%d]: %s has no keywords", i, tool.ID)
		}
	}
	return nil
}
