package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/models"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/service"
)

const envPrefix = "REANALYZE"

// Load reads configuration. envFile is loaded into the process environment
// first when it exists; configPath falls back to REANALYZE_CONFIG and then to
// config.yaml / config.yml in the working directory.
func Load(configPath, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath == "" {
		configPath = os.Getenv(envPrefix + "_CONFIG")
	}
	if configPath == "" {
		for _, p := range []string{"config.yaml", "config.yml"} {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.path", "./reanalysis_jobs.db")

	v.SetDefault("content.driver", ContentDriverSQLite)
	v.SetDefault("content.sqlite_path", "./posts.db")
	v.SetDefault("content.postgres_dsn", "")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("worker.poll_interval", service.DefaultPollInterval)
	v.SetDefault("worker.concurrency", service.DefaultConcurrency)
	v.SetDefault("worker.default_batch_size", models.DefaultBatchSize)
	v.SetDefault("worker.error_log_cap", service.DefaultErrorLogCap)
	v.SetDefault("worker.writes_per_second", 0.0)

	policy := service.DefaultRetryPolicy()
	v.SetDefault("retry.max_retries", policy.MaxRetries)
	v.SetDefault("retry.initial_interval", policy.InitialInterval)
	v.SetDefault("retry.max_interval", policy.MaxInterval)

	v.SetDefault("trigger.buffer_size", service.DefaultEventBuffer)
	v.SetDefault("trigger.max_submissions_per_minute", 10)

	v.SetDefault("detector.tools", []map[string]any{})
}
