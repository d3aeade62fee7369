// Package commands implements the reanalyze admin CLI.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/app"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/config"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/logging"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/metrics"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/service"
)

// AppContext holds what every command needs
type AppContext struct {
	Config     *config.Config
	Stores     *app.Stores
	JobService *service.JobService
	Logger     *slog.Logger
}

// NewAppContext loads configuration and opens the stores
func NewAppContext(ctx context.Context, cmd *cli.Command) (*AppContext, error) {
	cfg, err := config.Load(cmd.String("config"), cmd.String("env"))
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	jobService := service.NewJobService(
		stores.Jobs,
		stores.Content,
		service.NewRateLimiter(0),
		metrics.NewMetrics(),
		cfg.Worker.DefaultBatchSize,
		logger,
	)

	return &AppContext{Config: cfg, Stores: stores, JobService: jobService, Logger: logger}, nil
}

// Close releases the stores
func (ac *AppContext) Close() {
	if err := ac.Stores.Close(); err != nil {
		ac.Logger.Warn("failed to close stores", "error", err)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseTime accepts RFC 3339 timestamps or plain dates (UTC midnight)
func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid time %q: use RFC 3339 or YYYY-MM-DD", raw)
}
