package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/app"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/config"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/detector"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/logging"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/metrics"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "reanalyze-worker",
		Usage: "run loop that executes queued reanalysis jobs one at a time",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to config file"},
			&cli.StringFlag{Name: "env", Usage: "path to .env file", Value: ".env"},
			&cli.StringSliceFlag{Name: "debug-job", Usage: "log at debug level for the given job id (repeatable)"},
			&cli.BoolFlag{Name: "once", Usage: "drain the queue and exit instead of polling"},
		},
		Action: run,
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"), cmd.String("env"))
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	for _, id := range cmd.StringSlice("debug-job") {
		logging.AddJobFilter(id)
	}

	if len(cfg.Detector.Tools) == 0 {
		return errors.New("detector.tools is empty; refusing to rewrite tags with no tracked tools")
	}
	det, err := detector.NewKeywordDetector(cfg.Detector.Tools)
	if err != nil {
		return fmt.Errorf("failed to build detector: %w", err)
	}

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	policy := cfg.Retry.Policy()
	metricsInstance := metrics.NewMetrics()
	tracker := service.NewProgressTracker(stores.Jobs, policy, cfg.Worker.ErrorLogCap, logger)
	processor := service.NewBatchProcessor(stores.Jobs, stores.Content, det, tracker, service.BatchProcessorConfig{
		Concurrency:     cfg.Worker.Concurrency,
		WritesPerSecond: cfg.Worker.WritesPerSecond,
		Retry:           policy,
	}, metricsInstance, logger)
	worker := service.NewWorkerService(
		stores.Jobs,
		stores.Content,
		processor,
		tracker,
		policy,
		cfg.Worker.PollInterval,
		metricsInstance,
		logger,
	)

	defer func() {
		logger.Info("worker stopped", "metrics", metricsInstance.GetSnapshot())
	}()

	if cmd.Bool("once") {
		for ctx.Err() == nil {
			ran, err := worker.ProcessNext(ctx)
			if err != nil {
				return err
			}
			if !ran {
				return nil
			}
		}
		return nil
	}

	if err := worker.ProcessJobs(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker error: %w", err)
	}
	return nil
}
