package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/app"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/config"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/handler"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/logging"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/metrics"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "reanalyze-api",
		Usage: "HTTP API for submitting and tracking reanalysis jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to config file"},
			&cli.StringFlag{Name: "env", Usage: "path to .env file", Value: ".env"},
			&cli.IntFlag{Name: "port", Usage: "override server.port"},
		},
		Action: run,
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("api exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"), cmd.String("env"))
	if err != nil {
		return err
	}
	if port := cmd.Int("port"); port > 0 {
		cfg.Server.Port = int(port)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	metricsInstance := metrics.NewMetrics()
	jobService := service.NewJobService(
		stores.Jobs,
		stores.Content,
		service.NewRateLimiter(cfg.Trigger.MaxSubmissionsPerMinute),
		metricsInstance,
		cfg.Worker.DefaultBatchSize,
		logger,
	)
	trigger := service.NewTrigger(jobService, cfg.Trigger.BufferSize, logger)
	go trigger.Run(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))
	handler.NewJobHandler(jobService, trigger, metricsInstance, logger).RegisterRoutes(router)

	server := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	c.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	c.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	return c
}
