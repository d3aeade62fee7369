// Package app opens the stores shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/config"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/repository"
)

// Stores holds the job record store and the content store
type Stores struct {
	Jobs    *repository.SQLiteRepository
	Content repository.ContentRepository
	closers []func() error
}

// OpenStores connects to the configured job and content stores
func OpenStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	jobs, err := repository.NewSQLiteRepository(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}
	s := &Stores{Jobs: jobs, closers: []func() error{jobs.Close}}

	switch cfg.Content.Driver {
	case config.ContentDriverPostgres:
		pg, err := repository.NewPostgresContentRepository(ctx, cfg.Content.PostgresDSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to connect to content store: %w", err)
		}
		s.Content = pg
		s.closers = append(s.closers, pg.Close)
	default:
		lite, err := repository.NewSQLiteContentRepository(cfg.Content.SQLitePath)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open content store: %w", err)
		}
		s.Content = lite
		s.closers = append(s.closers, lite.Close)
	}

	logger.Info("stores opened",
		"job_store", cfg.Database.Path,
		"content_driver", cfg.Content.Driver,
	)
	return s, nil
}

// SQLiteContent returns the content store when it is backed by SQLite
func (s *Stores) SQLiteContent() (*repository.SQLiteContentRepository, bool) {
	lite, ok := s.Content.(*repository.SQLiteContentRepository)
	return lite, ok
}

// Close releases every opened store
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
