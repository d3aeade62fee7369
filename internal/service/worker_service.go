package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/metrics"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/models"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/repository"
)

// DefaultPollInterval is how long the run loop sleeps when the queue is empty
const DefaultPollInterval = time.Second

// errorBackoffCap bounds the wait between passes that keep failing
const errorBackoffCap = time.Minute

// WorkerService is the single run loop that owns job execution. Only one
// WorkerService may run against a job store at a time.
type WorkerService struct {
	repo         repository.JobRepository
	content      repository.ContentRepository
	processor    *BatchProcessor
	tracker      *ProgressTracker
	retry        *retrier
	metrics      *metrics.Metrics
	pollInterval time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// NewWorkerService creates a new worker service
func NewWorkerService(
	repo repository.JobRepository,
	content repository.ContentRepository,
	processor *BatchProcessor,
	tracker *ProgressTracker,
	policy RetryPolicy,
	pollInterval time.Duration,
	metrics *metrics.Metrics,
	logger *slog.Logger,
) *WorkerService {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	logger = logger.With("component", "worker")
	return &WorkerService{
		repo:         repo,
		content:      content,
		processor:    processor,
		tracker:      tracker,
		retry:        newRetrier(policy, logger),
		metrics:      metrics,
		pollInterval: pollInterval,
		now:          time.Now,
		logger:       logger,
	}
}

// ProcessJobs continuously processes jobs until ctx is cancelled
func (s *WorkerService) ProcessJobs(ctx context.Context) error {
	s.logger.Info("worker started", "poll_interval", s.pollInterval)

	// Consecutive failures back off from the poll interval up to errorBackoffCap.
	errBackoff := backoff.NewExponentialBackOff()
	errBackoff.InitialInterval = s.pollInterval
	errBackoff.MaxInterval = max(s.pollInterval, errorBackoffCap)
	errBackoff.MaxElapsedTime = 0
	errBackoff.Reset()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		wait := s.pollInterval
		worked, err := s.ProcessNext(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait = errBackoff.NextBackOff()
			s.logger.Error("error processing queue", "error", err, "retry_in", wait)
		case worked:
			errBackoff.Reset()
			continue
		default:
			errBackoff.Reset()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// ProcessNext runs at most one job to a terminal state. A job left running by
// a crashed worker is resumed before anything new is claimed. It reports
// whether a job was run. If the job's terminal status cannot be persisted the
// job stays running and the error is returned so the caller backs off.
func (s *WorkerService) ProcessNext(ctx context.Context) (bool, error) {
	running := models.StatusRunning
	orphans, err := s.repo.ListJobs(ctx, models.ListJobsFilter{Status: &running, Limit: 1})
	if err != nil {
		return false, err
	}
	if len(orphans) > 0 {
		job := orphans[0]
		s.logger.Info("resuming interrupted job",
			"job_id", job.ID,
			"processed", job.Progress.ProcessedCount,
			"checkpoint", job.Progress.LastCheckpointID,
		)
		if err := s.runJob(ctx, job); err != nil {
			return false, err
		}
		return true, nil
	}

	if err := s.sweepCancelledQueued(ctx); err != nil {
		return false, err
	}

	job, err := s.repo.ClaimNextJob(ctx, s.now())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	s.logger.Info("job started", "job_id", job.ID, "trigger_type", job.TriggerType, "reason", job.Reason)
	if err := s.runJob(ctx, job); err != nil {
		return false, err
	}
	return true, nil
}

// sweepCancelledQueued finalizes queued jobs whose cancellation was requested
// before they ever started.
func (s *WorkerService) sweepCancelledQueued(ctx context.Context) error {
	queued := models.StatusQueued
	jobs, err := s.repo.ListJobs(ctx, models.ListJobsFilter{Status: &queued})
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if !job.CancelRequested {
			continue
		}
		if err := s.finish(ctx, job, models.StatusCancelled, ""); err != nil {
			return err
		}
	}
	return nil
}

// runJob drives the batch processor until the job reaches a terminal state.
// If ctx is cancelled the job is left running so the next worker resumes it.
// The returned error is a failure to record the terminal status.
func (s *WorkerService) runJob(ctx context.Context, job *models.Job) error {
	logger := s.logger.With("job_id", job.ID)

	if job.StartTime == nil {
		now := s.now().UTC()
		job.StartTime = &now
	}
	s.tracker.BeginRun(job)

	if job.Progress.UpperBoundID == nil {
		if err := s.initProgress(ctx, job); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return s.finish(ctx, job, models.StatusFailed, err.Error())
		}
	}

	for {
		res, err := s.processor.ProcessBatch(ctx, job)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("worker stopping, job left for resume",
					"processed", job.Progress.ProcessedCount,
					"checkpoint", job.Progress.LastCheckpointID,
				)
				return nil
			}
			logger.Error("job failed", "error", err)
			return s.finish(ctx, job, models.StatusFailed, err.Error())
		}

		switch res {
		case BatchExhausted:
			return s.finish(ctx, job, models.StatusCompleted, "")
		case BatchCancelled:
			return s.finish(ctx, job, models.StatusCancelled, "")
		}
	}
}

// initProgress fixes the scan's upper bound and total count, then persists them.
func (s *WorkerService) initProgress(ctx context.Context, job *models.Job) error {
	maxID, err := retryValue(ctx, s.retry, "max_document_id", func() (*int64, error) {
		return s.content.MaxDocumentID(ctx)
	})
	if err != nil {
		return &FatalStoreError{Op: "max_document_id", Err: err}
	}
	if maxID == nil {
		var zero int64
		maxID = &zero
	}
	job.Progress.UpperBoundID = maxID

	total, err := retryValue(ctx, s.retry, "count_documents", func() (int64, error) {
		return s.content.CountDocuments(ctx, contentFilter(job))
	})
	if err != nil {
		return &FatalStoreError{Op: "count_documents", Err: err}
	}
	job.Progress.TotalCount = total

	return s.tracker.Persist(ctx, job)
}

// finish moves the job to a terminal status and persists it.
func (s *WorkerService) finish(ctx context.Context, job *models.Job, status models.JobStatus, reason string) error {
	logger := s.logger.With("job_id", job.ID)

	if err := job.Status.ValidateTransition(status); err != nil {
		logger.Error("refusing status change", "error", err)
		return nil
	}

	now := s.now().UTC()
	job.Status = status
	job.EndTime = &now
	job.FailureReason = reason

	if err := s.tracker.Persist(ctx, job); err != nil {
		logger.Error("failed to persist terminal status", "status", status, "error", err)
		return fmt.Errorf("failed to finish job %s as %s: %w", job.ID, status, err)
	}

	if s.metrics != nil {
		switch status {
		case models.StatusCompleted:
			s.metrics.IncrementCompletedJobs()
		case models.StatusFailed:
			s.metrics.IncrementFailedJobs()
		case models.StatusCancelled:
			s.metrics.IncrementCancelledJobs()
		}
	}

	logger.Info("job finished",
		"status", status,
		"processed", job.Progress.ProcessedCount,
		"total", job.Progress.TotalCount,
		"errors", job.Statistics.ErrorsCount,
		"failure_reason", reason,
	)
	return nil
}
