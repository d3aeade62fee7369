package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/metrics"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/models"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/repository"
)

// Page sizes for ListJobs
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// CreateJobResult is returned by CreateJob
type CreateJobResult struct {
	Job *models.Job
	// EstimatedTotal is the number of documents matching the job's date range
	// at creation time; the exact total is fixed when the job starts.
	EstimatedTotal int64
}

// JobService accepts job creation, cancellation and status reads. It never
// changes a job's status; that belongs to the worker's run loop.
type JobService struct {
	repo             repository.JobRepository
	content          repository.ContentRepository
	rateLimiter      *RateLimiter
	metrics          *metrics.Metrics
	validate         *validator.Validate
	defaultBatchSize int
	now              func() time.Time
	logger           *slog.Logger
}

// NewJobService creates a new job service
func NewJobService(
	repo repository.JobRepository,
	content repository.ContentRepository,
	rateLimiter *RateLimiter,
	metrics *metrics.Metrics,
	defaultBatchSize int,
	logger *slog.Logger,
) *JobService {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultBatchSize <= 0 {
		defaultBatchSize = models.DefaultBatchSize
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &JobService{
		repo:             repo,
		content:          content,
		rateLimiter:      rateLimiter,
		metrics:          metrics,
		validate:         validate,
		defaultBatchSize: defaultBatchSize,
		now:              time.Now,
		logger:           logger.With("component", "job_service"),
	}
}

// CreateJob validates the request and appends a queued job. It returns as soon
// as the job is persisted.
func (s *JobService) CreateJob(ctx context.Context, req *models.CreateJobRequest) (*CreateJobResult, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	if req.TriggerType == models.TriggerManual {
		if err := s.rateLimiter.CheckSubmissionRate(ctx, req.TriggeredBy); err != nil {
			return nil, err
		}
	}

	batchSize := s.defaultBatchSize
	if req.BatchSize != nil {
		batchSize = *req.BatchSize
	}

	var toolIDs []string
	if len(req.ToolIDs) > 0 {
		toolIDs = models.NormalizeTags(req.ToolIDs)
	}

	job := &models.Job{
		ID:          uuid.New().String(),
		Status:      models.StatusQueued,
		TriggerType: req.TriggerType,
		TriggeredBy: req.TriggeredBy,
		Reason:      req.Reason,
		Parameters: models.JobParameters{
			DateFrom:  utcPtr(req.DateFrom),
			DateTo:    utcPtr(req.DateTo),
			ToolIDs:   toolIDs,
			BatchSize: batchSize,
		},
		Statistics: models.JobStatistics{ToolMentions: map[string]int64{}},
		ErrorLog:   []models.ErrorLogEntry{},
		CreatedAt:  s.now().UTC(),
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	var estimate int64
	if s.content != nil {
		n, err := s.content.CountDocuments(ctx, contentFilter(job))
		if err != nil {
			s.logger.Warn("failed to estimate document count", "job_id", job.ID, "error", err)
		} else {
			estimate = n
		}
	}

	if s.metrics != nil {
		s.metrics.IncrementTotalJobs()
	}
	s.logger.Info("job queued",
		"job_id", job.ID,
		"trigger_type", job.TriggerType,
		"triggered_by", job.TriggeredBy,
		"reason", job.Reason,
		"batch_size", batchSize,
		"estimated_total", estimate,
	)

	return &CreateJobResult{Job: job, EstimatedTotal: estimate}, nil
}

func (s *JobService) validateRequest(req *models.CreateJobRequest) error {
	if req == nil {
		return &ValidationError{Fields: map[string]string{"request": "required"}}
	}

	fields := map[string]string{}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("failed to validate request: %w", err)
		}
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
	}

	if req.DateFrom != nil && req.DateTo != nil && req.DateFrom.After(*req.DateTo) {
		fields["date_from"] = "must not be after date_to"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// GetJob returns the latest persisted snapshot of a job
func (s *JobService) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.repo.GetJobByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs retrieves a page of jobs, oldest first. A zero limit selects
// DefaultListLimit; larger limits are capped at MaxListLimit.
func (s *JobService) ListJobs(ctx context.Context, filter models.ListJobsFilter) ([]*models.Job, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = DefaultListLimit
	case filter.Limit > MaxListLimit:
		filter.Limit = MaxListLimit
	}

	jobs, err := s.repo.ListJobs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// CancelJob flags a queued or running job for cancellation. The run loop
// honours the flag at the next batch boundary. Cancelling a terminal job
// fails with an InvalidStateError; repeating a cancel on a live job succeeds.
func (s *JobService) CancelJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, &InvalidStateError{JobID: id, Status: job.Status, Op: "cancel"}
	}

	updated, err := s.repo.RequestCancel(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to cancel job: %w", err)
	}
	// The job may have finished between the read and the flag write.
	if updated.Status.IsTerminal() && !updated.CancelRequested {
		return nil, &InvalidStateError{JobID: id, Status: updated.Status, Op: "cancel"}
	}

	s.logger.Info("job cancellation requested", "job_id", id, "status", updated.Status)
	return updated, nil
}

// QueueDepth reports how many jobs are waiting and running
func (s *JobService) QueueDepth(ctx context.Context) (queued, running int, err error) {
	if queued, err = s.repo.CountByStatus(ctx, models.StatusQueued); err != nil {
		return 0, 0, fmt.Errorf("failed to count queued jobs: %w", err)
	}
	if running, err = s.repo.CountByStatus(ctx, models.StatusRunning); err != nil {
		return 0, 0, fmt.Errorf("failed to count running jobs: %w", err)
	}
	return queued, running, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
