package repository

import (
	"context"
	"time"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/models"
)

// JobRepository defines the interface for job persistence
type JobRepository interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJobByID(ctx context.Context, id string) (*models.Job, error)
	// UpdateJob replaces the whole record except the cancel request flag,
	// which only RequestCancel may set.
	UpdateJob(ctx context.Context, job *models.Job) error
	ListJobs(ctx context.Context, filter models.ListJobsFilter) ([]*models.Job, error)
	// ClaimNextJob moves the oldest queued job to running, but only while no
	// other job is running. It returns nil when there is nothing to claim.
	ClaimNextJob(ctx context.Context, now time.Time) (*models.Job, error)
	// RequestCancel flags a non-terminal job for cancellation and returns the
	// latest persisted state. Terminal jobs are returned unchanged.
	RequestCancel(ctx context.Context, id string) (*models.Job, error)
	CountByStatus(ctx context.Context, status models.JobStatus) (int, error)
}
