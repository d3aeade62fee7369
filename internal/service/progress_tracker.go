package service

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/models"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/repository"
)

// DefaultErrorLogCap bounds a job's error log when no cap is configured
const DefaultErrorLogCap = 1000

// docOutcome is the result of processing one document within a batch
type docOutcome struct {
	docID   int64
	tools   []string
	written bool
	err     error
}

// runBaseline is where the current process picked a job up
type runBaseline struct {
	started   time.Time
	processed int64
}

// ProgressTracker owns the resumable cursor and the derived progress fields
// of a running job, and persists them as one unit.
type ProgressTracker struct {
	jobs        repository.JobRepository
	retry       *retrier
	errorLogCap int
	now         func() time.Time
	logger      *slog.Logger

	mu   sync.Mutex
	runs map[string]runBaseline
}

// NewProgressTracker creates a tracker. A non-positive cap selects DefaultErrorLogCap.
func NewProgressTracker(jobs repository.JobRepository, policy RetryPolicy, errorLogCap int, logger *slog.Logger) *ProgressTracker {
	if logger == nil {
		logger = slog.Default()
	}
	if errorLogCap <= 0 {
		errorLogCap = DefaultErrorLogCap
	}
	logger = logger.With("component", "progress_tracker")
	return &ProgressTracker{
		jobs:        jobs,
		retry:       newRetrier(policy, logger),
		errorLogCap: errorLogCap,
		now:         time.Now,
		runs:        make(map[string]runBaseline),
		logger:      logger,
	}
}

// Record folds a batch's outcomes into the job's counters. Outcomes must be
// in ascending document order so the error log stays ordered.
func (t *ProgressTracker) Record(job *models.Job, outcomes []docOutcome) {
	stats := &job.Statistics
	if stats.ToolMentions == nil {
		stats.ToolMentions = map[string]int64{}
	}

	for _, o := range outcomes {
		job.Progress.ProcessedCount++

		if o.err != nil {
			stats.ErrorsCount++
			stats.UncategorizedCount++
			t.appendError(job, models.ErrorLogEntry{
				DocID:     o.docID,
				Error:     o.err.Error(),
				Timestamp: t.now().UTC(),
			})
			continue
		}

		if len(o.tools) == 0 {
			stats.UncategorizedCount++
			continue
		}
		stats.CategorizedCount++
		for _, id := range o.tools {
			stats.ToolMentions[id]++
		}
	}
}

// appendError adds an entry, evicting the oldest entries beyond the cap.
func (t *ProgressTracker) appendError(job *models.Job, entry models.ErrorLogEntry) {
	job.ErrorLog = append(job.ErrorLog, entry)
	if over := len(job.ErrorLog) - t.errorLogCap; over > 0 {
		job.ErrorLog = append([]models.ErrorLogEntry(nil), job.ErrorLog[over:]...)
		job.ErrorLogTruncated = true
		job.ErrorLogDropped += int64(over)
	}
}

// Advance moves the checkpoint forward. It never moves backwards.
func (t *ProgressTracker) Advance(job *models.Job, docID int64) {
	cp := job.Progress.LastCheckpointID
	if cp != nil && *cp >= docID {
		return
	}
	job.Progress.LastCheckpointID = &docID
}

// Recompute refreshes percentage and estimated time remaining.
func (t *ProgressTracker) Recompute(job *models.Job) {
	p := &job.Progress
	if p.ProcessedCount > p.TotalCount {
		p.TotalCount = p.ProcessedCount
	}

	if p.TotalCount == 0 {
		p.Percentage = 0
	} else {
		pct := float64(p.ProcessedCount) / float64(p.TotalCount) * 100
		p.Percentage = math.Round(pct*100) / 100
	}

	p.EstimatedTimeRemaining = nil
	if job.Status != models.StatusRunning {
		t.mu.Lock()
		delete(t.runs, job.ID)
		t.mu.Unlock()
		return
	}

	t.mu.Lock()
	base, ok := t.runs[job.ID]
	t.mu.Unlock()
	if !ok {
		if job.StartTime == nil {
			return
		}
		base = runBaseline{started: *job.StartTime}
	}

	done := p.ProcessedCount - base.processed
	if done <= 0 {
		return
	}
	elapsed := t.now().Sub(base.started).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	eta := elapsed / float64(done) * float64(p.TotalCount-p.ProcessedCount)
	p.EstimatedTimeRemaining = &eta
}

// BeginRun marks the point where this process starts or resumes a job, so
// the time estimate covers only work done since then and excludes downtime.
func (t *ProgressTracker) BeginRun(job *models.Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[job.ID] = runBaseline{started: t.now(), processed: job.Progress.ProcessedCount}
}

// Persist recomputes derived fields and writes the job record. Running out of
// retries is reported as a FatalStoreError.
func (t *ProgressTracker) Persist(ctx context.Context, job *models.Job) error {
	t.Recompute(job)
	snapshot := job.Clone()

	err := t.retry.do(ctx, "persist_checkpoint", func() error {
		return t.jobs.UpdateJob(ctx, snapshot)
	})
	if err != nil {
		return &FatalStoreError{Op: "persist_checkpoint", Err: err}
	}
	job.UpdatedAt = snapshot.UpdatedAt
	return nil
}
