package models

import (
	"fmt"
	"time"
)

// JobStatus represents the state of a reanalysis job
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// ParseJobStatus converts a string to a JobStatus. The second return value is
// false for unknown values.
func ParseJobStatus(s string) (JobStatus, bool) {
	switch JobStatus(s) {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return JobStatus(s), true
	default:
		return "", false
	}
}

func (s JobStatus) String() string { return string(s) }

// IsTerminal reports whether no further transition can leave this status.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ValidateTransition checks if a status transition is valid and returns an error if not.
func (s JobStatus) ValidateTransition(target JobStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid job status transition from %s to %s", s, target)
	}
	return nil
}

func (s JobStatus) isValidTransition(target JobStatus) bool {
	switch s {
	case StatusQueued:
		return target == StatusRunning || target == StatusCancelled
	case StatusRunning:
		return target == StatusCompleted || target == StatusFailed || target == StatusCancelled
	default:
		return false
	}
}

// TriggerType is the originating cause of a job
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerAutomatic TriggerType = "automatic"
)

// DefaultBatchSize is used when a job is created without an explicit batch size
const DefaultBatchSize = 100

// MaxBatchSize is the largest batch size a job may request
const MaxBatchSize = 10000

// JobParameters are fixed at creation and never change afterwards
type JobParameters struct {
	DateFrom  *time.Time `json:"date_from,omitempty"`
	DateTo    *time.Time `json:"date_to,omitempty"`
	ToolIDs   []string   `json:"tool_ids,omitempty"`
	BatchSize int        `json:"batch_size"`
}

// JobProgress holds the resumable cursor and counters of a job
type JobProgress struct {
	TotalCount     int64   `json:"total_count"`
	ProcessedCount int64   `json:"processed_count"`
	Percentage     float64 `json:"percentage"`
	// LastCheckpointID is the highest document id fully accounted for.
	LastCheckpointID *int64 `json:"last_checkpoint_id"`
	// UpperBoundID caps the scan at the newest document seen when the job started.
	UpperBoundID           *int64   `json:"upper_bound_id,omitempty"`
	EstimatedTimeRemaining *float64 `json:"estimated_time_remaining"`
}

// JobStatistics aggregates detection results
type JobStatistics struct {
	ToolMentions       map[string]int64 `json:"tool_mentions"`
	ErrorsCount        int64            `json:"errors_count"`
	CategorizedCount   int64            `json:"categorized_count"`
	UncategorizedCount int64            `json:"uncategorized_count"`
}

// ErrorLogEntry records a single document that could not be processed
type ErrorLogEntry struct {
	DocID     int64     `json:"doc_id"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Job represents one run of the reanalysis process
type Job struct {
	ID                string          `json:"id"`
	Status            JobStatus       `json:"status"`
	TriggerType       TriggerType     `json:"trigger_type"`
	TriggeredBy       string          `json:"triggered_by"`
	Reason            string          `json:"reason,omitempty"`
	Parameters        JobParameters   `json:"parameters"`
	Progress          JobProgress     `json:"progress"`
	Statistics        JobStatistics   `json:"statistics"`
	ErrorLog          []ErrorLogEntry `json:"error_log"`
	ErrorLogTruncated bool            `json:"error_log_truncated"`
	ErrorLogDropped   int64           `json:"error_log_dropped,omitempty"`
	CancelRequested   bool            `json:"cancel_requested"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	StartTime         *time.Time      `json:"start_time"`
	EndTime           *time.Time      `json:"end_time"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Clone returns a deep copy so callers never share mutable state with the run loop.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Parameters.DateFrom = cloneTime(j.Parameters.DateFrom)
	c.Parameters.DateTo = cloneTime(j.Parameters.DateTo)
	if j.Parameters.ToolIDs != nil {
		c.Parameters.ToolIDs = append([]string(nil), j.Parameters.ToolIDs...)
	}
	c.Progress.LastCheckpointID = cloneInt64(j.Progress.LastCheckpointID)
	c.Progress.UpperBoundID = cloneInt64(j.Progress.UpperBoundID)
	if j.Progress.EstimatedTimeRemaining != nil {
		v := *j.Progress.EstimatedTimeRemaining
		c.Progress.EstimatedTimeRemaining = &v
	}
	c.Statistics.ToolMentions = make(map[string]int64, len(j.Statistics.ToolMentions))
	for k, v := range j.Statistics.ToolMentions {
		c.Statistics.ToolMentions[k] = v
	}
	c.ErrorLog = append([]ErrorLogEntry(nil), j.ErrorLog...)
	c.StartTime = cloneTime(j.StartTime)
	c.EndTime = cloneTime(j.EndTime)
	return &c
}

// CreateJobRequest represents a request to create a job
type CreateJobRequest struct {
	DateFrom    *time.Time  `json:"date_from,omitempty"`
	DateTo      *time.Time  `json:"date_to,omitempty"`
	ToolIDs     []string    `json:"tool_ids,omitempty" validate:"omitempty,dive,required"`
	BatchSize   *int        `json:"batch_size,omitempty" validate:"omitempty,gt=0,lte=10000"`
	TriggerType TriggerType `json:"trigger_type" validate:"required,oneof=manual automatic"`
	TriggeredBy string      `json:"triggered_by" validate:"required"`
	Reason      string      `json:"reason,omitempty" validate:"required_if=TriggerType automatic"`
}

// ListJobsFilter selects a page of jobs, oldest first
type ListJobsFilter struct {
	Status *JobStatus
	Limit  int
	Offset int
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
