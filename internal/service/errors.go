package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/detector"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/models"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/repository"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidState      = errors.New("invalid job state")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// ValidationError lists the rejected fields of a job request
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InvalidStateError is returned when an operation is not allowed in the job's current status
type InvalidStateError struct {
	JobID  string
	Status models.JobStatus
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s job %s in status %s", e.Op, e.JobID, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// FatalStoreError terminates a job after a batch-level or checkpoint operation ran out of retries
type FatalStoreError struct {
	Op  string
	Err error
}

func (e *FatalStoreError) Error() string {
	return fmt.Sprintf("store operation %s failed: %v", e.Op, e.Err)
}

func (e *FatalStoreError) Unwrap() error { return e.Err }

// PerDocumentError is recorded in a job's error log and never fails the job
type PerDocumentError struct {
	DocID int64
	Op    string
	Err   error
}

func (e *PerDocumentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PerDocumentError) Unwrap() error { return e.Err }

func isTransient(err error) bool {
	return errors.Is(err, repository.ErrTransient) || errors.Is(err, detector.ErrTransient)
}
