package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/models"
)

// ToolLifecycleActor is recorded as triggered_by on automatic jobs
const ToolLifecycleActor = "tool-lifecycle"

// DefaultEventBuffer is the number of tool events held before Publish rejects
const DefaultEventBuffer = 64

// JobCreator is the subset of JobService the trigger depends on
type JobCreator interface {
	CreateJob(ctx context.Context, req *models.CreateJobRequest) (*CreateJobResult, error)
}

// Trigger turns admin requests and tool lifecycle events into queued jobs
type Trigger struct {
	jobs   JobCreator
	events chan models.ToolEvent
	logger *slog.Logger
}

// NewTrigger creates a trigger with a bounded event buffer
func NewTrigger(jobs JobCreator, bufferSize int, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultEventBuffer
	}
	return &Trigger{
		jobs:   jobs,
		events: make(chan models.ToolEvent, bufferSize),
		logger: logger.With("component", "trigger"),
	}
}

// Manual enqueues an admin-requested job
func (t *Trigger) Manual(ctx context.Context, req *models.CreateJobRequest) (*CreateJobResult, error) {
	if req == nil {
		return nil, &ValidationError{Fields: map[string]string{"request": "required"}}
	}
	r := *req
	r.TriggerType = models.TriggerManual
	return t.jobs.CreateJob(ctx, &r)
}

// Publish hands an event to the trigger without blocking. It returns false
// when the buffer is full and the event was dropped.
func (t *Trigger) Publish(evt models.ToolEvent) bool {
	select {
	case t.events <- evt:
		return true
	default:
		t.logger.Warn("tool event dropped, buffer full", "event_type", evt.Type, "tool_ids", evt.ToolIDs)
		return false
	}
}

// Run consumes published events until ctx is cancelled
func (t *Trigger) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-t.events:
			t.handle(ctx, evt)
		}
	}
}

func (t *Trigger) handle(ctx context.Context, evt models.ToolEvent) {
	req, err := requestForEvent(evt)
	if err != nil {
		t.logger.Warn("ignoring tool event", "event_type", evt.Type, "error", err)
		return
	}

	res, err := t.jobs.CreateJob(ctx, req)
	if err != nil {
		t.logger.Error("failed to enqueue automatic job", "event_type", evt.Type, "tool_ids", evt.ToolIDs, "error", err)
		return
	}
	t.logger.Info("automatic job enqueued", "job_id", res.Job.ID, "reason", req.Reason)
}

// requestForEvent builds a job scoped to the tools an event touches
func requestForEvent(evt models.ToolEvent) (*models.CreateJobRequest, error) {
	if len(evt.ToolIDs) == 0 {
		return nil, fmt.Errorf("event %s carries no tool ids", evt.Type)
	}

	var reason string
	switch evt.Type {
	case models.ToolCreated:
		reason = "tool created: " + strings.Join(evt.ToolIDs, ", ")
	case models.ToolActivated:
		reason = "tool activated: " + strings.Join(evt.ToolIDs, ", ")
	case models.ToolMerged:
		if len(evt.ToolIDs) < 2 {
			return nil, fmt.Errorf("merge event needs a source and a target, got %d tool ids", len(evt.ToolIDs))
		}
		n := len(evt.ToolIDs)
		reason = fmt.Sprintf("tool merged: %s into %s", strings.Join(evt.ToolIDs[:n-1], ", "), evt.ToolIDs[n-1])
	default:
		return nil, fmt.Errorf("unknown event type %q", evt.Type)
	}

	return &models.CreateJobRequest{
		ToolIDs:     append([]string(nil), evt.ToolIDs...),
		TriggerType: models.TriggerAutomatic,
		TriggeredBy: ToolLifecycleActor,
		Reason:      reason,
	}, nil
}
