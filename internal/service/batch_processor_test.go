package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/models"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/repository"
)

func TestMergeTags(t *testing.T) {
	tests := []struct {
		name     string
		current  []string
		detected []string
		scope    []string
		want     []string
	}{
		{name: "unscoped replaces", current: []string{"old"}, detected: []string{"b", "a"}, want: []string{"a", "b"}},
		{name: "unscoped clears", current: []string{"old"}, detected: nil, want: []string{}},
		{name: "scoped adds", current: []string{"beta"}, detected: []string{"alpha", "gamma"}, scope: []string{"alpha"}, want: []string{"alpha", "beta"}},
		{name: "scoped removes", current: []string{"alpha", "beta"}, detected: nil, scope: []string{"alpha"}, want: []string{"beta"}},
		{name: "scoped keeps unrelated", current: []string{"gamma"}, detected: []string{"gamma"}, scope: []string{"alpha"}, want: []string{"gamma"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mergeTags(tt.current, tt.detected, tt.scope))
		})
	}
}

func TestScopeTools(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, scopeTools([]string{"a", "b"}, nil))
	assert.Equal(t, []string{"b"}, scopeTools([]string{"a", "b"}, []string{"b", "c"}))
	assert.Empty(t, scopeTools([]string{"a"}, []string{"c"}))
}

func newTestProcessor(h *harness, det funcDetector) *BatchProcessor {
	tracker := NewProgressTracker(h.jobs, fastRetry(), 0, discardLogger())
	return NewBatchProcessor(h.jobs, h.content, det, tracker, BatchProcessorConfig{Retry: fastRetry()}, h.metrics, discardLogger())
}

// runningJob creates a job and moves it to running with its scan bounds fixed
func runningJob(t *testing.T, h *harness, batchSize int) *models.Job {
	t.Helper()
	id := h.create(t, batchSize)
	job, err := h.jobs.ClaimNextJob(context.Background(), testBase)
	require.NoError(t, err)
	require.Equal(t, id, job.ID)

	maxID, err := h.content.MaxDocumentID(context.Background())
	require.NoError(t, err)
	job.Progress.UpperBoundID = maxID
	job.Progress.TotalCount, err = h.content.CountDocuments(context.Background(), contentFilter(job))
	require.NoError(t, err)
	return job
}

func TestProcessBatch_CheckpointsInOrder(t *testing.T) {
	h := newHarness()
	h.content.seed(25, testBase, evenAlpha)
	job := runningJob(t, h, 10)
	p := newTestProcessor(h, wordDetector())

	var results []BatchResult
	for i := 0; i < 3; i++ {
		res, err := p.ProcessBatch(context.Background(), job)
		require.NoError(t, err)
		results = append(results, res)
		require.NotNil(t, job.Progress.LastCheckpointID)
	}

	assert.Equal(t, []BatchResult{BatchMoreWork, BatchMoreWork, BatchExhausted}, results)
	assert.Equal(t, int64(25), *job.Progress.LastCheckpointID)
	assert.Equal(t, int64(25), job.Progress.ProcessedCount)

	stored, err := h.jobs.GetJobByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), stored.Progress.ProcessedCount)
	assert.Equal(t, int64(25), *stored.Progress.LastCheckpointID)
}

func TestProcessBatch_ExactMultipleEndsWithEmptyBatch(t *testing.T) {
	h := newHarness()
	h.content.seed(20, testBase, evenAlpha)
	job := runningJob(t, h, 10)
	p := newTestProcessor(h, wordDetector())

	for _, want := range []BatchResult{BatchMoreWork, BatchMoreWork, BatchExhausted} {
		res, err := p.ProcessBatch(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, want, res)
	}
	assert.Equal(t, int64(20), job.Progress.ProcessedCount)
}

func TestProcessBatch_ObservesCancelRequest(t *testing.T) {
	h := newHarness()
	h.content.seed(10, testBase, evenAlpha)
	job := runningJob(t, h, 5)
	p := newTestProcessor(h, wordDetector())

	_, err := h.jobs.RequestCancel(context.Background(), job.ID)
	require.NoError(t, err)

	res, err := p.ProcessBatch(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, BatchCancelled, res)
	assert.True(t, job.CancelRequested)
	assert.Equal(t, int64(0), job.Progress.ProcessedCount)
	assert.Empty(t, h.content.scannedAfter(), "no documents are read after a cancel request")
}

func TestProcessBatch_ConflictRereadsAndRetries(t *testing.T) {
	h := newHarness()
	h.content.insert(&models.Document{ID: 1, PublishedAt: testBase, Content: "alpha", DetectedToolIDs: []string{}})
	job := runningJob(t, h, 10)
	job.Parameters.ToolIDs = []string{"alpha"}

	var raced atomic.Bool
	h.content.updateHook = func(id int64) error {
		if raced.CompareAndSwap(false, true) {
			// another writer tags the document between our read and write
			h.content.mu.Lock()
			h.content.docs[id].DetectedToolIDs = []string{"beta"}
			h.content.mu.Unlock()
		}
		return nil
	}

	p := newTestProcessor(h, wordDetector())
	_, err := p.ProcessBatch(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta"}, h.content.tags(1), "the concurrent write survives")
	assert.Equal(t, int64(0), job.Statistics.ErrorsCount)
}

func TestProcessBatch_PersistentConflictBecomesDocumentError(t *testing.T) {
	h := newHarness()
	h.content.insert(&models.Document{ID: 1, PublishedAt: testBase, Content: "alpha", DetectedToolIDs: []string{}})
	job := runningJob(t, h, 10)

	var attempts atomic.Int32
	h.content.updateHook = func(id int64) error {
		attempts.Add(1)
		return repository.ErrConflict
	}

	p := newTestProcessor(h, wordDetector())
	res, err := p.ProcessBatch(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, BatchExhausted, res)

	assert.Equal(t, int32(fastRetry().MaxRetries+1), attempts.Load())
	assert.Equal(t, int64(1), job.Statistics.ErrorsCount)
	require.Len(t, job.ErrorLog, 1)
	assert.Contains(t, job.ErrorLog[0].Error, "update_tags")
}

func TestProcessBatch_TransientWriteIsRetried(t *testing.T) {
	h := newHarness()
	h.content.insert(&models.Document{ID: 1, PublishedAt: testBase, Content: "alpha", DetectedToolIDs: []string{}})
	job := runningJob(t, h, 10)

	var attempts atomic.Int32
	h.content.updateHook = func(id int64) error {
		if attempts.Add(1) == 1 {
			return fmt.Errorf("database is locked: %w", repository.ErrTransient)
		}
		return nil
	}

	p := newTestProcessor(h, wordDetector())
	_, err := p.ProcessBatch(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, h.content.tags(1))
	assert.Equal(t, 1, h.content.writeCount(1))
	assert.Equal(t, int64(1), h.metrics.GetSnapshot()["tags_written"])
}

func TestProcessBatch_ErrorLogFollowsDocumentOrder(t *testing.T) {
	h := newHarness()
	h.content.seed(8, testBase, func(id int64) string { return fmt.Sprintf("doc-%d", id) })
	job := runningJob(t, h, 8)

	det := funcDetector(func(ctx context.Context, content string) ([]string, error) {
		return nil, errors.New("boom " + content)
	})
	p := NewBatchProcessor(h.jobs, h.content, det, NewProgressTracker(h.jobs, fastRetry(), 0, discardLogger()),
		BatchProcessorConfig{Concurrency: 8, Retry: fastRetry()}, nil, discardLogger())

	_, err := p.ProcessBatch(context.Background(), job)
	require.NoError(t, err)

	require.Len(t, job.ErrorLog, 8)
	for i, entry := range job.ErrorLog {
		assert.Equal(t, int64(i+1), entry.DocID)
	}
}

func TestProcessBatch_ContextCancelledSkipsCheckpoint(t *testing.T) {
	h := newHarness()
	h.content.seed(10, testBase, evenAlpha)
	job := runningJob(t, h, 10)

	ctx, cancel := context.WithCancel(context.Background())
	det := funcDetector(func(ctx context.Context, content string) ([]string, error) {
		cancel()
		return nil, ctx.Err()
	})

	p := newTestProcessor(h, det)
	_, err := p.ProcessBatch(ctx, job)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, job.Progress.LastCheckpointID)
	assert.Equal(t, int64(0), job.Progress.ProcessedCount)
}

func TestBatchResult_String(t *testing.T) {
	assert.Equal(t, "more-work", BatchMoreWork.String())
	assert.Equal(t, "exhausted", BatchExhausted.String())
	assert.Equal(t, "cancelled", BatchCancelled.String())
	assert.Equal(t, "unknown", BatchResult(42).String())
}

type mockDetector struct {
	mock.Mock
}

func (m *mockDetector) Classify(ctx context.Context, content string) ([]string, error) {
	args := m.Called(ctx, content)
	tools, _ := args.Get(0).([]string)
	return tools, args.Error(1)
}

func TestProcessBatch_ClassifiesEveryDocumentOnce(t *testing.T) {
	h := newHarness()
	h.content.seed(3, testBase, evenAlpha)
	job := runningJob(t, h, 10)

	det := &mockDetector{}
	det.On("Classify", mock.Anything, "alpha").Return([]string{"alpha"}, nil).Once()
	det.On("Classify", mock.Anything, "nothing here").Return(nil, nil).Twice()

	tracker := NewProgressTracker(h.jobs, fastRetry(), 0, discardLogger())
	p := NewBatchProcessor(h.jobs, h.content, det, tracker, BatchProcessorConfig{Retry: fastRetry()}, h.metrics, discardLogger())

	res, err := p.ProcessBatch(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, BatchExhausted, res)

	det.AssertExpectations(t)
	assert.Equal(t, int64(1), job.Statistics.ToolMentions["alpha"])
	assert.Equal(t, int64(1), job.Statistics.CategorizedCount)
	assert.Equal(t, int64(2), job.Statistics.UncategorizedCount)
}
