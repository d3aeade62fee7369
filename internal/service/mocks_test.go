package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/models"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

// mockJobRepository is an in-memory JobRepository
type mockJobRepository struct {
	mu    sync.Mutex
	jobs  map[string]*models.Job
	order []string

	// snapshots holds a copy of every successful UpdateJob
	snapshots []*models.Job
	// updateHook runs before a write is applied; a non-nil error aborts it
	updateHook func(job *models.Job) error
	getHook    func(id string) error
	createErr  error
}

func newMockJobRepository() *mockJobRepository {
	return &mockJobRepository{jobs: make(map[string]*models.Job)}
}

func (m *mockJobRepository) CreateJob(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	job.UpdatedAt = job.CreatedAt
	m.jobs[job.ID] = job.Clone()
	m.order = append(m.order, job.ID)
	return nil
}

func (m *mockJobRepository) GetJobByID(ctx context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	hook := m.getHook
	m.mu.Unlock()
	if hook != nil {
		if err := hook(id); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return job.Clone(), nil
}

func (m *mockJobRepository) UpdateJob(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	hook := m.updateHook
	m.mu.Unlock()
	if hook != nil {
		if err := hook(job.Clone()); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[job.ID]
	if !ok {
		return repository.ErrNotFound
	}
	job.UpdatedAt = time.Now().UTC()
	next := job.Clone()
	next.CancelRequested = stored.CancelRequested
	m.jobs[job.ID] = next
	m.snapshots = append(m.snapshots, next.Clone())
	return nil
}

func (m *mockJobRepository) ListJobs(ctx context.Context, filter models.ListJobsFilter) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Job
	for _, id := range m.order {
		job := m.jobs[id]
		if filter.Status != nil && job.Status != *filter.Status {
			continue
		}
		out = append(out, job.Clone())
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *mockJobRepository) ClaimNextJob(ctx context.Context, now time.Time) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.order {
		if m.jobs[id].Status == models.StatusRunning {
			return nil, nil
		}
	}
	for _, id := range m.order {
		job := m.jobs[id]
		if job.Status != models.StatusQueued || job.CancelRequested {
			continue
		}
		start := now.UTC()
		job.Status = models.StatusRunning
		job.StartTime = &start
		return job.Clone(), nil
	}
	return nil, nil
}

func (m *mockJobRepository) RequestCancel(ctx context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !job.Status.IsTerminal() {
		job.CancelRequested = true
	}
	return job.Clone(), nil
}

func (m *mockJobRepository) CountByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, job := range m.jobs {
		if job.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *mockJobRepository) history() []*models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Job(nil), m.snapshots...)
}

// mockContentRepository is an in-memory ContentRepository
type mockContentRepository struct {
	mu   sync.Mutex
	docs map[int64]*models.Document

	scans  []*int64
	writes map[int64]int

	// updateHook runs before a tag write; a non-nil error aborts it
	updateHook func(id int64) error
	scanErr    error
	countErr   error
}

func newMockContentRepository() *mockContentRepository {
	return &mockContentRepository{
		docs:   make(map[int64]*models.Document),
		writes: make(map[int64]int),
	}
}

// seed adds n documents with ids 1..n published one minute apart from base
func (m *mockContentRepository) seed(n int, base time.Time, content func(id int64) string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 1; i <= n; i++ {
		id := int64(i)
		m.docs[id] = &models.Document{
			ID:              id,
			PublishedAt:     base.Add(time.Duration(i) * time.Minute),
			Content:         content(id),
			DetectedToolIDs: []string{},
		}
	}
}

func (m *mockContentRepository) matching(filter models.ContentFilter, afterID *int64) []*models.Document {
	var out []*models.Document
	for _, doc := range m.docs {
		if filter.From != nil && doc.PublishedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && doc.PublishedAt.After(*filter.To) {
			continue
		}
		if filter.MaxID != nil && doc.ID > *filter.MaxID {
			continue
		}
		if afterID != nil && doc.ID <= *afterID {
			continue
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *mockContentRepository) CountDocuments(ctx context.Context, filter models.ContentFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	return int64(len(m.matching(filter, nil))), nil
}

func (m *mockContentRepository) ScanDocuments(ctx context.Context, filter models.ContentFilter, afterID *int64, limit int) ([]*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	if afterID != nil {
		v := *afterID
		m.scans = append(m.scans, &v)
	} else {
		m.scans = append(m.scans, nil)
	}

	docs := m.matching(filter, afterID)
	if len(docs) > limit {
		docs = docs[:limit]
	}
	out := make([]*models.Document, len(docs))
	for i, d := range docs {
		c := *d
		c.DetectedToolIDs = append([]string{}, d.DetectedToolIDs...)
		out[i] = &c
	}
	return out, nil
}

func (m *mockContentRepository) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *doc
	c.DetectedToolIDs = append([]string{}, doc.DetectedToolIDs...)
	return &c, nil
}

func (m *mockContentRepository) UpdateDocumentTags(ctx context.Context, id int64, newTags, expected []string) error {
	m.mu.Lock()
	hook := m.updateHook
	m.mu.Unlock()
	if hook != nil {
		if err := hook(id); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !models.TagsEqual(doc.DetectedToolIDs, expected) {
		return repository.ErrConflict
	}
	doc.DetectedToolIDs = models.NormalizeTags(newTags)
	m.writes[id]++
	return nil
}

func (m *mockContentRepository) MaxDocumentID(ctx context.Context) (*int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var maxID *int64
	for id := range m.docs {
		if maxID == nil || id > *maxID {
			v := id
			maxID = &v
		}
	}
	return maxID, nil
}

func (m *mockContentRepository) insert(doc *models.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
}

func (m *mockContentRepository) tags(id int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.docs[id].DetectedToolIDs...)
}

func (m *mockContentRepository) writeCount(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[id]
}

func (m *mockContentRepository) scannedAfter() []*int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*int64(nil), m.scans...)
}

// funcDetector adapts a function to detector.Detector
type funcDetector func(ctx context.Context, content string) ([]string, error)

func (f funcDetector) Classify(ctx context.Context, content string) ([]string, error) {
	return f(ctx, content)
}

// wordDetector reports every whitespace-separated word of the content as a tool
func wordDetector() funcDetector {
	return func(ctx context.Context, content string) ([]string, error) {
		return strings.Fields(content), nil
	}
}

// assertProgressInvariants checks the counters every persisted snapshot must satisfy
func assertProgressInvariants(t *testing.T, job *models.Job) {
	t.Helper()
	p := job.Progress
	s := job.Statistics
	assert.GreaterOrEqual(t, p.ProcessedCount, int64(0))
	assert.LessOrEqual(t, p.ProcessedCount, p.TotalCount, "processed must not exceed total")
	assert.GreaterOrEqual(t, p.Percentage, 0.0)
	assert.LessOrEqual(t, p.Percentage, 100.0)
	assert.LessOrEqual(t, s.ErrorsCount, p.ProcessedCount)
	assert.Equal(t, p.ProcessedCount, s.CategorizedCount+s.UncategorizedCount, "every processed document is categorized or not")
	if job.Status.IsTerminal() {
		assert.NotNil(t, job.EndTime)
		assert.Nil(t, p.EstimatedTimeRemaining)
	}
}
