package service

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/detector"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/metrics"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/models"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/repository"
)

// BatchResult tells the run loop what to do after a batch
type BatchResult int

const (
	BatchMoreWork BatchResult = iota
	BatchExhausted
	BatchCancelled
)

func (r BatchResult) String() string {
	switch r {
	case BatchMoreWork:
		return "more-work"
	case BatchExhausted:
		return "exhausted"
	case BatchCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// DefaultConcurrency is the size of the per-batch worker pool
const DefaultConcurrency = 4

// BatchProcessorConfig tunes a BatchProcessor
type BatchProcessorConfig struct {
	Concurrency int
	// WritesPerSecond throttles tag writes; zero means unlimited.
	WritesPerSecond float64
	Retry           RetryPolicy
}

// BatchProcessor advances a running job by one bounded slice of documents
type BatchProcessor struct {
	jobs         repository.JobRepository
	content      repository.ContentRepository
	detector     detector.Detector
	tracker      *ProgressTracker
	retry        *retrier
	concurrency  int
	writeLimiter *rate.Limiter
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(
	jobs repository.JobRepository,
	content repository.ContentRepository,
	det detector.Detector,
	tracker *ProgressTracker,
	cfg BatchProcessorConfig,
	metrics *metrics.Metrics,
	logger *slog.Logger,
) *BatchProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "batch_processor")

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	limit := rate.Inf
	burst := 1
	if cfg.WritesPerSecond > 0 {
		limit = rate.Limit(cfg.WritesPerSecond)
		burst = max(1, int(cfg.WritesPerSecond))
	}

	return &BatchProcessor{
		jobs:         jobs,
		content:      content,
		detector:     det,
		tracker:      tracker,
		retry:        newRetrier(cfg.Retry, logger),
		concurrency:  concurrency,
		writeLimiter: rate.NewLimiter(limit, burst),
		metrics:      metrics,
		logger:       logger,
	}
}

// contentFilter derives the document selection of a job. Tool ids are not
// part of it: a job scoped to a tool revisits every post in range, since
// posts that now mention a new tool carry no tag for it yet.
func contentFilter(job *models.Job) models.ContentFilter {
	return models.ContentFilter{
		From:  job.Parameters.DateFrom,
		To:    job.Parameters.DateTo,
		MaxID: job.Progress.UpperBoundID,
	}
}

// ProcessBatch checks for cancellation, then reads, classifies, writes and
// checkpoints the next batch of the job. Errors returned here are fatal to the
// job unless ctx itself was cancelled.
func (p *BatchProcessor) ProcessBatch(ctx context.Context, job *models.Job) (BatchResult, error) {
	logger := p.logger.With("job_id", job.ID)

	latest, err := retryValue(ctx, p.retry, "read_job", func() (*models.Job, error) {
		return p.jobs.GetJobByID(ctx, job.ID)
	})
	if err != nil {
		return 0, &FatalStoreError{Op: "read_job", Err: err}
	}
	if latest.CancelRequested {
		job.CancelRequested = true
		return BatchCancelled, nil
	}

	batchSize := job.Parameters.BatchSize
	if batchSize <= 0 {
		batchSize = models.DefaultBatchSize
	}

	docs, err := retryValue(ctx, p.retry, "scan_documents", func() ([]*models.Document, error) {
		return p.content.ScanDocuments(ctx, contentFilter(job), job.Progress.LastCheckpointID, batchSize)
	})
	if err != nil {
		return 0, &FatalStoreError{Op: "scan_documents", Err: err}
	}
	if len(docs) == 0 {
		return BatchExhausted, nil
	}

	outcomes := make([]docOutcome, len(docs))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			outcomes[i] = p.processDocument(ctx, job, doc)
			return nil
		})
	}
	_ = g.Wait()

	// A shutdown mid-batch must not checkpoint documents that were cut short.
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	maxID := docs[0].ID
	var written, failed int64
	for i, o := range outcomes {
		maxID = max(maxID, docs[i].ID)
		if o.written {
			written++
		}
		if o.err != nil {
			failed++
			logger.Warn("document failed", "doc_id", o.docID, "error", o.err)
		}
	}

	p.tracker.Record(job, outcomes)
	p.tracker.Advance(job, maxID)
	if err := p.tracker.Persist(ctx, job); err != nil {
		return 0, err
	}

	if p.metrics != nil {
		p.metrics.AddDocumentsProcessed(int64(len(docs)))
		p.metrics.AddDocumentErrors(failed)
		p.metrics.AddTagsWritten(written)
	}
	logger.Debug("batch processed",
		"documents", len(docs),
		"written", written,
		"errors", failed,
		"checkpoint", maxID,
		"processed", job.Progress.ProcessedCount,
		"total", job.Progress.TotalCount,
	)

	if len(docs) < batchSize {
		return BatchExhausted, nil
	}
	return BatchMoreWork, nil
}

// processDocument classifies one document and writes its tags if they changed.
func (p *BatchProcessor) processDocument(ctx context.Context, job *models.Job, doc *models.Document) docOutcome {
	out := docOutcome{docID: doc.ID}

	detected, err := retryValue(ctx, p.retry, "classify", func() ([]string, error) {
		return p.detector.Classify(ctx, doc.Content)
	})
	if err != nil {
		out.err = &PerDocumentError{DocID: doc.ID, Op: "classify", Err: err}
		return out
	}
	detected = models.NormalizeTags(detected)
	out.tools = scopeTools(detected, job.Parameters.ToolIDs)

	written, err := p.writeTags(ctx, job, doc, detected)
	if err != nil {
		out.err = &PerDocumentError{DocID: doc.ID, Op: "update_tags", Err: err}
		return out
	}
	out.written = written
	return out
}

// writeTags issues a conditional update only when the merged value differs from
// the stored one. Conflicts re-read the document and try again within the retry budget.
func (p *BatchProcessor) writeTags(ctx context.Context, job *models.Job, doc *models.Document, detected []string) (bool, error) {
	current := doc.DetectedToolIDs
	for attempt := uint64(0); ; attempt++ {
		desired := mergeTags(current, detected, job.Parameters.ToolIDs)
		if models.TagsEqual(desired, current) {
			return false, nil
		}

		if err := p.writeLimiter.Wait(ctx); err != nil {
			return false, err
		}

		expected := current
		err := p.retry.do(ctx, "update_tags", func() error {
			return p.content.UpdateDocumentTags(ctx, doc.ID, desired, expected)
		})
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, repository.ErrConflict) || attempt >= p.retry.policy.MaxRetries {
			return false, err
		}

		fresh, err := retryValue(ctx, p.retry, "get_document", func() (*models.Document, error) {
			return p.content.GetDocument(ctx, doc.ID)
		})
		if err != nil {
			return false, err
		}
		current = fresh.DetectedToolIDs
	}
}

// scopeTools keeps the detected tools a job is responsible for.
func scopeTools(detected, scope []string) []string {
	if len(scope) == 0 {
		return detected
	}
	in := make(map[string]struct{}, len(scope))
	for _, id := range scope {
		in[id] = struct{}{}
	}
	var out []string
	for _, id := range detected {
		if _, ok := in[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// mergeTags computes the new tag value. Without a scope the detector output
// replaces the tags; with a scope only the scoped tools are added or removed.
func mergeTags(current, detected, scope []string) []string {
	if len(scope) == 0 {
		return models.NormalizeTags(detected)
	}
	in := make(map[string]struct{}, len(scope))
	for _, id := range scope {
		in[id] = struct{}{}
	}
	merged := make([]string, 0, len(current)+len(detected))
	for _, id := range current {
		if _, ok := in[id]; !ok {
			merged = append(merged, id)
		}
	}
	merged = append(merged, scopeTools(detected, scope)...)
	return models.NormalizeTags(merged)
}
