package metrics

import (
	"sync"
)

// Metrics tracks reanalysis counters for the current process
type Metrics struct {
	mu sync.RWMutex

	totalJobs          int64
	completedJobs      int64
	failedJobs         int64
	cancelledJobs      int64
	documentsProcessed int64
	documentErrors     int64
	tagsWritten        int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncrementTotalJobs increments the created jobs counter
func (m *Metrics) IncrementTotalJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalJobs++
}

// IncrementCompletedJobs increments the completed jobs counter
func (m *Metrics) IncrementCompletedJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completedJobs++
}

// IncrementFailedJobs increments the failed jobs counter
func (m *Metrics) IncrementFailedJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedJobs++
}

// IncrementCancelledJobs increments the cancelled jobs counter
func (m *Metrics) IncrementCancelledJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelledJobs++
}

func (m *Metrics) AddDocumentsProcessed(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documentsProcessed += n
}

func (m *Metrics) AddDocumentErrors(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documentErrors += n
}

func (m *Metrics) AddTagsWritten(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tagsWritten += n
}

// GetSnapshot returns a snapshot of all metrics
func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int64{
		"total_jobs":          m.totalJobs,
		"completed_jobs":      m.completedJobs,
		"failed_jobs":         m.failedJobs,
		"cancelled_jobs":      m.cancelledJobs,
		"documents_processed": m.documentsProcessed,
		"document_errors":     m.documentErrors,
		"tags_written":        m.tagsWritten,
	}
}
