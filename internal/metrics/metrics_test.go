package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_JobCounters(t *testing.T) {
	m := NewMetrics()
	m.IncrementTotalJobs()
	m.IncrementTotalJobs()
	m.IncrementCompletedJobs()
	m.IncrementFailedJobs()
	m.IncrementCancelledJobs()

	snapshot := m.GetSnapshot()
	assert.Equal(t, int64(2), snapshot["total_jobs"])
	assert.Equal(t, int64(1), snapshot["completed_jobs"])
	assert.Equal(t, int64(1), snapshot["failed_jobs"])
	assert.Equal(t, int64(1), snapshot["cancelled_jobs"])
}

func TestMetrics_DocumentCounters(t *testing.T) {
	m := NewMetrics()
	m.AddDocumentsProcessed(100)
	m.AddDocumentsProcessed(50)
	m.AddDocumentErrors(3)
	m.AddTagsWritten(42)

	snapshot := m.GetSnapshot()
	assert.Equal(t, int64(150), snapshot["documents_processed"])
	assert.Equal(t, int64(3), snapshot["document_errors"])
	assert.Equal(t, int64(42), snapshot["tags_written"])
}

func TestMetrics_SnapshotIsACopy(t *testing.T) {
	m := NewMetrics()
	snapshot := m.GetSnapshot()
	m.IncrementTotalJobs()

	assert.Equal(t, int64(0), snapshot["total_jobs"])
}

func TestMetrics_ConcurrentAccess(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementTotalJobs()
			m.AddDocumentsProcessed(2)
			_ = m.GetSnapshot()
		}()
	}
	wg.Wait()

	snapshot := m.GetSnapshot()
	assert.Equal(t, int64(100), snapshot["total_jobs"])
	assert.Equal(t, int64(200), snapshot["documents_processed"])
}
