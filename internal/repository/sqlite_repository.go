package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteRepository implements JobRepository using SQLite
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite repository
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

func openSQLite(dbPath string) (*sql.DB, error) {
	// _txlock=immediate takes the write lock at BEGIN so claim transactions cannot interleave.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// initSchema initializes the database schema
func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reanalysis_jobs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'queued',
		trigger_type TEXT NOT NULL,
		triggered_by TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		parameters TEXT NOT NULL,
		progress TEXT NOT NULL,
		statistics TEXT NOT NULL,
		error_log TEXT NOT NULL DEFAULT '[]',
		error_log_truncated INTEGER NOT NULL DEFAULT 0,
		error_log_dropped INTEGER NOT NULL DEFAULT 0,
		cancel_requested INTEGER NOT NULL DEFAULT 0,
		failure_reason TEXT NOT NULL DEFAULT '',
		start_time INTEGER,
		end_time INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reanalysis_jobs_status ON reanalysis_jobs(status, created_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_reanalysis_jobs_single_running
		ON reanalysis_jobs(status) WHERE status = 'running';
	`

	_, err := r.db.Exec(schema)
	return err
}

const jobColumns = `id, status, trigger_type, triggered_by, reason, parameters, progress, statistics,
	error_log, error_log_truncated, error_log_dropped, cancel_requested, failure_reason,
	start_time, end_time, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var parameters, progress, statistics, errorLog string
	var truncated, cancelRequested int
	var startTime, endTime sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&job.ID,
		&job.Status,
		&job.TriggerType,
		&job.TriggeredBy,
		&job.Reason,
		&parameters,
		&progress,
		&statistics,
		&errorLog,
		&truncated,
		&job.ErrorLogDropped,
		&cancelRequested,
		&job.FailureReason,
		&startTime,
		&endTime,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(parameters), &job.Parameters); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := json.Unmarshal([]byte(progress), &job.Progress); err != nil {
		return nil, fmt.Errorf("failed to decode progress: %w", err)
	}
	if err := json.Unmarshal([]byte(statistics), &job.Statistics); err != nil {
		return nil, fmt.Errorf("failed to decode statistics: %w", err)
	}
	if err := json.Unmarshal([]byte(errorLog), &job.ErrorLog); err != nil {
		return nil, fmt.Errorf("failed to decode error log: %w", err)
	}
	if job.Statistics.ToolMentions == nil {
		job.Statistics.ToolMentions = map[string]int64{}
	}

	job.ErrorLogTruncated = truncated != 0
	job.CancelRequested = cancelRequested != 0
	job.StartTime = fromNullNanos(startTime)
	job.EndTime = fromNullNanos(endTime)
	job.CreatedAt = time.Unix(0, createdAt).UTC()
	job.UpdatedAt = time.Unix(0, updatedAt).UTC()

	return &job, nil
}

// encodedJob holds the JSON columns of a job
type encodedJob struct {
	parameters, progress, statistics, errorLog string
}

func encodeJob(job *models.Job) (*encodedJob, error) {
	var enc encodedJob
	b, err := json.Marshal(job.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}
	enc.parameters = string(b)

	if b, err = json.Marshal(job.Progress); err != nil {
		return nil, fmt.Errorf("failed to encode progress: %w", err)
	}
	enc.progress = string(b)

	stats := job.Statistics
	if stats.ToolMentions == nil {
		stats.ToolMentions = map[string]int64{}
	}
	if b, err = json.Marshal(stats); err != nil {
		return nil, fmt.Errorf("failed to encode statistics: %w", err)
	}
	enc.statistics = string(b)

	errorLog := job.ErrorLog
	if errorLog == nil {
		errorLog = []models.ErrorLogEntry{}
	}
	if b, err = json.Marshal(errorLog); err != nil {
		return nil, fmt.Errorf("failed to encode error log: %w", err)
	}
	enc.errorLog = string(b)

	return &enc, nil
}

// CreateJob creates a new job
func (r *SQLiteRepository) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO reanalysis_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.UpdatedAt = job.CreatedAt

	enc, err := encodeJob(job)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		job.ID,
		job.Status,
		job.TriggerType,
		job.TriggeredBy,
		job.Reason,
		enc.parameters,
		enc.progress,
		enc.statistics,
		enc.errorLog,
		boolToInt(job.ErrorLogTruncated),
		job.ErrorLogDropped,
		boolToInt(job.CancelRequested),
		job.FailureReason,
		toNullNanos(job.StartTime),
		toNullNanos(job.EndTime),
		job.CreatedAt.UnixNano(),
		job.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", classifySQLite(err))
	}

	return nil
}

// GetJobByID retrieves a job by ID
func (r *SQLiteRepository) GetJobByID(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM reanalysis_jobs WHERE id = ?`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", classifySQLite(err))
	}
	return job, nil
}

// UpdateJob persists the job's mutable state as one unit
func (r *SQLiteRepository) UpdateJob(ctx context.Context, job *models.Job) error {
	query := `
		UPDATE reanalysis_jobs
		SET status = ?, progress = ?, statistics = ?, error_log = ?,
		    error_log_truncated = ?, error_log_dropped = ?, failure_reason = ?,
		    start_time = ?, end_time = ?, updated_at = ?
		WHERE id = ?
	`

	enc, err := encodeJob(job)
	if err != nil {
		return err
	}

	job.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query,
		job.Status,
		enc.progress,
		enc.statistics,
		enc.errorLog,
		boolToInt(job.ErrorLogTruncated),
		job.ErrorLogDropped,
		job.FailureReason,
		toNullNanos(job.StartTime),
		toNullNanos(job.EndTime),
		job.UpdatedAt.UnixNano(),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", classifySQLite(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListJobs retrieves a page of jobs ordered by creation time
func (r *SQLiteRepository) ListJobs(ctx context.Context, filter models.ListJobsFilter) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM reanalysis_jobs`
	var args []any

	if filter.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, *filter.Status)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` ORDER BY created_at ASC, rowid ASC LIMIT ? OFFSET ?`
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", classifySQLite(err))
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", classifySQLite(err))
	}

	return jobs, nil
}

// ClaimNextJob claims the oldest queued job using a transaction
func (r *SQLiteRepository) ClaimNextJob(ctx context.Context, now time.Time) (*models.Job, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", classifySQLite(err))
	}
	defer tx.Rollback()

	var running int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM reanalysis_jobs WHERE status = 'running'`).Scan(&running)
	if err != nil {
		return nil, fmt.Errorf("failed to count running jobs: %w", classifySQLite(err))
	}
	if running > 0 {
		return nil, nil
	}

	query := `
		SELECT ` + jobColumns + `
		FROM reanalysis_jobs
		WHERE status = 'queued' AND cancel_requested = 0
		ORDER BY created_at ASC, rowid ASC
		LIMIT 1
	`
	job, err := scanJob(tx.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find queued job: %w", classifySQLite(err))
	}

	now = now.UTC()
	if job.StartTime == nil {
		job.StartTime = &now
	}
	job.Status = models.StatusRunning
	job.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		UPDATE reanalysis_jobs
		SET status = 'running', start_time = ?, updated_at = ?
		WHERE id = ? AND status = 'queued'
	`, job.StartTime.UnixNano(), now.UnixNano(), job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", classifySQLite(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", classifySQLite(err))
	}

	return job, nil
}

// RequestCancel flags a queued or running job for cancellation
func (r *SQLiteRepository) RequestCancel(ctx context.Context, id string) (*models.Job, error) {
	_, err := r.db.ExecContext(ctx, `
		UPDATE reanalysis_jobs
		SET cancel_requested = 1, updated_at = ?
		WHERE id = ? AND status IN ('queued', 'running')
	`, time.Now().UTC().UnixNano(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to request cancellation: %w", classifySQLite(err))
	}
	return r.GetJobByID(ctx, id)
}

// CountByStatus returns the number of jobs in the given status
func (r *SQLiteRepository) CountByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reanalysis_jobs WHERE status = ?`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", classifySQLite(err))
	}
	return count, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func toNullNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func fromNullNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}
