package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/models"
)

// PostgresContentRepository implements ContentRepository against the production
// posts table. The table is owned by the collection pipeline; this type never
// creates or drops it.
type PostgresContentRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresContentRepository connects to the posts database
func NewPostgresContentRepository(ctx context.Context, dsn string) (*PostgresContentRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresContentRepository{pool: pool}, nil
}

// Close releases the pool
func (r *PostgresContentRepository) Close() error {
	r.pool.Close()
	return nil
}

func buildPgWhere(filter models.ContentFilter, afterID *int64) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.From != nil {
		add("published_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("published_at <= $%d", *filter.To)
	}
	if filter.MaxID != nil {
		add("id <= $%d", *filter.MaxID)
	}
	if afterID != nil {
		add("id > $%d", *afterID)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// CountDocuments returns the number of posts matching the filter
func (r *PostgresContentRepository) CountDocuments(ctx context.Context, filter models.ContentFilter) (int64, error) {
	where, args := buildPgWhere(filter, nil)

	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", classifyPg(err))
	}
	return count, nil
}

// ScanDocuments reads the next page of posts after afterID
func (r *PostgresContentRepository) ScanDocuments(ctx context.Context, filter models.ContentFilter, afterID *int64, limit int) ([]*models.Document, error) {
	where, args := buildPgWhere(filter, afterID)
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT id, published_at, content, detected_tool_ids FROM posts%s ORDER BY id ASC LIMIT $%d`, where, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan documents: %w", classifyPg(err))
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanPgDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", classifyPg(err))
	}
	return docs, nil
}

// GetDocument reads a single post
func (r *PostgresContentRepository) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, published_at, content, detected_tool_ids FROM posts WHERE id = $1`, id)

	doc, err := scanPgDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", classifyPg(err))
	}
	return doc, nil
}

// UpdateDocumentTags locks the row, compares and writes in one transaction
func (r *PostgresContentRepository) UpdateDocumentTags(ctx context.Context, id int64, newTags, expected []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classifyPg(err))
	}
	defer tx.Rollback(ctx)

	var current []string
	err = tx.QueryRow(ctx, `SELECT detected_tool_ids FROM posts WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read document tags: %w", classifyPg(err))
	}

	if !models.TagsEqual(current, expected) {
		return ErrConflict
	}

	if _, err := tx.Exec(ctx, `UPDATE posts SET detected_tool_ids = $2 WHERE id = $1`, id, models.NormalizeTags(newTags)); err != nil {
		return fmt.Errorf("failed to update document tags: %w", classifyPg(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classifyPg(err))
	}
	return nil
}

// MaxDocumentID returns the newest post id
func (r *PostgresContentRepository) MaxDocumentID(ctx context.Context) (*int64, error) {
	var id *int64
	if err := r.pool.QueryRow(ctx, `SELECT MAX(id) FROM posts`).Scan(&id); err != nil {
		return nil, fmt.Errorf("failed to read max document id: %w", classifyPg(err))
	}
	return id, nil
}

func scanPgDocument(row pgx.Row) (*models.Document, error) {
	var doc models.Document
	var publishedAt time.Time
	var tags []string

	if err := row.Scan(&doc.ID, &publishedAt, &doc.Content, &tags); err != nil {
		return nil, err
	}
	doc.PublishedAt = publishedAt.UTC()
	doc.DetectedToolIDs = models.NormalizeTags(tags)
	return &doc, nil
}

// classifyPg marks connection-level, timeout, and serialization failures as transient.
func classifyPg(err error) error {
	if err == nil {
		return nil
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01", strings.HasPrefix(pgErr.Code, "08"):
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
	}
	return err
}
