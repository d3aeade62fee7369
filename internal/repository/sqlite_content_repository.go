package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/models"
)

// SQLiteContentRepository implements ContentRepository over a local posts table
type SQLiteContentRepository struct {
	db *sql.DB
}

// NewSQLiteContentRepository opens the posts database, creating the table if needed
func NewSQLiteContentRepository(dbPath string) (*SQLiteContentRepository, error) {
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	repo := &SQLiteContentRepository{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return repo, nil
}

// Close closes the database connection
func (r *SQLiteContentRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteContentRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		published_at INTEGER NOT NULL,
		content TEXT NOT NULL,
		detected_tool_ids TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_posts_published_at ON posts(published_at);
	`
	_, err := r.db.Exec(schema)
	return err
}

// InsertDocument adds a post and sets its ID. Used for seeding and tests.
func (r *SQLiteContentRepository) InsertDocument(ctx context.Context, doc *models.Document) error {
	tags, err := encodeTags(doc.DetectedToolIDs)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (published_at, content, detected_tool_ids) VALUES (?, ?, ?)`,
		doc.PublishedAt.Unix(), doc.Content, tags,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", classifySQLite(err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read document id: %w", err)
	}
	doc.ID = id
	return nil
}

// buildWhere renders the filter as a SQL predicate
func buildWhere(filter models.ContentFilter, afterID *int64) (string, []any) {
	var clauses []string
	var args []any

	if filter.From != nil {
		clauses = append(clauses, "published_at >= ?")
		args = append(args, filter.From.Unix())
	}
	if filter.To != nil {
		clauses = append(clauses, "published_at <= ?")
		args = append(args, filter.To.Unix())
	}
	if filter.MaxID != nil {
		clauses = append(clauses, "id <= ?")
		args = append(args, *filter.MaxID)
	}
	if afterID != nil {
		clauses = append(clauses, "id > ?")
		args = append(args, *afterID)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// CountDocuments returns the number of posts matching the filter
func (r *SQLiteContentRepository) CountDocuments(ctx context.Context, filter models.ContentFilter) (int64, error) {
	where, args := buildWhere(filter, nil)

	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", classifySQLite(err))
	}
	return count, nil
}

// ScanDocuments reads the next page of posts after afterID
func (r *SQLiteContentRepository) ScanDocuments(ctx context.Context, filter models.ContentFilter, afterID *int64, limit int) ([]*models.Document, error) {
	where, args := buildWhere(filter, afterID)
	query := `SELECT id, published_at, content, detected_tool_ids FROM posts` + where + ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan documents: %w", classifySQLite(err))
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", classifySQLite(err))
	}
	return docs, nil
}

// GetDocument reads a single post
func (r *SQLiteContentRepository) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, published_at, content, detected_tool_ids FROM posts WHERE id = ?`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", classifySQLite(err))
	}
	return doc, nil
}

// UpdateDocumentTags performs the compare-and-set inside one transaction
func (r *SQLiteContentRepository) UpdateDocumentTags(ctx context.Context, id int64, newTags, expected []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classifySQLite(err))
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT detected_tool_ids FROM posts WHERE id = ?`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read document tags: %w", classifySQLite(err))
	}

	current, err := decodeTags(raw)
	if err != nil {
		return err
	}
	if !models.TagsEqual(current, expected) {
		return ErrConflict
	}

	encoded, err := encodeTags(newTags)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE posts SET detected_tool_ids = ? WHERE id = ?`, encoded, id); err != nil {
		return fmt.Errorf("failed to update document tags: %w", classifySQLite(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classifySQLite(err))
	}
	return nil
}

// MaxDocumentID returns the newest post id
func (r *SQLiteContentRepository) MaxDocumentID(ctx context.Context) (*int64, error) {
	var id sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(id) FROM posts`).Scan(&id); err != nil {
		return nil, fmt.Errorf("failed to read max document id: %w", classifySQLite(err))
	}
	if !id.Valid {
		return nil, nil
	}
	return &id.Int64, nil
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var publishedAt int64
	var raw string

	if err := row.Scan(&doc.ID, &publishedAt, &doc.Content, &raw); err != nil {
		return nil, err
	}

	tags, err := decodeTags(raw)
	if err != nil {
		return nil, err
	}
	doc.PublishedAt = time.Unix(publishedAt, 0).UTC()
	doc.DetectedToolIDs = tags
	return &doc, nil
}

func encodeTags(tags []string) (string, error) {
	b, err := json.Marshal(models.NormalizeTags(tags))
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(b), nil
}

func decodeTags(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	return models.NormalizeTags(tags), nil
}
