package repository

import (
	"context"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/models"
)

// ContentRepository is the narrow view of the post store that reanalysis needs
type ContentRepository interface {
	CountDocuments(ctx context.Context, filter models.ContentFilter) (int64, error)
	// ScanDocuments returns up to limit documents with id > afterID, ascending by id.
	ScanDocuments(ctx context.Context, filter models.ContentFilter, afterID *int64, limit int) ([]*models.Document, error)
	GetDocument(ctx context.Context, id int64) (*models.Document, error)
	// UpdateDocumentTags writes newTags only if the stored tags still equal expected,
	// returning ErrConflict otherwise.
	UpdateDocumentTags(ctx context.Context, id int64, newTags, expected []string) error
	// MaxDocumentID returns the highest document id, or nil for an empty store.
	MaxDocumentID(ctx context.Context) (*int64, error)
}
