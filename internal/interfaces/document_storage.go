package interfaces

import (
	"context"

	"github.com/ternarybob/libris/internal/models"
)

// DocumentListOptions filters document listings
type DocumentListOptions struct {
	TaskID      string
	ProductCode string
	Kind        string
	Limit       int
	Offset      int
}

// DocumentStorage persists processor outputs
type DocumentStorage interface {
	SaveDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, docID string) (*models.Document, error)
	ListDocuments(ctx context.Context, opts *DocumentListOptions) ([]*models.Document, error)
	DeleteDocument(ctx context.Context, docID string) error
}
