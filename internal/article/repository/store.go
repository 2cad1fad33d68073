package repository

import (
	"context"

	"github.com/lumenpress/lumen/backend/go-services/internal/article"
)

// Store is the transactional record store behind the article service.
//
// Lookups of a single row return article.ErrNotFound when nothing matches.
// CreateDocument returns article.ErrSlugConflict when the unique slug index
// rejects the row. Connection and timeout failures are wrapped with
// article.ErrUnavailable. Stores assign IDs and timestamps on create.
type Store interface {
	CreateDocument(ctx context.Context, d *article.Document) error
	GetDocument(ctx context.Context, id string) (*article.Document, error)
	GetDocumentBySlug(ctx context.Context, slug string) (*article.Document, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	UpdateDocument(ctx context.Context, d *article.Document) error
	// DeleteDocument removes the document together with its sections and figures.
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, q article.ListQuery) ([]*article.Document, int, error)

	// ListSections returns a document's sections ordered by Order, then creation.
	ListSections(ctx context.Context, documentID string) ([]*article.Section, error)
	CreateSection(ctx context.Context, s *article.Section) error
	UpdateSection(ctx context.Context, s *article.Section) error

	// ListFigures returns a section's figures ordered by Order, then creation.
	ListFigures(ctx context.Context, sectionID string) ([]*article.Figure, error)
	CreateFigure(ctx context.Context, f *article.Figure) error
	UpdateFigure(ctx context.Context, f *article.Figure) error
	DeleteFigure(ctx context.Context, id string) error

	Ping(ctx context.Context) error
}
