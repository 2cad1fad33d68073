package repository

import (
	"context"
	"time"

	"github.com/lumenpress/lumen/backend/go-services/internal/article"
)

// TimeoutStore bounds every call to the wrapped Store with a deadline.
type TimeoutStore struct {
	inner   Store
	timeout time.Duration
}

// WithTimeout wraps s. A non-positive timeout returns s unchanged.
func WithTimeout(s Store, timeout time.Duration) Store {
	if timeout <= 0 {
		return s
	}
	return &TimeoutStore{inner: s, timeout: timeout}
}

func (t *TimeoutStore) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, t.timeout)
}

func (t *TimeoutStore) CreateDocument(ctx context.Context, d *article.Document) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.CreateDocument(ctx, d)
}

func (t *TimeoutStore) GetDocument(ctx context.Context, id string) (*article.Document, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.GetDocument(ctx, id)
}

func (t *TimeoutStore) GetDocumentBySlug(ctx context.Context, slug string) (*article.Document, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.GetDocumentBySlug(ctx, slug)
}

func (t *TimeoutStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.SlugExists(ctx, slug)
}

func (t *TimeoutStore) UpdateDocument(ctx context.Context, d *article.Document) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.UpdateDocument(ctx, d)
}

func (t *TimeoutStore) DeleteDocument(ctx context.Context, id string) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.DeleteDocument(ctx, id)
}

func (t *TimeoutStore) ListDocuments(ctx context.Context, q article.ListQuery) ([]*article.Document, int, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.ListDocuments(ctx, q)
}

func (t *TimeoutStore) ListSections(ctx context.Context, documentID string) ([]*article.Section, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.ListSections(ctx, documentID)
}

func (t *TimeoutStore) CreateSection(ctx context.Context, s *article.Section) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.CreateSection(ctx, s)
}

func (t *TimeoutStore) UpdateSection(ctx context.Context, s *article.Section) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.UpdateSection(ctx, s)
}

func (t *TimeoutStore) ListFigures(ctx context.Context, sectionID string) ([]*article.Figure, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.ListFigures(ctx, sectionID)
}

func (t *TimeoutStore) CreateFigure(ctx context.Context, f *article.Figure) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.CreateFigure(ctx, f)
}

func (t *TimeoutStore) UpdateFigure(ctx context.Context, f *article.Figure) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.UpdateFigure(ctx, f)
}

func (t *TimeoutStore) DeleteFigure(ctx context.Context, id string) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.DeleteFigure(ctx, id)
}

func (t *TimeoutStore) Ping(ctx context.Context) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.Ping(ctx)
}
