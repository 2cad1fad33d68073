package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lumenpress/lumen/backend/go-services/internal/article"
)

// MemoryRepo is an in-memory Store used for tests and local development.
type MemoryRepo struct {
	mu       sync.RWMutex
	docs     map[string]*article.Document
	sections map[string]*article.Section
	figures  map[string]*article.Figure
	// seq breaks ordering ties between rows created within the same instant.
	seq map[string]int64
	n   int64
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		docs:     make(map[string]*article.Document),
		sections: make(map[string]*article.Section),
		figures:  make(map[string]*article.Figure),
		seq:      make(map[string]int64),
	}
}

func (m *MemoryRepo) next(id string) {
	m.n++
	m.seq[id] = m.n
}

func (m *MemoryRepo) CreateDocument(ctx context.Context, d *article.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.docs {
		if existing.Slug == d.Slug {
			return article.ErrSlugConflict
		}
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	m.docs[d.ID] = d.Clone()
	m.next(d.ID)
	return nil
}

func (m *MemoryRepo) GetDocument(ctx context.Context, id string) (*article.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.docs[id]; ok {
		return d.Clone(), nil
	}
	return nil, article.ErrNotFound
}

func (m *MemoryRepo) GetDocumentBySlug(ctx context.Context, slug string) (*article.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.docs {
		if d.Slug == slug {
			return d.Clone(), nil
		}
	}
	return nil, article.ErrNotFound
}

func (m *MemoryRepo) SlugExists(ctx context.Context, slug string) (bool, error) {
	_, err := m.GetDocumentBySlug(ctx, slug)
	if err == article.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (m *MemoryRepo) UpdateDocument(ctx context.Context, d *article.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[d.ID]
	if !ok {
		return article.ErrNotFound
	}
	d.Slug = cur.Slug
	d.CreatedAt = cur.CreatedAt
	d.UpdatedAt = time.Now().UTC()
	m.docs[d.ID] = d.Clone()
	return nil
}

func (m *MemoryRepo) DeleteDocument(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return article.ErrNotFound
	}
	delete(m.docs, id)
	delete(m.seq, id)
	for sid, s := range m.sections {
		if s.DocumentID != id {
			continue
		}
		for fid, f := range m.figures {
			if f.SectionID == sid {
				delete(m.figures, fid)
				delete(m.seq, fid)
			}
		}
		delete(m.sections, sid)
		delete(m.seq, sid)
	}
	return nil
}

func (m *MemoryRepo) ListDocuments(ctx context.Context, q article.ListQuery) ([]*article.Document, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]*article.Document, 0, len(m.docs))
	for _, d := range m.docs {
		if q.Status == "" || d.Status == q.Status {
			matched = append(matched, d.Clone())
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if q.Status == article.StatusPublished && a.PublishedAt != nil && b.PublishedAt != nil && !a.PublishedAt.Equal(*b.PublishedAt) {
			return a.PublishedAt.After(*b.PublishedAt)
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return m.seq[a.ID] > m.seq[b.ID]
	})
	total := len(matched)
	start := q.Offset
	if start > total {
		start = total
	}
	end := total
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	return matched[start:end], total, nil
}

func (m *MemoryRepo) ListSections(ctx context.Context, documentID string) ([]*article.Section, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*article.Section{}
	for _, s := range m.sections {
		if s.DocumentID == documentID {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return m.seq[out[i].ID] < m.seq[out[j].ID]
	})
	return out, nil
}

func (m *MemoryRepo) CreateSection(ctx context.Context, s *article.Section) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[s.DocumentID]; !ok {
		return article.ErrNotFound
	}
	s.ID = uuid.NewString()
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	c := *s
	m.sections[s.ID] = &c
	m.next(s.ID)
	return nil
}

func (m *MemoryRepo) UpdateSection(ctx context.Context, s *article.Section) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sections[s.ID]
	if !ok {
		return article.ErrNotFound
	}
	s.DocumentID = cur.DocumentID
	s.CreatedAt = cur.CreatedAt
	s.UpdatedAt = time.Now().UTC()
	c := *s
	m.sections[s.ID] = &c
	return nil
}

func (m *MemoryRepo) ListFigures(ctx context.Context, sectionID string) ([]*article.Figure, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*article.Figure{}
	for _, f := range m.figures {
		if f.SectionID == sectionID {
			c := *f
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return m.seq[out[i].ID] < m.seq[out[j].ID]
	})
	return out, nil
}

func (m *MemoryRepo) CreateFigure(ctx context.Context, f *article.Figure) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sections[f.SectionID]; !ok {
		return article.ErrNotFound
	}
	f.ID = uuid.NewString()
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	c := *f
	m.figures[f.ID] = &c
	m.next(f.ID)
	return nil
}

func (m *MemoryRepo) UpdateFigure(ctx context.Context, f *article.Figure) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.figures[f.ID]
	if !ok {
		return article.ErrNotFound
	}
	f.SectionID = cur.SectionID
	f.CreatedAt = cur.CreatedAt
	f.UpdatedAt = time.Now().UTC()
	c := *f
	m.figures[f.ID] = &c
	return nil
}

func (m *MemoryRepo) DeleteFigure(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.figures[id]; !ok {
		return article.ErrNotFound
	}
	delete(m.figures, id)
	delete(m.seq, id)
	return nil
}

func (m *MemoryRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Seed stores rows as-is, bypassing ID assignment and integrity checks. Tests
// use it to reproduce historical data such as duplicated sections.
func (m *MemoryRepo) Seed(d *article.Document, sections []*article.Section, figures []*article.Figure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d != nil {
		m.docs[d.ID] = d.Clone()
		m.next(d.ID)
	}
	for _, s := range sections {
		c := *s
		m.sections[s.ID] = &c
		m.next(s.ID)
	}
	for _, f := range figures {
		c := *f
		m.figures[f.ID] = &c
		m.next(f.ID)
	}
}
