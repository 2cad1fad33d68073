package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/lumenpress/lumen/backend/go-services/internal/article"
	"github.com/lumenpress/lumen/backend/go-services/pkg/logger"
	"github.com/lumenpress/lumen/backend/go-services/pkg/metrics"
)

// Visibility selects which documents a read may return.
type Visibility int

const (
	// Public reads only see published documents.
	Public Visibility = iota
	// Admin reads see every document.
	Admin
)

// GetPublicDocument returns the published document with the given slug or id,
// or nil when there is none. Views are served from the cache when configured.
func (s *Service) GetPublicDocument(ctx context.Context, slugOrID string) (*article.DocumentView, error) {
	key := strings.TrimSpace(slugOrID)
	if key == "" {
		return nil, nil
	}
	if s.cache != nil {
		v, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			metrics.ViewCache.WithLabelValues("error").Inc()
			logger.With("key", key).Warnf("view cache read failed: %v", err)
		case ok:
			metrics.ViewCache.WithLabelValues("hit").Inc()
			return v, nil
		default:
			metrics.ViewCache.WithLabelValues("miss").Inc()
		}
	}
	v, err := s.Assemble(ctx, key, Public)
	if err != nil || v == nil {
		return v, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, v); err != nil {
			logger.With("key", key).Warnf("view cache write failed: %v", err)
		}
	}
	return v, nil
}

// GetAdminDocument returns any document by id, drafts included, or nil.
func (s *Service) GetAdminDocument(ctx context.Context, p article.Principal, id string) (*article.DocumentView, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	return s.Assemble(ctx, id, Admin)
}

// Assemble loads a document with its ordered sections and figures. Rows that
// repeat an id or an ordering key already seen are dropped. A missing or
// invisible document yields (nil, nil).
func (s *Service) Assemble(ctx context.Context, key string, vis Visibility) (*article.DocumentView, error) {
	d, err := s.lookup(ctx, key, vis)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if vis == Public && d.Status != article.StatusPublished {
		return nil, nil
	}

	sections, err := s.store.ListSections(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	log := logger.With("document", d.ID)
	view := &article.DocumentView{Document: d, Sections: []*article.SectionView{}}
	for _, sec := range uniqueSections(sections, log) {
		figs, err := s.store.ListFigures(ctx, sec.ID)
		if err != nil {
			return nil, err
		}
		view.Sections = append(view.Sections, &article.SectionView{
			Section: sec,
			Figures: uniqueFigures(figs, log),
		})
	}
	return view, nil
}

func (s *Service) lookup(ctx context.Context, key string, vis Visibility) (*article.Document, error) {
	if vis == Admin {
		return s.store.GetDocument(ctx, key)
	}
	d, err := s.store.GetDocumentBySlug(ctx, key)
	if err == nil || !isNotFound(err) {
		return d, err
	}
	if _, perr := uuid.Parse(key); perr != nil {
		return nil, err
	}
	return s.store.GetDocument(ctx, key)
}

func uniqueSections(rows []*article.Section, log *logger.Entry) []*article.Section {
	ids := map[string]bool{}
	titles := map[string]bool{}
	bodies := map[string]bool{}
	out := make([]*article.Section, 0, len(rows))
	for _, r := range rows {
		tkey := orderKey(r.Order, strings.TrimSpace(r.Title))
		bkey := orderKey(r.Order, bodyPrefix(r.BodyMarkdown))
		if ids[r.ID] || titles[tkey] || bodies[bkey] {
			log.Warnf("hiding duplicate section %s (order=%d)", r.ID, r.Order)
			continue
		}
		ids[r.ID] = true
		titles[tkey] = true
		bodies[bkey] = true
		out = append(out, r)
	}
	return out
}

func uniqueFigures(rows []*article.Figure, log *logger.Entry) []*article.Figure {
	ids := map[string]bool{}
	keys := map[string]bool{}
	out := make([]*article.Figure, 0, len(rows))
	for _, r := range rows {
		k := orderKey(r.Order, strings.TrimSpace(r.ImageRef))
		if ids[r.ID] || keys[k] {
			log.Warnf("hiding duplicate figure %s (order=%d)", r.ID, r.Order)
			continue
		}
		ids[r.ID] = true
		keys[k] = true
		out = append(out, r)
	}
	return out
}
