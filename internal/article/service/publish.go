package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lumenpress/lumen/backend/go-services/internal/article"
	"github.com/lumenpress/lumen/backend/go-services/pkg/logger"
)

// SetPublished moves the document to published or back to draft.
func (s *Service) SetPublished(ctx context.Context, p article.Principal, id string, publish bool) (*article.Document, error) {
	target := article.StatusDraft
	if publish {
		target = article.StatusPublished
	}
	return s.Transition(ctx, p, id, target)
}

// Transition applies a status change. Requesting the current status returns
// the row unchanged.
func (s *Service) Transition(ctx context.Context, p article.Principal, id string, target article.Status) (*article.Document, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	if target != article.StatusDraft && target != article.StatusPublished {
		return nil, fmt.Errorf("%w: %q", article.ErrInvalidTransition, target)
	}
	d, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	from := d.Status
	if !applyTransition(d, target, s.now()) {
		return d, nil
	}
	if err := s.store.UpdateDocument(ctx, d); err != nil {
		return nil, err
	}
	s.invalidate(ctx, d)
	logger.With("document", d.ID).Infof("status %s -> %s", from, d.Status)
	return d, nil
}

// applyTransition mutates d and reports whether anything changed.
// Publishing reuses FirstPublishedAt so a republish keeps the original date;
// unpublishing clears PublishedAt only.
func applyTransition(d *article.Document, target article.Status, now time.Time) bool {
	switch target {
	case article.StatusPublished:
		if d.Status == article.StatusPublished && d.PublishedAt != nil {
			return false
		}
		if d.FirstPublishedAt == nil {
			first := now
			if d.PublishedAt != nil {
				first = *d.PublishedAt
			}
			d.FirstPublishedAt = &first
		}
		at := *d.FirstPublishedAt
		d.PublishedAt = &at
		d.Status = article.StatusPublished
		return true
	case article.StatusDraft:
		if d.Status == article.StatusDraft && d.PublishedAt == nil {
			return false
		}
		d.PublishedAt = nil
		d.Status = article.StatusDraft
		return true
	}
	return false
}
