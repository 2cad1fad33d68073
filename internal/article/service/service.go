package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lumenpress/lumen/backend/go-services/internal/article"
	"github.com/lumenpress/lumen/backend/go-services/internal/article/repository"
	"github.com/lumenpress/lumen/backend/go-services/internal/markdown"
	"github.com/lumenpress/lumen/backend/go-services/pkg/logger"
)

const (
	slugAttempts = 3

	defaultPageSize = 10
	maxPageSize     = 100
)

// BlobStore is the part of the object store the service uses.
type BlobStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, ref string) error
	PresignedURL(ctx context.Context, ref string, expires time.Duration) (string, error)
}

// ViewCache caches assembled public views by slug or id.
type ViewCache interface {
	Get(ctx context.Context, key string) (*article.DocumentView, bool, error)
	Set(ctx context.Context, key string, v *article.DocumentView) error
	Invalidate(ctx context.Context, keys ...string) error
}

type Options struct {
	WordsPerMinute int
	MaxUploadBytes int64
	URLExpiry      time.Duration
	// Cache is optional.
	Cache ViewCache
}

// Service implements document creation, section reconciliation, publishing,
// reads and deletion on top of a Store and a BlobStore.
type Service struct {
	store     repository.Store
	blobs     BlobStore
	cache     ViewCache
	renderer  *markdown.Renderer
	validate  *validator.Validate
	wpm       int
	maxUpload int64
	urlExpiry time.Duration
	now       func() time.Time
}

func New(store repository.Store, blobs BlobStore, renderer *markdown.Renderer, opts Options) *Service {
	if renderer == nil {
		renderer = markdown.NewRenderer()
	}
	if opts.WordsPerMinute <= 0 {
		opts.WordsPerMinute = 200
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.URLExpiry <= 0 {
		opts.URLExpiry = time.Hour
	}
	return &Service{
		store:     store,
		blobs:     blobs,
		cache:     opts.Cache,
		renderer:  renderer,
		validate:  validator.New(),
		wpm:       opts.WordsPerMinute,
		maxUpload: opts.MaxUploadBytes,
		urlExpiry: opts.URLExpiry,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func requirePrincipal(p article.Principal) error {
	if !p.Authenticated() {
		return article.ErrUnauthenticated
	}
	return nil
}

func (s *Service) check(v interface{}) error {
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return article.Invalidf("%s failed on %q", strings.ToLower(f.Field()), f.Tag())
		}
		return article.Invalidf("%v", err)
	}
	return nil
}

// CreateDocument stores a new draft owned by p. The slug is allocated from the
// title once and retried when a concurrent create wins the same slug.
func (s *Service) CreateDocument(ctx context.Context, p article.Principal, in article.CreateInput) (*article.Document, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := s.check(in); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < slugAttempts; attempt++ {
		slug, err := AllocateSlug(ctx, in.Title, s.store)
		if err != nil {
			return nil, err
		}
		d := &article.Document{
			Title:         in.Title,
			Slug:          slug,
			Excerpt:       strings.TrimSpace(in.Excerpt),
			CoverImageRef: strings.TrimSpace(in.CoverRef),
			Tags:          normalizeTags(in.Tags),
			Status:        article.StatusDraft,
			Author:        p.DisplayName(),
		}
		err = s.store.CreateDocument(ctx, d)
		if err == nil {
			logger.With("document", d.ID, "slug", d.Slug).Infof("document created by %s", d.Author)
			return d, nil
		}
		if !errors.Is(err, article.ErrSlugConflict) {
			return nil, err
		}
		logger.With("slug", slug).Warnf("slug taken concurrently, retrying (attempt %d)", attempt+1)
		lastErr = err
	}
	return nil, fmt.Errorf("allocate slug for %q: %w", in.Title, lastErr)
}

// UpdateDocument edits title, excerpt and cover. The slug never changes.
func (s *Service) UpdateDocument(ctx context.Context, p article.Principal, id string, in article.UpdateInput) (*article.Document, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	if err := s.check(in); err != nil {
		return nil, err
	}
	d, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	var oldCover string
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, article.Invalidf("title is required")
		}
		d.Title = title
	}
	if in.Excerpt != nil {
		d.Excerpt = strings.TrimSpace(*in.Excerpt)
	}
	if in.CoverRef != nil {
		cover := strings.TrimSpace(*in.CoverRef)
		if cover != d.CoverImageRef {
			oldCover = d.CoverImageRef
		}
		d.CoverImageRef = cover
	}
	if err := s.store.UpdateDocument(ctx, d); err != nil {
		return nil, err
	}
	s.invalidate(ctx, d)
	if oldCover != "" {
		s.deleteBlobs(ctx, d.ID, []string{oldCover})
	}
	return d, nil
}

// DeleteDocument removes the document with its sections and figures, then
// deletes every blob they referenced. Blob failures are logged only.
func (s *Service) DeleteDocument(ctx context.Context, p article.Principal, id string) error {
	if err := requirePrincipal(p); err != nil {
		return err
	}
	d, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	refs, err := s.blobRefs(ctx, d)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, d)
	logger.With("document", id).Infof("document deleted, releasing %d blobs", len(refs))
	s.deleteBlobs(ctx, id, refs)
	return nil
}

func (s *Service) blobRefs(ctx context.Context, d *article.Document) ([]string, error) {
	seen := map[string]bool{}
	var refs []string
	add := func(ref string) {
		ref = strings.TrimSpace(ref)
		if ref != "" && !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	add(d.CoverImageRef)
	sections, err := s.store.ListSections(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	for _, sec := range sections {
		figs, err := s.store.ListFigures(ctx, sec.ID)
		if err != nil {
			return nil, err
		}
		for _, f := range figs {
			add(f.ImageRef)
		}
	}
	return refs, nil
}

// Page is one page of a document listing.
type Page struct {
	Items    []*article.Document `json:"items"`
	Total    int                 `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"pageSize"`
}

func clampPage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

func (s *Service) list(ctx context.Context, status article.Status, page, size int) (*Page, error) {
	page, size = clampPage(page, size)
	items, total, err := s.store.ListDocuments(ctx, article.ListQuery{
		Status: status,
		Limit:  size,
		Offset: (page - 1) * size,
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*article.Document{}
	}
	return &Page{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// ListPublished pages through published documents, newest first.
func (s *Service) ListPublished(ctx context.Context, page, size int) (*Page, error) {
	return s.list(ctx, article.StatusPublished, page, size)
}

// ListDrafts pages through drafts, most recently edited first.
func (s *Service) ListDrafts(ctx context.Context, p article.Principal, page, size int) (*Page, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	return s.list(ctx, article.StatusDraft, page, size)
}

// Ping checks the record store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) invalidate(ctx context.Context, d *article.Document) {
	if s.cache == nil || d == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, d.Slug, d.ID); err != nil {
		logger.With("document", d.ID).Warnf("view cache invalidate failed: %v", err)
	}
}

// normalizeTags lowercases, trims and deduplicates tags. A comma separates
// tags, so "go,web" yields two; stores may persist tags comma-joined.
func normalizeTags(tags []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, raw := range tags {
		for _, t := range strings.Split(raw, ",") {
			t = strings.ToLower(strings.TrimSpace(t))
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// isNotFound is shared by the read paths, which report absence as a nil view.
func isNotFound(err error) bool {
	return errors.Is(err, article.ErrNotFound)
}
