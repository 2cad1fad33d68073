package service

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/lumenpress/lumen/backend/go-services/internal/article"
	"github.com/lumenpress/lumen/backend/go-services/internal/storage"
	"github.com/lumenpress/lumen/backend/go-services/pkg/logger"
	"github.com/lumenpress/lumen/backend/go-services/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

const blobDeleteConcurrency = 4

// deleteBlobs removes refs concurrently. Every failure is logged and counted;
// none is returned, the record store is the source of truth.
func (s *Service) deleteBlobs(ctx context.Context, documentID string, refs []string) {
	if s.blobs == nil || len(refs) == 0 {
		return
	}
	log := logger.With("document", documentID)
	var g errgroup.Group
	g.SetLimit(blobDeleteConcurrency)
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			err := s.blobs.Delete(ctx, ref)
			switch {
			case err == nil:
				metrics.BlobDeletes.WithLabelValues("deleted").Inc()
			case errors.Is(err, storage.ErrBlobNotFound):
				metrics.BlobDeletes.WithLabelValues("missing").Inc()
				log.Debugf("blob %s already gone", ref)
			default:
				metrics.BlobDeletes.WithLabelValues("failed").Inc()
				log.Warnf("blob %s delete failed: %v", ref, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Upload kinds.
const (
	UploadCover  = "cover"
	UploadFigure = "figure"
)

// UploadInput is one image file destined for a cover or a figure.
type UploadInput struct {
	Kind        string
	DocumentID  string
	SectionID   string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type UploadResult struct {
	Ref string `json:"ref"`
	URL string `json:"url"`
}

// Upload stores an image and returns its ref plus a presigned URL. When a
// document (and section) id is given the key is scoped under that document.
func (s *Service) Upload(ctx context.Context, p article.Principal, in UploadInput) (*UploadResult, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	if s.blobs == nil {
		return nil, article.Unavailable("upload", errors.New("blob store not configured"))
	}
	if in.Kind != UploadCover && in.Kind != UploadFigure {
		return nil, article.Invalidf("kind must be %q or %q", UploadCover, UploadFigure)
	}
	if in.Body == nil || in.Size <= 0 {
		return nil, article.Invalidf("file is required")
	}
	if in.Size > s.maxUpload {
		return nil, article.Invalidf("file exceeds %d bytes", s.maxUpload)
	}
	if !strings.HasPrefix(in.ContentType, "image/") {
		return nil, article.Invalidf("file must be an image, got %q", in.ContentType)
	}

	if in.DocumentID != "" {
		if _, err := s.store.GetDocument(ctx, in.DocumentID); err != nil {
			return nil, err
		}
	}
	if in.SectionID != "" {
		if in.DocumentID == "" {
			return nil, article.Invalidf("sectionId requires documentId")
		}
		if err := s.sectionBelongs(ctx, in.DocumentID, in.SectionID); err != nil {
			return nil, err
		}
	}

	ext := storage.ExtFromName(in.FileName)
	var key string
	if in.Kind == UploadCover {
		key = storage.CoverKey(in.DocumentID, ext)
	} else {
		key = storage.FigureKey(in.DocumentID, in.SectionID, ext)
	}
	ref, err := s.blobs.Put(ctx, key, in.Body, in.Size, in.ContentType)
	if err != nil {
		return nil, article.Unavailable("put blob", err)
	}
	url, err := s.blobs.PresignedURL(ctx, ref, s.urlExpiry)
	if err != nil {
		logger.With("ref", ref).Warnf("presign failed: %v", err)
		url = ""
	}
	return &UploadResult{Ref: ref, URL: url}, nil
}

func (s *Service) sectionBelongs(ctx context.Context, documentID, sectionID string) error {
	sections, err := s.store.ListSections(ctx, documentID)
	if err != nil {
		return err
	}
	for _, sec := range sections {
		if sec.ID == sectionID {
			return nil
		}
	}
	return article.ErrNotFound
}
