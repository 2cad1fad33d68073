package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lumenpress/lumen/backend/go-services/internal/article"
	"github.com/lumenpress/lumen/backend/go-services/internal/article/repository"
	"github.com/lumenpress/lumen/backend/go-services/internal/database"
	"github.com/lumenpress/lumen/backend/go-services/internal/storage"
	"github.com/lumenpress/lumen/backend/go-services/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var editor = article.Principal{Subject: "user-1", Name: "Ada"}

func newTestService(t *testing.T) (*Service, *repository.MemoryRepo, *storage.MemoryStorage) {
	t.Helper()
	repo := repository.NewMemoryRepo()
	blobs := storage.NewMemoryStorage()
	return New(repo, blobs, nil, Options{}), repo, blobs
}

func mustCreate(t *testing.T, svc *Service, title string) *article.Document {
	t.Helper()
	d, err := svc.CreateDocument(context.Background(), editor, article.CreateInput{Title: title})
	require.NoError(t, err)
	return d
}

func putBlob(t *testing.T, blobs *storage.MemoryStorage, key string) {
	t.Helper()
	_, err := blobs.Put(context.Background(), key, strings.NewReader("img"), 3, "image/png")
	require.NoError(t, err)
}

func TestCreateDocument(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	d, err := svc.CreateDocument(ctx, editor, article.CreateInput{
		Title:   "  Hello World ",
		Excerpt: "first",
		Tags:    []string{"Go", " go ", "", "News"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, d.ID)
	require.Equal(t, "Hello World", d.Title)
	require.Equal(t, "hello-world", d.Slug)
	require.Equal(t, article.StatusDraft, d.Status)
	require.Nil(t, d.PublishedAt)
	require.Equal(t, "Ada", d.Author)
	require.Equal(t, []string{"go", "news"}, d.Tags)

	d2 := mustCreate(t, svc, "Hello World")
	require.Equal(t, "hello-world-1", d2.Slug)
}

func TestCreateDocumentTagsSurviveSQLite(t *testing.T) {
	db, err := database.OpenSQLite("file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	repo := repository.NewBunRepo(db)
	require.NoError(t, repo.Migrate(ctx))
	svc := New(repo, storage.NewMemoryStorage(), nil, Options{})

	d, err := svc.CreateDocument(ctx, editor, article.CreateInput{
		Title: "Tagged",
		Tags:  []string{"Go,Web", "web", " a , b "},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"go", "web", "a", "b"}, d.Tags)

	got, err := repo.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, d.Tags, got.Tags)
}

func TestCreateDocumentRejectsInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateDocument(ctx, article.Principal{}, article.CreateInput{Title: "x"})
	require.ErrorIs(t, err, article.ErrUnauthenticated)

	_, err = svc.CreateDocument(ctx, editor, article.CreateInput{Title: "   "})
	require.ErrorIs(t, err, article.ErrValidation)

	_, err = svc.CreateDocument(ctx, editor, article.CreateInput{Title: strings.Repeat("a", 300)})
	require.ErrorIs(t, err, article.ErrValidation)
}

// racingStore loses the slug race a fixed number of times.
type racingStore struct {
	*repository.MemoryRepo
	conflicts int
}

func (r *racingStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	return false, nil
}

func (r *racingStore) CreateDocument(ctx context.Context, d *article.Document) error {
	if r.conflicts > 0 {
		r.conflicts--
		return article.ErrSlugConflict
	}
	return r.MemoryRepo.CreateDocument(ctx, d)
}

func TestCreateDocumentRetriesSlugConflicts(t *testing.T) {
	store := &racingStore{MemoryRepo: repository.NewMemoryRepo(), conflicts: 2}
	svc := New(store, storage.NewMemoryStorage(), nil, Options{})

	d, err := svc.CreateDocument(context.Background(), editor, article.CreateInput{Title: "Race"})
	require.NoError(t, err)
	require.Equal(t, "race", d.Slug)

	store.conflicts = 10
	_, err = svc.CreateDocument(context.Background(), editor, article.CreateInput{Title: "Race"})
	require.ErrorIs(t, err, article.ErrSlugConflict)
}

func TestUpdateDocumentKeepsSlugAndReleasesOldCover(t *testing.T) {
	svc, _, blobs := newTestService(t)
	ctx := context.Background()
	putBlob(t, blobs, "old.png")

	d, err := svc.CreateDocument(ctx, editor, article.CreateInput{Title: "Original", CoverRef: "old.png"})
	require.NoError(t, err)

	title, cover := "Renamed", "new.png"
	got, err := svc.UpdateDocument(ctx, editor, d.ID, article.UpdateInput{Title: &title, CoverRef: &cover})
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.Title)
	require.Equal(t, "original", got.Slug)
	require.Equal(t, "new.png", got.CoverImageRef)
	require.False(t, blobs.Has("old.png"))

	empty := " "
	_, err = svc.UpdateDocument(ctx, editor, d.ID, article.UpdateInput{Title: &empty})
	require.ErrorIs(t, err, article.ErrValidation)

	_, err = svc.UpdateDocument(ctx, editor, "missing", article.UpdateInput{Title: &title})
	require.ErrorIs(t, err, article.ErrNotFound)
}

func TestDeleteDocumentCascadesAndReleasesBlobs(t *testing.T) {
	svc, repo, blobs := newTestService(t)
	ctx := context.Background()
	putBlob(t, blobs, "cover.png")
	putBlob(t, blobs, "a.png")
	putBlob(t, blobs, "b.png")

	d, err := svc.CreateDocument(ctx, editor, article.CreateInput{Title: "Doomed", CoverRef: "cover.png"})
	require.NoError(t, err)
	_, err = svc.Reconcile(ctx, d.ID, []article.SectionInput{
		{Order: 0, Title: "One", Figures: []article.FigureInput{{Order: 0, ImageRef: "a.png"}}},
		{Order: 1, Title: "Two", Figures: []article.FigureInput{{Order: 0, ImageRef: "b.png"}, {Order: 1, ImageRef: "gone.png"}}},
	}, true)
	require.NoError(t, err)

	missingBefore := testutil.ToFloat64(metrics.BlobDeletes.WithLabelValues("missing"))
	require.NoError(t, svc.DeleteDocument(ctx, editor, d.ID))

	_, err = repo.GetDocument(ctx, d.ID)
	require.ErrorIs(t, err, article.ErrNotFound)
	sections, err := repo.ListSections(ctx, d.ID)
	require.NoError(t, err)
	require.Empty(t, sections)
	require.False(t, blobs.Has("cover.png"))
	require.False(t, blobs.Has("a.png"))
	require.False(t, blobs.Has("b.png"))
	require.Equal(t, missingBefore+1, testutil.ToFloat64(metrics.BlobDeletes.WithLabelValues("missing")))

	require.ErrorIs(t, svc.DeleteDocument(ctx, editor, d.ID), article.ErrNotFound)
	require.ErrorIs(t, svc.DeleteDocument(ctx, article.Principal{}, d.ID), article.ErrUnauthenticated)
}

func TestDeleteDocumentSurvivesBlobFailures(t *testing.T) {
	svc, repo, blobs := newTestService(t)
	ctx := context.Background()
	putBlob(t, blobs, "cover.png")
	putBlob(t, blobs, "a.png")
	blobs.FailDelete = func(ref string) error {
		if ref == "cover.png" {
			return errors.New("bucket offline")
		}
		return nil
	}

	d, err := svc.CreateDocument(ctx, editor, article.CreateInput{Title: "Stubborn", CoverRef: "cover.png"})
	require.NoError(t, err)
	_, err = svc.Reconcile(ctx, d.ID, []article.SectionInput{
		{Order: 0, Title: "One", Figures: []article.FigureInput{{ImageRef: "a.png"}}},
	}, true)
	require.NoError(t, err)

	failedBefore := testutil.ToFloat64(metrics.BlobDeletes.WithLabelValues("failed"))
	require.NoError(t, svc.DeleteDocument(ctx, editor, d.ID))

	_, err = repo.GetDocument(ctx, d.ID)
	require.ErrorIs(t, err, article.ErrNotFound)
	require.True(t, blobs.Has("cover.png"))
	require.False(t, blobs.Has("a.png"))
	require.Equal(t, failedBefore+1, testutil.ToFloat64(metrics.BlobDeletes.WithLabelValues("failed")))
}

func TestListPublishedAndDrafts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	var ids []string
	for _, title := range []string{"One", "Two", "Three"} {
		ids = append(ids, mustCreate(t, svc, title).ID)
	}
	_, err := svc.SetPublished(ctx, editor, ids[0], true)
	require.NoError(t, err)

	pub, err := svc.ListPublished(ctx, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, pub.Total)
	require.Equal(t, 1, pub.Page)
	require.Equal(t, defaultPageSize, pub.PageSize)
	require.Equal(t, ids[0], pub.Items[0].ID)

	drafts, err := svc.ListDrafts(ctx, editor, 2, 1)
	require.NoError(t, err)
	require.Equal(t, 2, drafts.Total)
	require.Len(t, drafts.Items, 1)

	big, err := svc.ListDrafts(ctx, editor, 1, 1000)
	require.NoError(t, err)
	require.Equal(t, maxPageSize, big.PageSize)

	_, err = svc.ListDrafts(ctx, article.Principal{}, 1, 10)
	require.ErrorIs(t, err, article.ErrUnauthenticated)
}

func TestUpload(t *testing.T) {
	svc, _, blobs := newTestService(t)
	ctx := context.Background()
	d := mustCreate(t, svc, "Gallery")
	_, err := svc.Reconcile(ctx, d.ID, []article.SectionInput{{Order: 0, Title: "Pics"}}, true)
	require.NoError(t, err)
	view, err := svc.GetAdminDocument(ctx, editor, d.ID)
	require.NoError(t, err)
	sectionID := view.Sections[0].ID

	body := []byte("png-bytes")
	res, err := svc.Upload(ctx, editor, UploadInput{
		Kind: UploadCover, DocumentID: d.ID, FileName: "Cover.PNG",
		ContentType: "image/png", Size: int64(len(body)), Body: bytes.NewReader(body),
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(res.Ref, "article-"+d.ID+"/cover-"))
	require.True(t, strings.HasSuffix(res.Ref, ".png"))
	require.NotEmpty(t, res.URL)
	require.True(t, blobs.Has(res.Ref))

	res, err = svc.Upload(ctx, editor, UploadInput{
		Kind: UploadFigure, DocumentID: d.ID, SectionID: sectionID, FileName: "f.webp",
		ContentType: "image/webp", Size: int64(len(body)), Body: bytes.NewReader(body),
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(res.Ref, "article-"+d.ID+"/figure-"+sectionID+"-"))

	res, err = svc.Upload(ctx, editor, UploadInput{
		Kind: UploadFigure, FileName: "loose.jpg",
		ContentType: "image/jpeg", Size: int64(len(body)), Body: bytes.NewReader(body),
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(res.Ref, "articles/figures/"))

	cases := []UploadInput{
		{Kind: "avatar", ContentType: "image/png", Size: 1, Body: bytes.NewReader([]byte("x"))},
		{Kind: UploadCover, ContentType: "text/plain", Size: 1, Body: bytes.NewReader([]byte("x"))},
		{Kind: UploadCover, ContentType: "image/png", Size: 11 << 20, Body: bytes.NewReader([]byte("x"))},
		{Kind: UploadCover, ContentType: "image/png"},
		{Kind: UploadFigure, SectionID: sectionID, ContentType: "image/png", Size: 1, Body: bytes.NewReader([]byte("x"))},
	}
	for i, in := range cases {
		_, err := svc.Upload(ctx, editor, in)
		require.ErrorIs(t, err, article.ErrValidation, "case %d", i)
	}

	_, err = svc.Upload(ctx, editor, UploadInput{
		Kind: UploadCover, DocumentID: "missing", ContentType: "image/png", Size: 1, Body: bytes.NewReader([]byte("x")),
	})
	require.ErrorIs(t, err, article.ErrNotFound)
}
