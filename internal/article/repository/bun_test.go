package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lumenpress/lumen/backend/go-services/internal/article"
	"github.com/lumenpress/lumen/backend/go-services/internal/database"
	"github.com/stretchr/testify/require"
)

func newBunRepo(t *testing.T) *BunRepo {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.OpenSQLite("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r := NewBunRepo(db)
	require.NoError(t, r.Migrate(ctx))
	return r
}

func TestBunRepoDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	r := newBunRepo(t)

	d := &article.Document{Title: "Hello World", Slug: "hello-world", Status: article.StatusDraft, Author: "ann", Tags: []string{"go", "cms"}}
	require.NoError(t, r.CreateDocument(ctx, d))
	require.NotEmpty(t, d.ID)

	got, err := r.GetDocumentBySlug(ctx, "hello-world")
	require.NoError(t, err)
	require.Equal(t, d.ID, got.ID)
	require.Equal(t, []string{"go", "cms"}, got.Tags)
	require.Nil(t, got.PublishedAt)

	now := time.Now().UTC().Truncate(time.Second)
	got.Status = article.StatusPublished
	got.PublishedAt = &now
	got.FirstPublishedAt = &now
	got.ReadingTimeMinutes = 3
	require.NoError(t, r.UpdateDocument(ctx, got))

	again, err := r.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, article.StatusPublished, again.Status)
	require.NotNil(t, again.PublishedAt)
	require.True(t, now.Equal(*again.PublishedAt))
	require.Equal(t, 3, again.ReadingTimeMinutes)

	list, total, err := r.ListDocuments(ctx, article.ListQuery{Status: article.StatusPublished, Limit: 5})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, list, 1)

	_, err = r.GetDocument(ctx, "missing")
	require.ErrorIs(t, err, article.ErrNotFound)
	require.ErrorIs(t, r.UpdateDocument(ctx, &article.Document{ID: "missing"}), article.ErrNotFound)
}

func TestBunRepoSlugUniqueness(t *testing.T) {
	ctx := context.Background()
	r := newBunRepo(t)
	require.NoError(t, r.CreateDocument(ctx, &article.Document{Title: "a", Slug: "same"}))

	exists, err := r.SlugExists(ctx, "same")
	require.NoError(t, err)
	require.True(t, exists)

	err = r.CreateDocument(ctx, &article.Document{Title: "b", Slug: "same"})
	require.ErrorIs(t, err, article.ErrSlugConflict)
}

func TestBunRepoSectionsFiguresAndCascade(t *testing.T) {
	ctx := context.Background()
	r := newBunRepo(t)
	d := &article.Document{Title: "doc", Slug: "doc"}
	require.NoError(t, r.CreateDocument(ctx, d))

	late := &article.Section{DocumentID: d.ID, Order: 5, Title: "late", BodyMarkdown: "b", BodyHTML: "<p>b</p>"}
	early := &article.Section{DocumentID: d.ID, Order: 1, Title: "early", BodyMarkdown: "a", BodyHTML: "<p>a</p>"}
	require.NoError(t, r.CreateSection(ctx, late))
	require.NoError(t, r.CreateSection(ctx, early))

	sections, err := r.ListSections(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	require.Equal(t, "early", sections[0].Title)

	early.Title = "first"
	require.NoError(t, r.UpdateSection(ctx, early))

	f := &article.Figure{SectionID: early.ID, Order: 0, ImageRef: "a.webp", Caption: "cap"}
	require.NoError(t, r.CreateFigure(ctx, f))
	f.AltText = "alt"
	require.NoError(t, r.UpdateFigure(ctx, f))
	figs, err := r.ListFigures(ctx, early.ID)
	require.NoError(t, err)
	require.Len(t, figs, 1)
	require.Equal(t, "alt", figs[0].AltText)

	require.NoError(t, r.DeleteDocument(ctx, d.ID))
	sections, err = r.ListSections(ctx, d.ID)
	require.NoError(t, err)
	require.Empty(t, sections)
	figs, err = r.ListFigures(ctx, early.ID)
	require.NoError(t, err)
	require.Empty(t, figs)
	require.ErrorIs(t, r.DeleteDocument(ctx, d.ID), article.ErrNotFound)
}
