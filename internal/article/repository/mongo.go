package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lumenpress/lumen/backend/go-services/internal/article"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements Store on three collections: articles, article_sections
// and article_figures. IDs are UUID strings stored in _id.
type MongoRepo struct {
	docs     *mongo.Collection
	sections *mongo.Collection
	figures  *mongo.Collection
}

// NewMongoRepo wires the collections of db and ensures the indexes the store
// relies on, most importantly the unique slug index.
func NewMongoRepo(ctx context.Context, db *mongo.Database) (*MongoRepo, error) {
	m := &MongoRepo{
		docs:     db.Collection("articles"),
		sections: db.Collection("article_sections"),
		figures:  db.Collection("article_figures"),
	}
	if _, err := m.docs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "slug", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, fmt.Errorf("ensure slug index: %w", err)
	}
	if _, err := m.sections.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "order", Value: 1}},
	}); err != nil {
		return nil, fmt.Errorf("ensure section index: %w", err)
	}
	if _, err := m.figures.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "sectionId", Value: 1}, {Key: "order", Value: 1}},
	}); err != nil {
		return nil, fmt.Errorf("ensure figure index: %w", err)
	}
	return m, nil
}

func mongoErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return article.ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, mongo.ErrClientDisconnected):
		return article.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// CreateDocument inserts d, assigning an id and timestamps. A taken slug yields ErrSlugConflict.
func (m *MongoRepo) CreateDocument(ctx context.Context, d *article.Document) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	if _, err := m.docs.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return article.ErrSlugConflict
		}
		return mongoErr("insert article", err)
	}
	return nil
}

func (m *MongoRepo) findDocument(ctx context.Context, filter bson.M) (*article.Document, error) {
	var d article.Document
	if err := m.docs.FindOne(ctx, filter).Decode(&d); err != nil {
		return nil, mongoErr("find article", err)
	}
	return &d, nil
}

// GetDocument returns the document with id or ErrNotFound.
func (m *MongoRepo) GetDocument(ctx context.Context, id string) (*article.Document, error) {
	return m.findDocument(ctx, bson.M{"_id": id})
}

// GetDocumentBySlug returns the document with slug or ErrNotFound.
func (m *MongoRepo) GetDocumentBySlug(ctx context.Context, slug string) (*article.Document, error) {
	return m.findDocument(ctx, bson.M{"slug": slug})
}

// SlugExists reports whether any document uses slug.
func (m *MongoRepo) SlugExists(ctx context.Context, slug string) (bool, error) {
	n, err := m.docs.CountDocuments(ctx, bson.M{"slug": slug}, options.Count().SetLimit(1))
	if err != nil {
		return false, mongoErr("count slug", err)
	}
	return n > 0, nil
}

// UpdateDocument overwrites the stored document and bumps UpdatedAt.
func (m *MongoRepo) UpdateDocument(ctx context.Context, d *article.Document) error {
	d.UpdatedAt = time.Now().UTC()
	set := bson.M{
		"title":            d.Title,
		"excerpt":          d.Excerpt,
		"coverImageRef":    d.CoverImageRef,
		"tags":             d.Tags,
		"status":           d.Status,
		"publishedAt":      d.PublishedAt,
		"firstPublishedAt": d.FirstPublishedAt,
		"author":           d.Author,
		"readingTime":      d.ReadingTimeMinutes,
		"updatedAt":        d.UpdatedAt,
	}
	res, err := m.docs.UpdateOne(ctx, bson.M{"_id": d.ID}, bson.M{"$set": set})
	if err != nil {
		return mongoErr("update article", err)
	}
	if res.MatchedCount == 0 {
		return article.ErrNotFound
	}
	return nil
}

// DeleteDocument removes the article first so readers stop seeing it, then
// its children. Standalone deployments have no multi-document transactions.
func (m *MongoRepo) DeleteDocument(ctx context.Context, id string) error {
	res, err := m.docs.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return mongoErr("delete article", err)
	}
	if res.DeletedCount == 0 {
		return article.ErrNotFound
	}
	sections, err := m.ListSections(ctx, id)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(sections))
	for _, s := range sections {
		ids = append(ids, s.ID)
	}
	if len(ids) > 0 {
		if _, err := m.figures.DeleteMany(ctx, bson.M{"sectionId": bson.M{"$in": ids}}); err != nil {
			return mongoErr("delete figures", err)
		}
	}
	if _, err := m.sections.DeleteMany(ctx, bson.M{"documentId": id}); err != nil {
		return mongoErr("delete sections", err)
	}
	return nil
}

// ListDocuments returns one page matching q and the total match count.
func (m *MongoRepo) ListDocuments(ctx context.Context, q article.ListQuery) ([]*article.Document, int, error) {
	filter := bson.M{}
	if q.Status != "" {
		filter["status"] = q.Status
	}
	total, err := m.docs.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, mongoErr("count articles", err)
	}
	sortKey := "updatedAt"
	if q.Status == article.StatusPublished {
		sortKey = "publishedAt"
	}
	opts := options.Find().SetSort(bson.D{{Key: sortKey, Value: -1}, {Key: "_id", Value: 1}}).SetSkip(int64(q.Offset))
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cur, err := m.docs.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, mongoErr("list articles", err)
	}
	defer cur.Close(ctx)
	out := []*article.Document{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, mongoErr("decode articles", err)
	}
	return out, int(total), nil
}

// ListSections returns the sections of a document by order, then creation.
func (m *MongoRepo) ListSections(ctx context.Context, documentID string) ([]*article.Section, error) {
	opts := options.Find().SetSort(bson.D{{Key: "order", Value: 1}, {Key: "createdAt", Value: 1}})
	cur, err := m.sections.Find(ctx, bson.M{"documentId": documentID}, opts)
	if err != nil {
		return nil, mongoErr("list sections", err)
	}
	defer cur.Close(ctx)
	out := []*article.Section{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, mongoErr("decode sections", err)
	}
	return out, nil
}

// CreateSection inserts s with a fresh id. The parent document is not checked.
func (m *MongoRepo) CreateSection(ctx context.Context, s *article.Section) error {
	s.ID = uuid.NewString()
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	if _, err := m.sections.InsertOne(ctx, s); err != nil {
		return mongoErr("insert section", err)
	}
	return nil
}

// UpdateSection overwrites s or returns ErrNotFound.
func (m *MongoRepo) UpdateSection(ctx context.Context, s *article.Section) error {
	s.UpdatedAt = time.Now().UTC()
	set := bson.M{
		"order":        s.Order,
		"title":        s.Title,
		"bodyMarkdown": s.BodyMarkdown,
		"bodyHtml":     s.BodyHTML,
		"updatedAt":    s.UpdatedAt,
	}
	res, err := m.sections.UpdateOne(ctx, bson.M{"_id": s.ID}, bson.M{"$set": set})
	if err != nil {
		return mongoErr("update section", err)
	}
	if res.MatchedCount == 0 {
		return article.ErrNotFound
	}
	return nil
}

// ListFigures returns the figures of a section by order, then creation.
func (m *MongoRepo) ListFigures(ctx context.Context, sectionID string) ([]*article.Figure, error) {
	opts := options.Find().SetSort(bson.D{{Key: "order", Value: 1}, {Key: "createdAt", Value: 1}})
	cur, err := m.figures.Find(ctx, bson.M{"sectionId": sectionID}, opts)
	if err != nil {
		return nil, mongoErr("list figures", err)
	}
	defer cur.Close(ctx)
	out := []*article.Figure{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, mongoErr("decode figures", err)
	}
	return out, nil
}

// CreateFigure inserts f with a fresh id. The parent section is not checked.
func (m *MongoRepo) CreateFigure(ctx context.Context, f *article.Figure) error {
	f.ID = uuid.NewString()
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	if _, err := m.figures.InsertOne(ctx, f); err != nil {
		return mongoErr("insert figure", err)
	}
	return nil
}

// UpdateFigure overwrites f or returns ErrNotFound.
func (m *MongoRepo) UpdateFigure(ctx context.Context, f *article.Figure) error {
	f.UpdatedAt = time.Now().UTC()
	set := bson.M{
		"order":     f.Order,
		"imageRef":  f.ImageRef,
		"caption":   f.Caption,
		"altText":   f.AltText,
		"updatedAt": f.UpdatedAt,
	}
	res, err := m.figures.UpdateOne(ctx, bson.M{"_id": f.ID}, bson.M{"$set": set})
	if err != nil {
		return mongoErr("update figure", err)
	}
	if res.MatchedCount == 0 {
		return article.ErrNotFound
	}
	return nil
}

// DeleteFigure removes one figure or returns ErrNotFound.
func (m *MongoRepo) DeleteFigure(ctx context.Context, id string) error {
	res, err := m.figures.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return mongoErr("delete figure", err)
	}
	if res.DeletedCount == 0 {
		return article.ErrNotFound
	}
	return nil
}

// Ping checks the server is reachable.
func (m *MongoRepo) Ping(ctx context.Context) error {
	if err := m.docs.Database().Client().Ping(ctx, nil); err != nil {
		return article.Unavailable("mongo ping", err)
	}
	return nil
}
