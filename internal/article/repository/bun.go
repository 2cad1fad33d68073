package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lumenpress/lumen/backend/go-services/internal/article"
	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
)

type articleRow struct {
	bun.BaseModel `bun:"table:articles,alias:a"`

	ID               string     `bun:"id,pk"`
	Title            string     `bun:"title,notnull"`
	Slug             string     `bun:"slug,notnull,unique"`
	Excerpt          string     `bun:"excerpt,notnull,default:''"`
	CoverImageRef    string     `bun:"cover_image_ref,notnull,default:''"`
	Tags             string     `bun:"tags,notnull,default:''"`
	Status           string     `bun:"status,notnull,default:'draft'"`
	PublishedAt      *time.Time `bun:"published_at,nullzero"`
	FirstPublishedAt *time.Time `bun:"first_published_at,nullzero"`
	Author           string     `bun:"author,notnull,default:''"`
	ReadingTime      int        `bun:"reading_time,notnull,default:0"`
	CreatedAt        time.Time  `bun:"created_at,notnull"`
	UpdatedAt        time.Time  `bun:"updated_at,notnull"`
}

type sectionRow struct {
	bun.BaseModel `bun:"table:article_sections,alias:s"`

	ID           string    `bun:"id,pk"`
	ArticleID    string    `bun:"article_id,notnull"`
	Position     int       `bun:"position,notnull,default:0"`
	Title        string    `bun:"title,notnull"`
	BodyMarkdown string    `bun:"body_markdown,notnull"`
	BodyHTML     string    `bun:"body_html,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
	UpdatedAt    time.Time `bun:"updated_at,notnull"`
}

type figureRow struct {
	bun.BaseModel `bun:"table:article_figures,alias:f"`

	ID        string    `bun:"id,pk"`
	SectionID string    `bun:"section_id,notnull"`
	Position  int       `bun:"position,notnull,default:0"`
	ImageRef  string    `bun:"image_ref,notnull"`
	Caption   string    `bun:"caption,notnull,default:''"`
	AltText   string    `bun:"alt_text,notnull,default:''"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func toArticleRow(d *article.Document) *articleRow {
	return &articleRow{
		ID:               d.ID,
		Title:            d.Title,
		Slug:             d.Slug,
		Excerpt:          d.Excerpt,
		CoverImageRef:    d.CoverImageRef,
		Tags:             strings.Join(d.Tags, ","),
		Status:           string(d.Status),
		PublishedAt:      d.PublishedAt,
		FirstPublishedAt: d.FirstPublishedAt,
		Author:           d.Author,
		ReadingTime:      d.ReadingTimeMinutes,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func (r *articleRow) toDocument() *article.Document {
	var tags []string
	if r.Tags != "" {
		tags = strings.Split(r.Tags, ",")
	}
	return &article.Document{
		ID:                 r.ID,
		Title:              r.Title,
		Slug:               r.Slug,
		Excerpt:            r.Excerpt,
		CoverImageRef:      r.CoverImageRef,
		Tags:               tags,
		Status:             article.Status(r.Status),
		PublishedAt:        r.PublishedAt,
		FirstPublishedAt:   r.FirstPublishedAt,
		Author:             r.Author,
		ReadingTimeMinutes: r.ReadingTime,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func (r *sectionRow) toSection() *article.Section {
	return &article.Section{
		ID:           r.ID,
		DocumentID:   r.ArticleID,
		Order:        r.Position,
		Title:        r.Title,
		BodyMarkdown: r.BodyMarkdown,
		BodyHTML:     r.BodyHTML,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (r *figureRow) toFigure() *article.Figure {
	return &article.Figure{
		ID:        r.ID,
		SectionID: r.SectionID,
		Order:     r.Position,
		ImageRef:  r.ImageRef,
		Caption:   r.Caption,
		AltText:   r.AltText,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// BunRepo implements Store on a relational database through bun. Children
// reference their parent with ON DELETE CASCADE and the slug column carries a
// unique constraint.
type BunRepo struct {
	db *bun.DB
}

// NewBunRepo returns a store on db. Call Migrate before first use.
func NewBunRepo(db *bun.DB) *BunRepo {
	return &BunRepo{db: db}
}

// Migrate creates the tables and indexes when they do not exist yet.
func (r *BunRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.NewCreateTable().Model((*articleRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create articles: %w", err)
	}
	if _, err := r.db.NewCreateTable().Model((*sectionRow)(nil)).IfNotExists().
		ForeignKey(`("article_id") REFERENCES "articles" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return fmt.Errorf("create article_sections: %w", err)
	}
	if _, err := r.db.NewCreateTable().Model((*figureRow)(nil)).IfNotExists().
		ForeignKey(`("section_id") REFERENCES "article_sections" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return fmt.Errorf("create article_figures: %w", err)
	}
	if _, err := r.db.NewCreateIndex().Model((*sectionRow)(nil)).IfNotExists().
		Index("article_sections_article_position_idx").Column("article_id", "position").
		Exec(ctx); err != nil {
		return fmt.Errorf("index article_sections: %w", err)
	}
	if _, err := r.db.NewCreateIndex().Model((*figureRow)(nil)).IfNotExists().
		Index("article_figures_section_position_idx").Column("section_id", "position").
		Exec(ctx); err != nil {
		return fmt.Errorf("index article_figures: %w", err)
	}
	return nil
}

func bunErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return article.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return article.Unavailable(op, err)
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr:
			return article.Unavailable(op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// CreateDocument inserts d, assigning an id and timestamps. A taken slug yields ErrSlugConflict.
func (r *BunRepo) CreateDocument(ctx context.Context, d *article.Document) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	if _, err := r.db.NewInsert().Model(toArticleRow(d)).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return article.ErrSlugConflict
		}
		return bunErr("insert article", err)
	}
	return nil
}

func (r *BunRepo) getDocument(ctx context.Context, column, value string) (*article.Document, error) {
	row := new(articleRow)
	if err := r.db.NewSelect().Model(row).Where("? = ?", bun.Ident(column), value).Limit(1).Scan(ctx); err != nil {
		return nil, bunErr("select article", err)
	}
	return row.toDocument(), nil
}

// GetDocument returns the document with id or ErrNotFound.
func (r *BunRepo) GetDocument(ctx context.Context, id string) (*article.Document, error) {
	return r.getDocument(ctx, "id", id)
}

// GetDocumentBySlug returns the document with slug or ErrNotFound.
func (r *BunRepo) GetDocumentBySlug(ctx context.Context, slug string) (*article.Document, error) {
	return r.getDocument(ctx, "slug", slug)
}

// SlugExists reports whether any document uses slug.
func (r *BunRepo) SlugExists(ctx context.Context, slug string) (bool, error) {
	ok, err := r.db.NewSelect().Model((*articleRow)(nil)).Where("slug = ?", slug).Exists(ctx)
	if err != nil {
		return false, bunErr("slug exists", err)
	}
	return ok, nil
}

// UpdateDocument overwrites the stored document and bumps UpdatedAt.
func (r *BunRepo) UpdateDocument(ctx context.Context, d *article.Document) error {
	d.UpdatedAt = time.Now().UTC()
	res, err := r.db.NewUpdate().Model(toArticleRow(d)).
		Column("title", "excerpt", "cover_image_ref", "tags", "status", "published_at",
			"first_published_at", "author", "reading_time", "updated_at").
		WherePK().
		Exec(ctx)
	return affected("update article", res, err)
}

func affected(op string, res sql.Result, err error) error {
	if err != nil {
		return bunErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return bunErr(op, err)
	}
	if n == 0 {
		return article.ErrNotFound
	}
	return nil
}

// DeleteDocument removes the document; sections and figures cascade.
func (r *BunRepo) DeleteDocument(ctx context.Context, id string) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		sub := tx.NewSelect().Model((*sectionRow)(nil)).Column("id").Where("article_id = ?", id)
		if _, err := tx.NewDelete().Model((*figureRow)(nil)).Where("section_id IN (?)", sub).Exec(ctx); err != nil {
			return bunErr("delete figures", err)
		}
		if _, err := tx.NewDelete().Model((*sectionRow)(nil)).Where("article_id = ?", id).Exec(ctx); err != nil {
			return bunErr("delete sections", err)
		}
		res, err := tx.NewDelete().Model((*articleRow)(nil)).Where("id = ?", id).Exec(ctx)
		return affected("delete article", res, err)
	})
}

// ListDocuments returns one page matching q and the total match count.
func (r *BunRepo) ListDocuments(ctx context.Context, q article.ListQuery) ([]*article.Document, int, error) {
	var rows []articleRow
	sel := r.db.NewSelect().Model(&rows)
	if q.Status != "" {
		sel = sel.Where("status = ?", string(q.Status))
	}
	if q.Status == article.StatusPublished {
		sel = sel.Order("published_at DESC")
	}
	sel = sel.Order("updated_at DESC", "id ASC").Offset(q.Offset)
	if q.Limit > 0 {
		sel = sel.Limit(q.Limit)
	}
	total, err := sel.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, bunErr("list articles", err)
	}
	out := make([]*article.Document, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDocument())
	}
	return out, total, nil
}

// ListSections returns the sections of a document by order, then creation.
func (r *BunRepo) ListSections(ctx context.Context, documentID string) ([]*article.Section, error) {
	var rows []sectionRow
	if err := r.db.NewSelect().Model(&rows).
		Where("article_id = ?", documentID).
		Order("position ASC", "created_at ASC", "id ASC").
		Scan(ctx); err != nil {
		return nil, bunErr("list sections", err)
	}
	out := make([]*article.Section, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toSection())
	}
	return out, nil
}

// CreateSection inserts s under its document, which must exist.
func (r *BunRepo) CreateSection(ctx context.Context, s *article.Section) error {
	s.ID = uuid.NewString()
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	row := &sectionRow{
		ID:           s.ID,
		ArticleID:    s.DocumentID,
		Position:     s.Order,
		Title:        s.Title,
		BodyMarkdown: s.BodyMarkdown,
		BodyHTML:     s.BodyHTML,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return bunErr("insert section", err)
	}
	return nil
}

// UpdateSection overwrites s or returns ErrNotFound.
func (r *BunRepo) UpdateSection(ctx context.Context, s *article.Section) error {
	s.UpdatedAt = time.Now().UTC()
	row := &sectionRow{
		ID:           s.ID,
		Position:     s.Order,
		Title:        s.Title,
		BodyMarkdown: s.BodyMarkdown,
		BodyHTML:     s.BodyHTML,
		UpdatedAt:    s.UpdatedAt,
	}
	res, err := r.db.NewUpdate().Model(row).
		Column("position", "title", "body_markdown", "body_html", "updated_at").
		WherePK().
		Exec(ctx)
	return affected("update section", res, err)
}

// ListFigures returns the figures of a section by order, then creation.
func (r *BunRepo) ListFigures(ctx context.Context, sectionID string) ([]*article.Figure, error) {
	var rows []figureRow
	if err := r.db.NewSelect().Model(&rows).
		Where("section_id = ?", sectionID).
		Order("position ASC", "created_at ASC", "id ASC").
		Scan(ctx); err != nil {
		return nil, bunErr("list figures", err)
	}
	out := make([]*article.Figure, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toFigure())
	}
	return out, nil
}

// CreateFigure inserts f under its section, which must exist.
func (r *BunRepo) CreateFigure(ctx context.Context, f *article.Figure) error {
	f.ID = uuid.NewString()
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	row := &figureRow{
		ID:        f.ID,
		SectionID: f.SectionID,
		Position:  f.Order,
		ImageRef:  f.ImageRef,
		Caption:   f.Caption,
		AltText:   f.AltText,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return bunErr("insert figure", err)
	}
	return nil
}

// UpdateFigure overwrites f or returns ErrNotFound.
func (r *BunRepo) UpdateFigure(ctx context.Context, f *article.Figure) error {
	f.UpdatedAt = time.Now().UTC()
	row := &figureRow{
		ID:        f.ID,
		Position:  f.Order,
		ImageRef:  f.ImageRef,
		Caption:   f.Caption,
		AltText:   f.AltText,
		UpdatedAt: f.UpdatedAt,
	}
	res, err := r.db.NewUpdate().Model(row).
		Column("position", "image_ref", "caption", "alt_text", "updated_at").
		WherePK().
		Exec(ctx)
	return affected("update figure", res, err)
}

// DeleteFigure removes one figure or returns ErrNotFound.
func (r *BunRepo) DeleteFigure(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().Model((*figureRow)(nil)).Where("id = ?", id).Exec(ctx)
	return affected("delete figure", res, err)
}

// Ping checks the database connection.
func (r *BunRepo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return article.Unavailable("database ping", err)
	}
	return nil
}
