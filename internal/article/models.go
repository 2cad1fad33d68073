package article

import "time"

// Status is the publication state of a Document.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// ParseStatus accepts only the two known states.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusDraft, StatusPublished:
		return Status(s), nil
	}
	return "", Invalidf("unknown status %q", s)
}

// Document is the persistent article row. Sections are stored separately and
// joined by DocumentID; see DocumentView for the assembled tree.
type Document struct {
	ID            string   `json:"id" bson:"_id,omitempty"`
	Title         string   `json:"title" bson:"title"`
	Slug          string   `json:"slug" bson:"slug"`
	Excerpt       string   `json:"excerpt,omitempty" bson:"excerpt,omitempty"`
	CoverImageRef string   `json:"coverImage,omitempty" bson:"coverImageRef,omitempty"`
	Tags          []string `json:"tags,omitempty" bson:"tags,omitempty"`
	Status        Status   `json:"status" bson:"status"`
	// PublishedAt is set only while Status is published.
	PublishedAt *time.Time `json:"publishedAt" bson:"publishedAt"`
	// FirstPublishedAt survives unpublish so a republish restores the original date.
	FirstPublishedAt   *time.Time `json:"firstPublishedAt,omitempty" bson:"firstPublishedAt,omitempty"`
	Author             string     `json:"author" bson:"author"`
	ReadingTimeMinutes int        `json:"readingTime" bson:"readingTime"`
	CreatedAt          time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.Tags != nil {
		c.Tags = append([]string(nil), d.Tags...)
	}
	if d.PublishedAt != nil {
		t := *d.PublishedAt
		c.PublishedAt = &t
	}
	if d.FirstPublishedAt != nil {
		t := *d.FirstPublishedAt
		c.FirstPublishedAt = &t
	}
	return &c
}

type Section struct {
	ID           string    `json:"id" bson:"_id,omitempty"`
	DocumentID   string    `json:"articleId" bson:"documentId"`
	Order        int       `json:"order" bson:"order"`
	Title        string    `json:"title" bson:"title"`
	BodyMarkdown string    `json:"bodyMarkdown" bson:"bodyMarkdown"`
	BodyHTML     string    `json:"bodyHtml" bson:"bodyHtml"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}

type Figure struct {
	ID        string    `json:"id" bson:"_id,omitempty"`
	SectionID string    `json:"sectionId" bson:"sectionId"`
	Order     int       `json:"order" bson:"order"`
	ImageRef  string    `json:"imageRef" bson:"imageRef"`
	Caption   string    `json:"caption,omitempty" bson:"caption,omitempty"`
	AltText   string    `json:"altText,omitempty" bson:"altText,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// SectionView is a section with its ordered figures.
type SectionView struct {
	*Section
	Figures []*Figure `json:"figures"`
}

// DocumentView is the nested Document -> Sections -> Figures read model.
type DocumentView struct {
	*Document
	Sections []*SectionView `json:"sections"`
}

// Principal is the authenticated caller of a write operation.
type Principal struct {
	Subject string
	Name    string
	Email   string
}

func (p Principal) Authenticated() bool {
	return p.Subject != "" || p.Name != "" || p.Email != ""
}

// DisplayName is what gets recorded as a document's author.
func (p Principal) DisplayName() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.Email != "":
		return p.Email
	}
	return p.Subject
}

// ListQuery selects a page of documents by status.
type ListQuery struct {
	Status Status
	Limit  int
	Offset int
}

// PrincipalFromClaims reads sub, name (or preferred_username) and email from
// verified token claims.
func PrincipalFromClaims(claims map[string]interface{}) Principal {
	str := func(k string) string {
		s, _ := claims[k].(string)
		return s
	}
	p := Principal{Subject: str("sub"), Name: str("name"), Email: str("email")}
	if p.Name == "" {
		p.Name = str("preferred_username")
	}
	return p
}
