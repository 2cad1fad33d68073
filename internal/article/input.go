package article

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// CreateInput is the payload of createDocument.
type CreateInput struct {
	Title    string   `json:"title" validate:"required,max=255"`
	Excerpt  string   `json:"excerpt" validate:"max=512"`
	CoverRef string   `json:"coverImage" validate:"max=1024"`
	Tags     []string `json:"tags" validate:"max=32,dive,max=64"`
}

// UpdateInput carries optional metadata edits. Nil fields are left unchanged.
type UpdateInput struct {
	Title    *string `json:"title" validate:"omitempty,min=1,max=255"`
	Excerpt  *string `json:"excerpt" validate:"omitempty,max=512"`
	CoverRef *string `json:"coverImage" validate:"omitempty,max=1024"`
}

// SectionInput is one submitted section. ID is only ever used to address an
// existing row.
type SectionInput struct {
	ID           string        `json:"id,omitempty"`
	Order        int           `json:"order"`
	Title        string        `json:"title"`
	BodyMarkdown string        `json:"bodyMarkdown"`
	Figures      []FigureInput `json:"figures"`
}

type FigureInput struct {
	ID       LooseString `json:"id,omitempty"`
	Order    LooseInt    `json:"order"`
	ImageRef LooseString `json:"imageRef"`
	Caption  string      `json:"caption,omitempty"`
	AltText  string      `json:"altText,omitempty"`
}

// DecodeSections interprets a raw "sections" value. A missing, null or
// non-array value yields ok=false, meaning "leave content untouched". An array
// whose elements do not match the section shape is a validation error.
func DecodeSections(raw json.RawMessage) (sections []SectionInput, ok bool, err error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sections); err != nil {
		return nil, false, Invalidf("sections: %v", err)
	}
	if sections == nil {
		sections = []SectionInput{}
	}
	return sections, true, nil
}

// LooseInt decodes any JSON value into an int. Numbers and numeric strings
// keep their value; everything else becomes 0.
type LooseInt int

func (n *LooseInt) UnmarshalJSON(b []byte) error {
	*n = 0
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*n = LooseInt(int(v))
		}
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*n = LooseInt(int(f))
	}
	return nil
}

// LooseString decodes JSON strings as-is and every other JSON value as "".
type LooseString string

func (s *LooseString) UnmarshalJSON(b []byte) error {
	*s = ""
	var v string
	if err := json.Unmarshal(b, &v); err == nil {
		*s = LooseString(v)
	}
	return nil
}

// ItemFailure records one section or figure skipped during reconciliation.
type ItemFailure struct {
	Index     int    `json:"index"`
	SectionID string `json:"sectionId,omitempty"`
	Reason    string `json:"reason"`
}

// ReconcileResult summarises a reconcile call.
type ReconcileResult struct {
	// Applied is false when no section list was submitted.
	Applied           bool `json:"applied"`
	SectionsCreated   int  `json:"sectionsCreated"`
	SectionsUpdated   int  `json:"sectionsUpdated"`
	// SectionsDeleted stays 0: sections are only removed with their document.
	SectionsDeleted    int           `json:"sectionsDeleted"`
	SectionsDuplicate  int           `json:"sectionsDuplicate"`
	FiguresCreated     int           `json:"figuresCreated"`
	FiguresUpdated     int           `json:"figuresUpdated"`
	FiguresDeleted     int           `json:"figuresDeleted"`
	FiguresDiscarded   int           `json:"figuresDiscarded"`
	ReadingTimeMinutes int           `json:"readingTime"`
	Failures           []ItemFailure `json:"failures,omitempty"`
}

// Partial reports whether some items were skipped.
func (r *ReconcileResult) Partial() bool {
	return r != nil && len(r.Failures) > 0
}
