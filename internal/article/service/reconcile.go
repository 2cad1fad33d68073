package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lumenpress/lumen/backend/go-services/internal/article"
	"github.com/lumenpress/lumen/backend/go-services/internal/markdown"
	"github.com/lumenpress/lumen/backend/go-services/pkg/logger"
	"github.com/lumenpress/lumen/backend/go-services/pkg/metrics"
)

// bodyKeyRunes is how much of a section body identifies it for duplicate detection.
const bodyKeyRunes = 100

func orderKey(order int, s string) string {
	return strconv.Itoa(order) + "\x00" + s
}

// bodyPrefix is the first bodyKeyRunes runes of body, untrimmed. Empty bodies
// share the empty prefix, so they collide at the same order.
func bodyPrefix(body string) string {
	n := 0
	for i := range body {
		if n == bodyKeyRunes {
			return body[:i]
		}
		n++
	}
	return body
}

// UpdateSections decodes a raw "sections" value and reconciles it into the
// document. Anything but a JSON array leaves the content untouched.
func (s *Service) UpdateSections(ctx context.Context, p article.Principal, documentID string, raw json.RawMessage) (*article.ReconcileResult, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	sections, ok, err := article.DecodeSections(raw)
	if err != nil {
		return nil, err
	}
	return s.Reconcile(ctx, documentID, sections, ok)
}

// Reconcile merges the submitted section tree into the persisted one. When
// present is false nothing is written.
//
// Sections are matched by id, then by (order, title), and otherwise created.
// Sections missing from the submission are kept. Figures of every submitted
// section are replaced by the submitted list: matched by id, then by
// (order, imageRef), and unmatched persisted figures are deleted.
//
// A failing section is recorded in Failures and the rest continue; an
// unavailable store or a cancelled context aborts the call.
func (s *Service) Reconcile(ctx context.Context, documentID string, submitted []article.SectionInput, present bool) (*article.ReconcileResult, error) {
	d, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	res := &article.ReconcileResult{}
	log := logger.With("document", d.ID)
	if !present {
		log.Debugf("no sections submitted, content left untouched")
		return res, nil
	}
	res.Applied = true

	kept := dedupSections(submitted, res, log)

	persisted, err := s.store.ListSections(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	idx := newSectionIndex(persisted)

	words := 0
	for _, item := range kept {
		words += markdown.WordCount(item.in.BodyMarkdown)
		sectionID, err := s.reconcileSection(ctx, d.ID, item.in, idx, res, log)
		if err == nil {
			continue
		}
		if article.IsFatal(err) {
			log.Errorf("reconcile aborted at section %d: %v", item.index, err)
			return nil, err
		}
		log.Warnf("section %d skipped: %v", item.index, err)
		res.Failures = append(res.Failures, article.ItemFailure{
			Index:     item.index,
			SectionID: sectionID,
			Reason:    err.Error(),
		})
	}

	res.ReadingTimeMinutes = markdown.ReadingTime(words, s.wpm)
	d.ReadingTimeMinutes = res.ReadingTimeMinutes
	if err := s.store.UpdateDocument(ctx, d); err != nil {
		return nil, err
	}
	s.invalidate(ctx, d)
	recordReconcile(res)
	log.Infof("sections reconciled: created=%d updated=%d duplicate=%d figures created=%d updated=%d deleted=%d failures=%d",
		res.SectionsCreated, res.SectionsUpdated, res.SectionsDuplicate,
		res.FiguresCreated, res.FiguresUpdated, res.FiguresDeleted, len(res.Failures))
	return res, nil
}

type indexedSection struct {
	index int
	in    article.SectionInput
}

// dedupSections keeps the first of any sections sharing an id, an
// (order, title) pair or an (order, body prefix) pair.
func dedupSections(in []article.SectionInput, res *article.ReconcileResult, log *logger.Entry) []indexedSection {
	ids := map[string]bool{}
	titles := map[string]bool{}
	bodies := map[string]bool{}
	out := make([]indexedSection, 0, len(in))
	for i, sec := range in {
		id := strings.TrimSpace(sec.ID)
		tkey := orderKey(sec.Order, strings.TrimSpace(sec.Title))
		bkey := orderKey(sec.Order, bodyPrefix(sec.BodyMarkdown))
		if (id != "" && ids[id]) || titles[tkey] || bodies[bkey] {
			res.SectionsDuplicate++
			log.Warnf("dropping duplicate section %d (order=%d title=%q)", i, sec.Order, sec.Title)
			continue
		}
		if id != "" {
			ids[id] = true
		}
		titles[tkey] = true
		bodies[bkey] = true
		sec.ID = id
		out = append(out, indexedSection{index: i, in: sec})
	}
	return out
}

// sectionIndex resolves submissions to persisted rows. A row is claimed by at
// most one submission per call.
type sectionIndex struct {
	byID    map[string]*article.Section
	byTitle map[string][]*article.Section
	claimed map[string]bool
}

func newSectionIndex(rows []*article.Section) *sectionIndex {
	x := &sectionIndex{
		byID:    make(map[string]*article.Section, len(rows)),
		byTitle: make(map[string][]*article.Section, len(rows)),
		claimed: make(map[string]bool, len(rows)),
	}
	for _, r := range rows {
		x.byID[r.ID] = r
		k := orderKey(r.Order, strings.TrimSpace(r.Title))
		x.byTitle[k] = append(x.byTitle[k], r)
	}
	return x
}

func (x *sectionIndex) resolve(id string, order int, title string) *article.Section {
	if id != "" {
		if r, ok := x.byID[id]; ok && !x.claimed[id] {
			return r
		}
	}
	for _, r := range x.byTitle[orderKey(order, title)] {
		if !x.claimed[r.ID] {
			return r
		}
	}
	return nil
}

func (x *sectionIndex) claim(r *article.Section) {
	x.claimed[r.ID] = true
}

func (s *Service) reconcileSection(ctx context.Context, documentID string, in article.SectionInput, idx *sectionIndex, res *article.ReconcileResult, log *logger.Entry) (string, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return in.ID, article.Invalidf("section title is required")
	}
	html := s.render(in.BodyMarkdown, log)

	row := idx.resolve(in.ID, in.Order, title)
	if row != nil {
		row.Order = in.Order
		row.Title = title
		row.BodyMarkdown = in.BodyMarkdown
		row.BodyHTML = html
		if err := s.store.UpdateSection(ctx, row); err != nil {
			return row.ID, err
		}
		res.SectionsUpdated++
	} else {
		row = &article.Section{
			DocumentID:   documentID,
			Order:        in.Order,
			Title:        title,
			BodyMarkdown: in.BodyMarkdown,
			BodyHTML:     html,
		}
		if err := s.store.CreateSection(ctx, row); err != nil {
			return "", err
		}
		res.SectionsCreated++
	}
	idx.claim(row)

	return row.ID, s.reconcileFigures(ctx, row.ID, in.Figures, res, log.With("section", row.ID))
}

// render falls back to escaped text so one bad body cannot block the others.
func (s *Service) render(src string, log *logger.Entry) string {
	html, _, err := s.renderer.Render(src)
	if err != nil {
		metrics.RenderFallbacks.Inc()
		log.Warnf("markdown render failed, storing escaped text: %v", err)
		return markdown.Escape(src)
	}
	return html
}

type figureSubmission struct {
	id       string
	order    int
	imageRef string
	caption  string
	altText  string
}

// dedupFigures normalises submitted figures: empty image refs are discarded,
// ids that are not UUIDs are dropped, and repeats of an id or an
// (order, imageRef) pair are skipped.
func dedupFigures(in []article.FigureInput, res *article.ReconcileResult, log *logger.Entry) []figureSubmission {
	ids := map[string]bool{}
	keys := map[string]bool{}
	out := make([]figureSubmission, 0, len(in))
	for i, f := range in {
		ref := strings.TrimSpace(string(f.ImageRef))
		if ref == "" {
			res.FiguresDiscarded++
			log.Warnf("discarding figure %d without imageRef", i)
			continue
		}
		id := strings.TrimSpace(string(f.ID))
		if _, err := uuid.Parse(id); err != nil {
			id = ""
		}
		k := orderKey(int(f.Order), ref)
		if (id != "" && ids[id]) || keys[k] {
			res.FiguresDiscarded++
			log.Warnf("discarding duplicate figure %d (order=%d imageRef=%q)", i, int(f.Order), ref)
			continue
		}
		if id != "" {
			ids[id] = true
		}
		keys[k] = true
		out = append(out, figureSubmission{
			id:       id,
			order:    int(f.Order),
			imageRef: ref,
			caption:  strings.TrimSpace(f.Caption),
			altText:  strings.TrimSpace(f.AltText),
		})
	}
	return out
}

func (s *Service) reconcileFigures(ctx context.Context, sectionID string, submitted []article.FigureInput, res *article.ReconcileResult, log *logger.Entry) error {
	current, err := s.store.ListFigures(ctx, sectionID)
	if err != nil {
		return err
	}
	byID := make(map[string]*article.Figure, len(current))
	byKey := make(map[string][]*article.Figure, len(current))
	for _, f := range current {
		byID[f.ID] = f
		k := orderKey(f.Order, strings.TrimSpace(f.ImageRef))
		byKey[k] = append(byKey[k], f)
	}
	claimed := make(map[string]bool, len(current))
	resolve := func(sub figureSubmission) *article.Figure {
		if sub.id != "" {
			if f, ok := byID[sub.id]; ok && !claimed[f.ID] {
				return f
			}
		}
		for _, f := range byKey[orderKey(sub.order, sub.imageRef)] {
			if !claimed[f.ID] {
				return f
			}
		}
		return nil
	}

	for _, sub := range dedupFigures(submitted, res, log) {
		row := resolve(sub)
		if row != nil {
			row.Order = sub.order
			row.ImageRef = sub.imageRef
			row.Caption = sub.caption
			row.AltText = sub.altText
			if err := s.store.UpdateFigure(ctx, row); err != nil {
				return err
			}
			res.FiguresUpdated++
		} else {
			row = &article.Figure{
				SectionID: sectionID,
				Order:     sub.order,
				ImageRef:  sub.imageRef,
				Caption:   sub.caption,
				AltText:   sub.altText,
			}
			if err := s.store.CreateFigure(ctx, row); err != nil {
				return err
			}
			res.FiguresCreated++
		}
		claimed[row.ID] = true
	}

	for _, f := range current {
		if claimed[f.ID] {
			continue
		}
		if err := s.store.DeleteFigure(ctx, f.ID); err != nil && !isNotFound(err) {
			return err
		}
		res.FiguresDeleted++
		log.Debugf("pruned figure %s (%s)", f.ID, f.ImageRef)
	}
	return nil
}

func recordReconcile(res *article.ReconcileResult) {
	add := func(entity, op string, n int) {
		if n > 0 {
			metrics.ReconcileRows.WithLabelValues(entity, op).Add(float64(n))
		}
	}
	add("section", "created", res.SectionsCreated)
	add("section", "updated", res.SectionsUpdated)
	add("section", "duplicate", res.SectionsDuplicate)
	add("section", "failed", len(res.Failures))
	add("figure", "created", res.FiguresCreated)
	add("figure", "updated", res.FiguresUpdated)
	add("figure", "deleted", res.FiguresDeleted)
	add("figure", "discarded", res.FiguresDiscarded)
}
