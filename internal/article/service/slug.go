package service

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// defaultSlug is used when a title has no ASCII letters or digits left.
const defaultSlug = "article"

// SlugLookup reports whether a slug is already taken.
type SlugLookup interface {
	SlugExists(ctx context.Context, slug string) (bool, error)
}

// Slugify lowercases title, folds accented letters to ASCII and joins the
// remaining alphanumeric runs with single hyphens.
func Slugify(title string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	pendingHyphen := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	if b.Len() == 0 {
		return defaultSlug
	}
	return b.String()
}

// AllocateSlug returns the slugified title, or the first of base-1, base-2, ...
// that lookup does not know. The store's unique index still decides races.
func AllocateSlug(ctx context.Context, title string, lookup SlugLookup) (string, error) {
	base := Slugify(title)
	candidate := base
	for i := 1; ; i++ {
		taken, err := lookup.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}
