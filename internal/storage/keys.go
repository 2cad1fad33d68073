package storage

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// shortID is the first 8 characters of a random UUID.
func shortID() string {
	return uuid.NewString()[:8]
}

func cleanExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "" || strings.ContainsAny(ext, "/\\") || len(ext) > 8 {
		return "bin"
	}
	return ext
}

// ExtFromName returns the extension of a client file name without the dot.
func ExtFromName(name string) string {
	return cleanExt(path.Ext(name))
}

// CoverKey is article-<id>/cover-<short>.<ext>, or
// articles/covers/<unix-ms>-<short>.<ext> before the article exists.
func CoverKey(articleID, ext string) string {
	if articleID != "" {
		return fmt.Sprintf("article-%s/cover-%s.%s", articleID, shortID(), cleanExt(ext))
	}
	return fmt.Sprintf("articles/covers/%d-%s.%s", time.Now().UnixMilli(), shortID(), cleanExt(ext))
}

// FigureKey is article-<id>/figure-<sectionId>-<short>.<ext>, or
// articles/figures/<unix-ms>-<short>.<ext> when either id is unknown.
func FigureKey(articleID, sectionID, ext string) string {
	if articleID != "" && sectionID != "" {
		return fmt.Sprintf("article-%s/figure-%s-%s.%s", articleID, sectionID, shortID(), cleanExt(ext))
	}
	return fmt.Sprintf("articles/figures/%d-%s.%s", time.Now().UnixMilli(), shortID(), cleanExt(ext))
}
