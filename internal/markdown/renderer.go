package markdown

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

var (
	codeLanguage = regexp.MustCompile(`^language-[\w-]+$`)
	// eventHandler matches "onxxx=" in text that survived sanitizing.
	eventHandler = regexp.MustCompile(`(?i)(\bon[a-z]+)(\s*)=`)
)

// Renderer turns author Markdown into sanitized HTML. A single instance is
// safe for concurrent use.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewRenderer builds a GFM renderer. Raw HTML in the source is dropped by the
// parser and the output is scrubbed again by a UGC sanitizing policy.
func NewRenderer() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Footnote),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)

	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.AllowAttrs("class").Matching(codeLanguage).OnElements("code")

	return &Renderer{md: md, policy: p}
}

// Render converts src to sanitized HTML and counts its words. Empty input
// yields empty output.
func (r *Renderer) Render(src string) (string, int, error) {
	words := WordCount(src)
	if strings.TrimSpace(src) == "" {
		return "", 0, nil
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", words, fmt.Errorf("markdown convert: %w", err)
	}
	out := r.policy.SanitizeBytes(buf.Bytes())
	return neutralize(strings.TrimSpace(string(out))), words, nil
}

// Escape is the fallback used when Render fails: the source is shown as
// literal text.
func Escape(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	return "<p>" + neutralize(html.EscapeString(src)) + "</p>"
}

// WordCount returns the number of whitespace separated tokens in src.
func WordCount(src string) int {
	return len(strings.Fields(src))
}

// ReadingTime is ceil(words / wpm).
func ReadingTime(words, wpm int) int {
	if words <= 0 {
		return 0
	}
	if wpm <= 0 {
		wpm = 200
	}
	return (words + wpm - 1) / wpm
}

// neutralize encodes the "=" of handler-looking text so that literal prose
// like "onerror=" can never be read back as an attribute.
func neutralize(s string) string {
	return eventHandler.ReplaceAllString(s, "$1$2&#61;")
}
