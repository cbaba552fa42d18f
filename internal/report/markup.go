package report

import (
	"html/template"
	"regexp"
	"strings"
)

// Narrative markup transforms. The four stages are ordered: each stage
// operates on the output of the previous one, and the whole pipeline is
// idempotent because every stage's output no longer matches its own pattern.
var (
	boldRe     = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe   = regexp.MustCompile(`\*(.+?)\*`)
	numberedRe = regexp.MustCompile(`([ \t])(\d+)\. `)
)

// RenderNarrativeHTML converts lightweight narrative markup into an inline
// HTML fragment. Stages, in order: bold, italic, paragraph and line breaks
// with a single wrapping paragraph, numbered-list breaks.
func RenderNarrativeHTML(text string) template.HTML {
	s := strings.ReplaceAll(text, "\r\n", "\n")
	s = strings.TrimSpace(s)

	s = renderBold(s)
	s = renderItalic(s)
	s = renderParagraphs(s)
	s = renderNumberedBreaks(s)

	return template.HTML(s)
}

func renderBold(s string) string {
	return boldRe.ReplaceAllString(s, "<strong>$1</strong>")
}

func renderItalic(s string) string {
	return italicRe.ReplaceAllString(s, "<em>$1</em>")
}

// renderParagraphs turns blank lines into paragraph breaks, remaining
// newlines into line breaks, and wraps the whole text in one paragraph.
// The wrap happens at most once so re-running the pipeline cannot nest
// paragraphs.
func renderParagraphs(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	s = strings.ReplaceAll(s, "\n\n", "</p><p>")
	s = strings.ReplaceAll(s, "\n", "<br>")

	if !strings.HasPrefix(s, "<p>") {
		s = "<p>" + s + "</p>"
	}
	return s
}

// renderNumberedBreaks injects a line break before inline numbered-list
// markers. Markers already at a break or paragraph boundary are untouched.
func renderNumberedBreaks(s string) string {
	return numberedRe.ReplaceAllString(s, "<br>$2. ")
}
