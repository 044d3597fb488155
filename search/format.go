package search

import (
	"fmt"
	"strings"
)

// Format renders a response as display fragments, one platform message
// each: a "found N results" header first, then one fragment per group.
// It performs no I/O.
func Format(resp Response) []string {
	header := fmt.Sprintf("found %d results", resp.Found)
	if resp.Error != "" {
		header += "\nsearch error: " + resp.Error
	}
	fragments := []string{header}

	for _, g := range resp.Groups {
		docs := make([]string, 0, len(g.Documents))
		for _, d := range g.Documents {
			docs = append(docs, formatDocument(d))
		}
		if len(docs) > 0 {
			fragments = append(fragments, strings.Join(docs, "\n\n"))
		}
	}
	return fragments
}

// formatDocument renders one hit as a Markdown block: bold linked title,
// optional cache link, optional extended-text quote, passages as bullets.
func formatDocument(d Document) string {
	var b strings.Builder

	// Titles arrive with highlight markers; nested bold breaks rendering.
	title := strings.ReplaceAll(d.Title, "**", "")
	b.WriteString("# **[" + title + "](" + d.URL + ")")
	if d.SavedCopyURL != "" {
		b.WriteString(" ([cache](" + d.SavedCopyURL + "))")
	}
	b.WriteString("**")

	if d.ExtendedText != "" {
		b.WriteString("\n> " + d.ExtendedText)
	}
	for _, p := range d.Passages {
		b.WriteString("\n* " + p)
	}
	return b.String()
}
