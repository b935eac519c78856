package retrieval

import "strings"

const (
	highlightBefore = 50
	highlightAfter  = 200
	snippetLength   = 200
)

// Highlight extracts a snippet of content around the first query term found
// in it. The window runs from 50 characters before the match to 200 after,
// clipped to the content and marked with ellipses where clipped. When no term
// matches, the first 200 characters are returned instead.
func Highlight(content, query string) string {
	if content == "" {
		return ""
	}

	contentLower := strings.ToLower(content)
	for _, word := range strings.Fields(strings.ToLower(query)) {
		pos := strings.Index(contentLower, word)
		if pos < 0 {
			continue
		}

		start := pos - highlightBefore
		if start < 0 {
			start = 0
		}
		end := pos + highlightAfter
		if end > len(content) {
			end = len(content)
		}

		snippet := content[start:end]
		if start > 0 {
			snippet = "..." + snippet
		}
		if end < len(content) {
			snippet = snippet + "..."
		}
		return snippet
	}

	if len(content) > snippetLength {
		return content[:snippetLength] + "..."
	}
	return content
}
