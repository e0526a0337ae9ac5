// Package resolve maps a feed entry to the document URLs worth fetching.
package resolve

import (
	"strings"

	"github.com/hazyhaar/pdfveille/veille/internal/feed"
)

// DocumentSuffix is the file-extension marker of a fetchable document.
const DocumentSuffix = ".pdf"

// DocumentURLs returns the entry's PDF URLs in discovery order, without
// duplicates. Enclosures win; the entry link is used only when no enclosure
// qualifies.
func DocumentURLs(e feed.Entry) []string {
	var urls []string
	seen := make(map[string]bool)
	add := func(u string) {
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}

	for _, enc := range e.Enclosures {
		if href := strings.TrimSpace(enc.Href); IsDocumentURL(href) {
			add(href)
		}
	}
	if len(urls) == 0 {
		if link := strings.TrimSpace(e.Link); IsDocumentURL(link) {
			add(link)
		}
	}
	return urls
}

// IsDocumentURL reports whether u ends with DocumentSuffix, ignoring case.
func IsDocumentURL(u string) bool {
	u = strings.TrimSpace(u)
	return len(u) > len(DocumentSuffix) && strings.EqualFold(u[len(u)-len(DocumentSuffix):], DocumentSuffix)
}
