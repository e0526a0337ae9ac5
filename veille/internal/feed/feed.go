// Package feed turns an RSS, Atom or JSON feed payload into the entry records
// the resolver works on. Parsing is delegated to gofeed; this package only
// normalises the fields pdfveille reads.
package feed

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
)

// UntitledTitle is used for entries that carry no title.
const UntitledTitle = "Untitled"

// ErrEmpty is returned by Parse for an empty payload.
var ErrEmpty = errors.New("feed: empty data")

// Enclosure is one attachment descriptor of an entry.
type Enclosure struct {
	Href string `json:"href"`
	Type string `json:"type,omitempty"`
}

// Entry is one item in a feed.
type Entry struct {
	GUID       string      `json:"guid,omitempty"`
	Title      string      `json:"title"`
	Link       string      `json:"link"`
	Published  string      `json:"published,omitempty"`
	Enclosures []Enclosure `json:"enclosures,omitempty"`
}

// Feed is a parsed feed, entries in document order.
type Feed struct {
	Title   string  `json:"title"`
	Link    string  `json:"link"`
	Entries []Entry `json:"entries"`
}

var titlePolicy = bluemonday.StrictPolicy()

// Parse auto-detects and parses an RSS, Atom or JSON feed.
func Parse(data []byte) (*Feed, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("feed: parse: %w", err)
	}

	f := &Feed{
		Title:   cleanTitle(parsed.Title),
		Link:    strings.TrimSpace(parsed.Link),
		Entries: make([]Entry, 0, len(parsed.Items)),
	}
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		f.Entries = append(f.Entries, toEntry(item))
	}
	return f, nil
}

func toEntry(item *gofeed.Item) Entry {
	e := Entry{
		GUID:      strings.TrimSpace(item.GUID),
		Title:     cleanTitle(item.Title),
		Link:      strings.TrimSpace(item.Link),
		Published: strings.TrimSpace(item.Published),
	}
	if e.Title == "" {
		e.Title = UntitledTitle
	}
	if e.Link == "" && len(item.Links) > 0 {
		e.Link = strings.TrimSpace(item.Links[0])
	}
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		e.Enclosures = append(e.Enclosures, Enclosure{Href: enc.URL, Type: enc.Type})
	}
	return e
}

// cleanTitle strips markup and entities so titles render as plain text.
func cleanTitle(s string) string {
	s = titlePolicy.Sanitize(s)
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}
