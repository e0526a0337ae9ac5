// Package search finds every case-insensitive occurrence of each query word
// in a set of documents and returns it with a fixed-width context window.
//
// Matching is literal substring matching on runes: "art" matches inside
// "parti". There is no ranking; results follow document order, then query
// word order, then position in the text.
package search

import (
	"strings"
	"unicode"
)

// DefaultWidth is the number of runes kept on each side of a match.
const DefaultWidth = 50

// Document is one searchable text.
type Document struct {
	ID    string
	Title string
	Link  string
	Text  string
}

// Occurrence is one match of one query word.
type Occurrence struct {
	Word    string `json:"word"`
	Context string `json:"context"`
}

// Result groups the occurrences found in one document.
type Result struct {
	ID          string       `json:"id,omitempty"`
	Title       string       `json:"title"`
	Link        string       `json:"link"`
	Occurrences []Occurrence `json:"occurrences"`
}

// Engine runs queries with a fixed context width.
type Engine struct {
	Width int
}

// New returns an Engine with the given context width. A negative width is
// treated as zero.
func New(width int) *Engine {
	return &Engine{Width: max(width, 0)}
}

// Words splits a query on whitespace. Duplicates are kept.
func Words(query string) []string {
	return strings.Fields(query)
}

// Search returns the documents with at least one occurrence, in input order.
// An empty or whitespace-only query returns nil.
func (e *Engine) Search(docs []Document, query string) []Result {
	words := Words(query)
	if len(words) == 0 {
		return nil
	}
	folded := make([][]rune, len(words))
	for i, w := range words {
		folded[i] = foldRunes(w)
	}

	var results []Result
	for _, d := range docs {
		if d.Text == "" {
			continue
		}
		text := []rune(d.Text)
		ftext := foldRunes(d.Text)
		var occ []Occurrence
		for i, w := range words {
			occ = e.scan(occ, text, ftext, w, folded[i])
		}
		if len(occ) > 0 {
			results = append(results, Result{ID: d.ID, Title: d.Title, Link: d.Link, Occurrences: occ})
		}
	}
	return results
}

// Occurrences returns the occurrences of one word in text.
func (e *Engine) Occurrences(text, word string) []Occurrence {
	if word == "" {
		return nil
	}
	return e.scan(nil, []rune(text), foldRunes(text), word, foldRunes(word))
}

// scan appends every non-overlapping match of fword in ftext, left to right.
// text and ftext have the same length; word is the query word as typed.
func (e *Engine) scan(dst []Occurrence, text, ftext []rune, word string, fword []rune) []Occurrence {
	n, m := len(ftext), len(fword)
	for i := 0; i+m <= n; {
		if !hasPrefixAt(ftext, fword, i) {
			i++
			continue
		}
		start := max(i-e.Width, 0)
		end := min(i+m+e.Width, n)
		dst = append(dst, Occurrence{
			Word:    word,
			Context: strings.TrimSpace(string(text[start:end])),
		})
		i += m
	}
	return dst
}

func hasPrefixAt(s, prefix []rune, at int) bool {
	for j, r := range prefix {
		if s[at+j] != r {
			return false
		}
	}
	return true
}

// foldRunes maps every rune to a case-folded rune, one for one, so offsets
// in the folded slice are offsets in the unfolded text.
func foldRunes(s string) []rune {
	out := []rune(s)
	for i, r := range out {
		out[i] = unicode.ToLower(unicode.ToUpper(r))
	}
	return out
}
