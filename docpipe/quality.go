package docpipe

import (
	"strings"
	"unicode"
)

// ExtractionQuality captures metrics about PDF text extraction quality.
type ExtractionQuality struct {
	PageCount       int     `json:"page_count"`
	EmptyPages      int     `json:"empty_pages"`
	CharsPerPage    float64 `json:"chars_per_page"`
	PrintableRatio  float64 `json:"printable_ratio"`
	HasImageStreams bool    `json:"has_image_streams"`
}

// NeedsOCR reports whether the PDF is likely scanned: images but almost no text,
// or text that is mostly unprintable glyph soup.
func (q *ExtractionQuality) NeedsOCR() bool {
	return (q.CharsPerPage < 50 && q.HasImageStreams) || q.PrintableRatio < 0.85
}

func measureQuality(pages []Page, hasImages bool) *ExtractionQuality {
	q := &ExtractionQuality{
		PageCount:       len(pages),
		HasImageStreams: hasImages,
	}
	var all strings.Builder
	total := 0
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			q.EmptyPages++
			continue
		}
		total += len([]rune(p.Text))
		all.WriteString(p.Text)
	}
	if q.PageCount > 0 {
		q.CharsPerPage = float64(total) / float64(q.PageCount)
	}
	q.PrintableRatio = computePrintableRatio(all.String())
	return q
}

// computePrintableRatio returns the ratio of printable characters in text.
// Excludes PUA U+E000-U+F8FF, control chars < U+0020 (except \n\r\t), U+FFFD.
func computePrintableRatio(text string) float64 {
	if len(text) == 0 {
		return 1.0
	}
	total := 0
	printable := 0
	for _, r := range text {
		total++
		if isGarbageRune(r) {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	return float64(printable) / float64(total)
}

func isGarbageRune(r rune) bool {
	switch {
	case r >= 0xE000 && r <= 0xF8FF:
		return true
	case r == unicode.ReplacementChar:
		return true
	case r < 0x0020 && r != '\n' && r != '\r' && r != '\t':
		return true
	}
	return false
}
