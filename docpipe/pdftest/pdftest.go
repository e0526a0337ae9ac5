// Package pdftest builds minimal, valid PDF files for tests.
package pdftest

import (
	"fmt"
	"strings"
)

// TextPDF returns a PDF with one page per element of pages. Each non-empty
// string is painted with a single Tj operator in Helvetica; an empty string
// yields a page whose content stream has no text operator.
func TextPDF(pages ...string) []byte {
	streams := make([]string, len(pages))
	for i, text := range pages {
		streams[i] = TextStream(text)
	}
	return StreamPDF(streams...)
}

// TextStream is the content stream TextPDF writes for one page, one operator
// per line.
func TextStream(text string) string {
	if text == "" {
		return "q Q"
	}
	return "BT\n/F1 12 Tf\n72 720 Td\n(" + Escape(text) + ") Tj\nET"
}

// InlineTextStream paints text with every operator on a single line.
func InlineTextStream(text string) string {
	return "BT /F1 12 Tf 72 720 Td (" + Escape(text) + ") Tj ET"
}

// HexTextStream paints text as a hex string. Runes above U+00FF are dropped.
func HexTextStream(text string) string {
	var b strings.Builder
	for _, r := range text {
		if r <= 0xFF {
			fmt.Fprintf(&b, "%02X", r)
		}
	}
	return "BT\n/F1 12 Tf\n72 720 Td\n<" + b.String() + "> Tj\nET"
}

// StreamPDF returns a PDF with one page per content stream. Every page
// references Helvetica as /F1.
func StreamPDF(streams ...string) []byte {
	if len(streams) == 0 {
		streams = []string{"q Q"}
	}
	n := len(streams)
	size := 4 + 2*n // free entry, catalog, pages, font, then page+content pairs

	var b strings.Builder
	offsets := make([]int, size)
	b.WriteString("%PDF-1.4\n")

	kids := make([]string, n)
	for i := range streams {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	offsets[2] = b.Len()
	fmt.Fprintf(&b, "2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), n)
	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	for i, stream := range streams {
		pageObj, contentObj := 4+2*i, 5+2*i

		offsets[pageObj] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>\nendobj\n", pageObj, contentObj)
		offsets[contentObj] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", contentObj, len(stream), stream)
	}

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", size)
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i < size; i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xref)
	return []byte(b.String())
}

// Escape escapes backslashes and parentheses for a PDF string literal.
// Non-ASCII runes are written as Latin-1 octal escapes when they fit in a byte.
func Escape(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r == '\\' || r == '(' || r == ')':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r > 0x7E && r <= 0xFF:
			fmt.Fprintf(&b, "\\%03o", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
