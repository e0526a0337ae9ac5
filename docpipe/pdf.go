package docpipe

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// extractPDFCPU reads the PDF with pdfcpu and decodes the text operators of
// each page's content stream. Every page yields a Page, empty or not.
func extractPDFCPU(data []byte) ([]Page, bool, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, false, fmt.Errorf("pdfcpu read: %w", err)
	}

	pages := make([]Page, 0, ctx.PageCount)
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		pages = append(pages, Page{Number: pageNr, Text: extractPageText(ctx, pageNr)})
	}
	return pages, detectImageStreams(ctx), nil
}

// extractPageText extracts text from a single PDF page via its content stream.
// A page whose stream cannot be read contributes "".
func extractPageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return extractTextFromStream(data)
}

// detectImageStreams reports whether any object in the xref table is an
// image XObject. Scanned documents carry images and no text operators.
func detectImageStreams(ctx *model.Context) bool {
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if name, ok := sd.Find("Subtype"); ok && name == types.Name("Image") {
			return true
		}
	}
	return false
}

// extractTextFromStream decodes the text-showing operators of a page content
// stream. The stream is tokenised operand by operand, so operators written on
// one line ("BT /F1 12 Tf 72 720 Td (x) Tj ET") are seen like one per line.
// Hex strings are skipped: they usually carry glyph IDs of CID fonts and only
// decode through the font's ToUnicode map, which the fallback engine reads.
func extractTextFromStream(data []byte) string {
	var (
		sb    strings.Builder
		stack []operand
	)
	sc := contentScanner{data: data}
	lastString := func() ([]byte, bool) {
		if len(stack) == 0 || stack[len(stack)-1].kind != operandString {
			return nil, false
		}
		return stack[len(stack)-1].str, true
	}

	for {
		o, op, ok := sc.next()
		if !ok {
			break
		}
		if op == "" {
			stack = append(stack, o)
			continue
		}

		switch op {
		case "BT", "Td", "TD", "Tm":
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		case "T*":
			sb.WriteByte('\n')
		case "Tj":
			if str, ok := lastString(); ok {
				sb.WriteString(decodePDFString(str))
			}
		case "'", `"`:
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			if str, ok := lastString(); ok {
				sb.WriteString(decodePDFString(str))
			}
		case "TJ":
			if len(stack) > 0 && stack[len(stack)-1].kind == operandArray {
				for _, item := range stack[len(stack)-1].items {
					switch {
					case item.kind == operandString:
						sb.WriteString(decodePDFString(item.str))
					case item.kind == operandNumber && item.num <= -wordGap:
						sb.WriteByte(' ')
					}
				}
			}
		}
		stack = stack[:0]
	}

	return cleanPDFText(sb.String())
}

// wordGap is the TJ displacement, in thousandths of text space, from which a
// gap between two strings is read as a space.
const wordGap = 250

type operandKind int

const (
	operandOther operandKind = iota
	operandString
	operandHex
	operandNumber
	operandArray
)

type operand struct {
	kind  operandKind
	str   []byte // raw literal string bytes, escapes unresolved
	num   float64
	items []operand
}

// contentScanner splits a content stream into operands and operators.
type contentScanner struct {
	data []byte
	pos  int
}

// next returns the next operand, or an operator name in op. ok is false at
// the end of the stream.
func (s *contentScanner) next() (o operand, op string, ok bool) {
	s.skipSpace()
	if s.pos >= len(s.data) {
		return operand{}, "", false
	}

	switch s.data[s.pos] {
	case '(':
		return operand{kind: operandString, str: s.literal()}, "", true
	case '<':
		if s.pos+1 < len(s.data) && s.data[s.pos+1] == '<' {
			s.pos += 2
			return operand{}, "", true
		}
		end := bytes.IndexByte(s.data[s.pos:], '>')
		if end < 0 {
			s.pos = len(s.data)
		} else {
			s.pos += end + 1
		}
		return operand{kind: operandHex}, "", true
	case '[':
		s.pos++
		return operand{kind: operandArray, items: s.array()}, "", true
	case '/':
		s.pos++
		s.word()
		return operand{}, "", true
	case '>', ']', '{', '}', ')':
		s.pos++
		return operand{}, "", true
	}

	w := s.word()
	if n, err := strconv.ParseFloat(string(w), 64); err == nil {
		return operand{kind: operandNumber, num: n}, "", true
	}
	if string(w) == "ID" {
		s.skipInlineImage()
	}
	return operand{}, string(w), true
}

func (s *contentScanner) array() []operand {
	var items []operand
	for {
		s.skipSpace()
		if s.pos >= len(s.data) {
			return items
		}
		if s.data[s.pos] == ']' {
			s.pos++
			return items
		}
		o, op, ok := s.next()
		if !ok {
			return items
		}
		if op == "" {
			items = append(items, o)
		}
	}
}

// literal reads a (...) string; balanced inner parentheses are part of it.
func (s *contentScanner) literal() []byte {
	s.pos++
	start, depth := s.pos, 1
	for s.pos < len(s.data) {
		switch s.data[s.pos] {
		case '\\':
			s.pos += 2
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				str := s.data[start:s.pos]
				s.pos++
				return str
			}
		}
		s.pos++
	}
	return s.data[start:min(s.pos, len(s.data))]
}

func (s *contentScanner) word() []byte {
	start := s.pos
	for s.pos < len(s.data) && !isPDFSpace(s.data[s.pos]) && !isPDFDelimiter(s.data[s.pos]) {
		s.pos++
	}
	if s.pos == start {
		s.pos++ // stray byte
	}
	return s.data[start:s.pos]
}

func (s *contentScanner) skipSpace() {
	for s.pos < len(s.data) {
		switch c := s.data[s.pos]; {
		case isPDFSpace(c):
			s.pos++
		case c == '%':
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
		default:
			return
		}
	}
}

// skipInlineImage jumps over the binary data of an inline image (BI ... ID
// data EI).
func (s *contentScanner) skipInlineImage() {
	for i := s.pos; i+1 < len(s.data); i++ {
		if s.data[i] != 'E' || s.data[i+1] != 'I' {
			continue
		}
		before := i == 0 || isPDFSpace(s.data[i-1])
		after := i+2 >= len(s.data) || isPDFSpace(s.data[i+2])
		if before && after {
			s.pos = i + 2
			return
		}
	}
	s.pos = len(s.data)
}

func isPDFSpace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isPDFDelimiter(c byte) bool {
	return bytes.IndexByte([]byte("()<>[]{}/%"), c) >= 0
}

// decodePDFString resolves escape sequences, then decodes the bytes either as
// UTF-16BE (when BOM-prefixed) or as Latin-1, which covers the accented
// letters of WinAnsi and PDFDocEncoding.
func decodePDFString(raw []byte) string {
	buf := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 >= len(raw) {
			buf = append(buf, c)
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			buf = append(buf, '\n')
		case 'r':
			buf = append(buf, '\r')
		case 't':
			buf = append(buf, '\t')
		case 'b', 'f':
		case '0', '1', '2', '3', '4', '5', '6', '7':
			val := int(raw[i] - '0')
			for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			buf = append(buf, byte(val))
		default:
			buf = append(buf, raw[i])
		}
	}

	if len(buf) >= 2 && buf[0] == 0xFE && buf[1] == 0xFF {
		units := make([]uint16, 0, (len(buf)-2)/2)
		for j := 2; j+1 < len(buf); j += 2 {
			units = append(units, uint16(buf[j])<<8|uint16(buf[j+1]))
		}
		return string(utf16.Decode(units))
	}

	runes := make([]rune, len(buf))
	for j, b := range buf {
		runes[j] = rune(b)
	}
	return string(runes)
}

// cleanPDFText collapses whitespace runs and drops unprintable runes.
func cleanPDFText(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsPrint(r):
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
