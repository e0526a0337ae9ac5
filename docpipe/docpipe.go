// Package docpipe extracts text from PDF payloads downloaded from a feed.
//
// Two engines are tried in order:
//   - pdfcpu: structure-aware parse, content-stream text operators per page
//   - ledongthuc/pdf: font-aware plain text, used when pdfcpu fails or finds no text
//
// Extraction is best effort: pages without text contribute "", and a panic
// inside either parser is converted to ErrMalformedDocument.
//
// Usage:
//
//	pipe := docpipe.New(docpipe.Config{})
//	doc, err := pipe.ExtractBytes(ctx, body)
//	fmt.Println(doc.Title, len(doc.Pages), "pages")
package docpipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

// pdfMagic must appear within the first headerWindow bytes of a PDF.
var pdfMagic = []byte("%PDF-")

const headerWindow = 1024

// Pipeline is the document extraction engine.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Sniff reports whether data looks like a PDF.
func Sniff(data []byte) bool {
	head := data
	if len(head) > headerWindow {
		head = head[:headerWindow]
	}
	return bytes.Contains(head, pdfMagic)
}

// ExtractBytes parses a PDF payload and returns its per-page text.
// Errors wrap ErrUnsupportedContent or ErrMalformedDocument.
func (p *Pipeline) ExtractBytes(ctx context.Context, data []byte) (doc *Document, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if int64(len(data)) > p.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: payload too large: %d bytes (max %d)", ErrUnsupportedContent, len(data), p.cfg.MaxFileSize)
	}
	if !Sniff(data) {
		return nil, fmt.Errorf("%w: %s is not a PDF", ErrUnsupportedContent, http.DetectContentType(data))
	}

	pages, engine, hasImages, err := p.extractPages(data)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(pages))
	for i, pg := range pages {
		texts[i] = pg.Text
	}
	raw := strings.Join(texts, "\n")

	doc = &Document{
		Format:  FormatPDF,
		Engine:  engine,
		Title:   firstLine(raw, p.cfg.TitleRunes),
		Pages:   pages,
		RawText: raw,
		Quality: measureQuality(pages, hasImages),
	}
	p.logger.Debug("docpipe: extracted",
		"engine", engine, "pages", len(pages), "text_len", len(raw),
		"needs_ocr", doc.Quality.NeedsOCR())
	return doc, nil
}

// ExtractFile reads a local PDF and extracts it like ExtractBytes.
func (p *Pipeline) ExtractFile(ctx context.Context, path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > p.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: file too large: %d bytes (max %d)", ErrUnsupportedContent, info.Size(), p.cfg.MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return p.ExtractBytes(ctx, data)
}

// extractPages runs pdfcpu, then the fallback engine when pdfcpu errors or
// finds no text at all.
func (p *Pipeline) extractPages(data []byte) ([]Page, Engine, bool, error) {
	pages, hasImages, primaryErr := safely(func() ([]Page, bool, error) {
		return extractPDFCPU(data)
	})
	if primaryErr == nil && (allText(pages) || p.cfg.NoFallback) {
		return pages, EnginePDFCPU, hasImages, nil
	}
	if p.cfg.NoFallback {
		return nil, "", false, fmt.Errorf("%w: %v", ErrMalformedDocument, primaryErr)
	}

	fbPages, _, fbErr := safely(func() ([]Page, bool, error) {
		pg, err := extractLedongthuc(data)
		return pg, false, err
	})
	switch {
	case primaryErr != nil && fbErr != nil:
		return nil, "", false, fmt.Errorf("%w: %w", ErrMalformedDocument, errors.Join(primaryErr, fbErr))
	case primaryErr != nil:
		p.logger.Debug("docpipe: pdfcpu failed, used fallback", "error", primaryErr)
		return fbPages, EngineLedongthuc, hasImages, nil
	case fbErr != nil:
		p.logger.Debug("docpipe: fallback failed, kept pdfcpu pages", "error", fbErr)
		return pages, EnginePDFCPU, hasImages, nil
	}

	merged, engine := mergePages(pages, fbPages)
	return merged, engine, hasImages, nil
}

// mergePages fills the empty pages of primary with the text the fallback
// found for the same page. Page count and numbering follow primary.
func mergePages(primary, fallback []Page) ([]Page, Engine) {
	merged := make([]Page, len(primary))
	var fromPrimary, fromFallback int
	for i, pg := range primary {
		merged[i] = pg
		switch {
		case pg.Text != "":
			fromPrimary++
		case i < len(fallback) && fallback[i].Text != "":
			merged[i].Text = fallback[i].Text
			fromFallback++
		}
	}
	switch {
	case fromFallback == 0:
		return merged, EnginePDFCPU
	case fromPrimary == 0:
		return merged, EngineLedongthuc
	default:
		return merged, EngineMixed
	}
}

// safely runs fn and turns a parser panic into an error.
func safely(fn func() ([]Page, bool, error)) (pages []Page, flag bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, flag, err = nil, false, fmt.Errorf("parser panic: %v", r)
		}
	}()
	return fn()
}

// allText reports whether every page has text. An empty page sends the
// document through the fallback engine, which may read it.
func allText(pages []Page) bool {
	for _, pg := range pages {
		if strings.TrimSpace(pg.Text) == "" {
			return false
		}
	}
	return len(pages) > 0
}

// firstLine returns the first non-empty line of text, cut to maxRunes.
func firstLine(text string, maxRunes int) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > maxRunes {
			line = string(r[:maxRunes])
		}
		return line
	}
	return ""
}
