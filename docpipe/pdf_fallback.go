package docpipe

import (
	"bytes"
	"fmt"

	lpdf "github.com/ledongthuc/pdf"
)

// extractLedongthuc is the second engine. It resolves fonts and ToUnicode
// maps, so it recovers text from PDFs whose content streams use hex strings
// or CID fonts that the content-stream scanner cannot decode.
func extractLedongthuc(data []byte) ([]Page, error) {
	r, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("ledongthuc read: %w", err)
	}

	n := r.NumPage()
	pages := make([]Page, 0, n)
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			text = ""
		}
		pages = append(pages, Page{Number: i, Text: cleanPDFText(text)})
	}
	return pages, nil
}
