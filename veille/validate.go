package veille

import (
	"fmt"
	"unicode/utf8"

	"github.com/hazyhaar/pdfveille/veille/internal/search"
)

const (
	maxQueryLen   = 1024
	maxQueryWords = 32
)

// validateQuery bounds the work a single query can trigger. Empty queries
// are valid and yield no results.
func validateQuery(q string) error {
	if !utf8.ValidString(q) {
		return fmt.Errorf("%w: query is not valid UTF-8", ErrInvalidInput)
	}
	if len(q) > maxQueryLen {
		return fmt.Errorf("%w: query exceeds %d bytes", ErrInvalidInput, maxQueryLen)
	}
	if n := len(search.Words(q)); n > maxQueryWords {
		return fmt.Errorf("%w: query has %d words, max %d", ErrInvalidInput, n, maxQueryWords)
	}
	return nil
}
