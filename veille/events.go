package veille

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hazyhaar/pdfveille/docpipe"
	"github.com/hazyhaar/pdfveille/observability"
	"github.com/hazyhaar/pdfveille/veille/internal/corpus"
	fetchpkg "github.com/hazyhaar/pdfveille/veille/internal/fetch"
)

// eventRecorder writes corpus attempts to the event log.
type eventRecorder struct {
	events *observability.EventLogger
	logger *slog.Logger
}

func (r *eventRecorder) RecordAttempt(ctx context.Context, a corpus.Attempt) {
	e := &observability.DocumentEvent{
		PublicationID: a.PublicationID,
		URL:           a.URL,
		Status:        observability.StatusOK,
		Bytes:         a.Bytes,
		Chars:         a.Chars,
		ContentHash:   a.Hash,
		DurationMs:    a.Duration.Milliseconds(),
	}
	if a.Err != nil {
		e.Status = observability.StatusError
		e.Stage = string(a.Err.Stage)
		e.ErrorKind = errorKind(a.Err.Err)
		e.ErrorMessage = a.Err.Err.Error()
	}
	if err := r.events.LogDocument(ctx, e); err != nil {
		r.logger.Warn("veille: record document event", "url", a.URL, "error", err)
	}
}

// errorKind names the failure class of a document error.
func errorKind(err error) string {
	var se *fetchpkg.StatusError
	switch {
	case errors.Is(err, fetchpkg.ErrBlockedURL):
		return "blocked"
	case errors.Is(err, fetchpkg.ErrTimeout):
		return "timeout"
	case errors.As(err, &se):
		return "http_status"
	case errors.Is(err, fetchpkg.ErrNetwork):
		return "network"
	case errors.Is(err, docpipe.ErrUnsupportedContent):
		return "unsupported"
	case errors.Is(err, docpipe.ErrMalformedDocument):
		return "malformed"
	}
	return "other"
}
