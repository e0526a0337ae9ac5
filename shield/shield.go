// Package shield provides the HTTP middleware stack placed in front of the
// pdfveille handlers: security headers, body limits, request IDs with a
// per-request logger, and HEAD handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultBodyLimit caps request bodies. Only the MCP endpoint takes a body.
const DefaultBodyLimit = 64 * 1024

// DefaultStack returns the middleware stack in application order:
// HeadToGet → SecurityHeaders → MaxBody → RequestID.
func DefaultStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(DefaultBodyLimit),
		RequestID(logger),
	}
}
