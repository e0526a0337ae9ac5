package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork tags transport failures: DNS, connection, TLS, body read,
	// oversized body or a blocked URL.
	ErrNetwork = errors.New("fetch: network error")

	// ErrTimeout tags a request that exceeded its time budget.
	ErrTimeout = errors.New("fetch: timeout")

	// ErrBlockedURL tags a URL (or redirect target) rejected by the URL
	// validator. Errors carrying it also match ErrNetwork.
	ErrBlockedURL = errors.New("fetch: URL blocked")
)

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: http status %d", e.Code)
}
