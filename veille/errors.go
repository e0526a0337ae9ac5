package veille

import "errors"

// ErrFeedUnavailable is returned when the feed cannot be fetched or parsed.
// The service keeps serving with an empty corpus.
var ErrFeedUnavailable = errors.New("veille: feed unavailable")

// ErrInvalidInput is returned when a query or config fails validation.
var ErrInvalidInput = errors.New("veille: invalid input")

// ErrNoFeedURL is returned by IngestURL when neither the call nor the config names a feed.
var ErrNoFeedURL = errors.New("veille: no feed URL configured")

// ErrNotFound is returned when no publication of the current corpus has the requested ID.
var ErrNotFound = errors.New("veille: not found")
