package docpipe

import "errors"

// ErrUnsupportedContent is returned when the payload is not a PDF
// (typically an HTML error page served with a 200 status).
var ErrUnsupportedContent = errors.New("docpipe: unsupported content")

// ErrMalformedDocument is returned when no engine can parse the PDF.
var ErrMalformedDocument = errors.New("docpipe: malformed document")
