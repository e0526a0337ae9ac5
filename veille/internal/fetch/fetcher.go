// Package fetch downloads one document per call: a single GET with a fixed
// time budget, no retries, and tagged failures the corpus store can record.
package fetch

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hazyhaar/pdfveille/horosafe"
)

// Result contains the outcome of a successful fetch.
type Result struct {
	URL         string
	Body        []byte
	StatusCode  int
	ContentType string
	Hash        string // SHA-256 of body
}

// Config configures the fetcher.
type Config struct {
	Timeout  time.Duration `yaml:"timeout"`   // Default: 10s.
	MaxBytes int64         `yaml:"max_bytes"` // Default: 50MB.
	// UserAgent sent with requests.
	UserAgent string `yaml:"user_agent"`
	// URLValidator validates URLs before fetch and on every redirect.
	// Default: horosafe.ValidateURL.
	URLValidator func(string) error `yaml:"-"`
}

const maxRedirects = 5

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 50 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "pdfveille/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = horosafe.ValidateURL
	}
}

// Fetcher performs document downloads.
type Fetcher struct {
	client *http.Client
	config Config
	tracer trace.Tracer
}

// New creates a Fetcher with SSRF protection on redirects.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	validate := cfg.URLValidator
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("%w: redirect to %s: %w", ErrBlockedURL, req.URL.Redacted(), err)
				}
				return nil
			},
		},
		config: cfg,
		tracer: otel.Tracer("pdfveille/fetch"),
	}
}

// Fetch retrieves url. Failures match ErrNetwork, ErrTimeout or *StatusError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	ctx, span := f.tracer.Start(ctx, "fetch.document", trace.WithAttributes(attribute.String("url", url)))
	defer span.End()

	res, err := f.fetch(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("http.status_code", res.StatusCode),
		attribute.Int("body.bytes", len(res.Body)),
	)
	return res, nil
}

func (f *Fetcher) fetch(ctx context.Context, url string) (*Result, error) {
	if err := f.config.URLValidator(url); err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrNetwork, ErrBlockedURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: new request: %w", ErrNetwork, err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify("http get", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := horosafe.LimitedReadAll(resp.Body, f.config.MaxBytes)
	if err != nil {
		return nil, classify("read body", err)
	}

	return &Result{
		URL:         url,
		Body:        body,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Hash:        fmt.Sprintf("%x", sha256.Sum256(body)),
	}, nil
}

// classify tags a transport error as ErrTimeout or ErrNetwork.
func classify(op string, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %s: %w", ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrNetwork, op, err)
}
