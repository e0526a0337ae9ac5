// Package veille is the pdfveille service: it ingests a feed of PDF
// publications, extracts their text lazily, and answers keyword queries with
// a context snippet around every occurrence.
//
// Each ingestion builds a fresh corpus that replaces the previous one. Search
// only extracts the publications it has to, once each; document failures are
// recorded as availability events and never surface in search results.
package veille

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hazyhaar/pdfveille/docpipe"
	"github.com/hazyhaar/pdfveille/observability"
	"github.com/hazyhaar/pdfveille/veille/internal/corpus"
	"github.com/hazyhaar/pdfveille/veille/internal/feed"
	fetchpkg "github.com/hazyhaar/pdfveille/veille/internal/fetch"
	"github.com/hazyhaar/pdfveille/veille/internal/resolve"
	"github.com/hazyhaar/pdfveille/veille/internal/search"
)

// Result is one publication with its occurrences, as returned by Search.
type Result = search.Result

// Occurrence is one query word match with its context snippet.
type Occurrence = search.Occurrence

// PublicationStatus is the availability view of one publication.
type PublicationStatus = corpus.Status

// Snapshot describes the current corpus.
type Snapshot struct {
	FeedTitle    string    `json:"feed_title"`
	FeedURL      string    `json:"feed_url,omitempty"`
	Publications int       `json:"publications"`
	IngestedAt   time.Time `json:"ingested_at"`
}

// Service is the main veille orchestrator.
type Service struct {
	config    *Config
	logger    *slog.Logger
	fetcher   *fetchpkg.Fetcher
	extractor *docpipe.Pipeline
	engine    *search.Engine
	events    *observability.EventLogger // optional
	tracer    trace.Tracer

	urlValidator func(string) error // overrides Config.Fetch.URLValidator

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup

	mu       sync.RWMutex
	store    *corpus.Store
	snapshot Snapshot
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithEvents records every document attempt in the given event log.
func WithEvents(l *observability.EventLogger) ServiceOption {
	return func(svc *Service) { svc.events = l }
}

// WithURLValidator overrides the URL validation function (default: horosafe.ValidateURL).
// Use in tests with httptest servers that listen on loopback addresses.
func WithURLValidator(fn func(string) error) ServiceOption {
	return func(svc *Service) { svc.urlValidator = fn }
}

// New creates a veille Service with an empty corpus.
func New(cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	extractor := docpipe.New(docpipe.Config{
		MaxFileSize: cfg.MaxDocumentBytes,
		Logger:      logger,
	})
	svc := &Service{
		config:    cfg,
		logger:    logger,
		extractor: extractor,
		engine:    search.New(cfg.ContextWidth),
		tracer:    otel.Tracer("pdfveille/veille"),
		bgCtx:     bgCtx,
		bgCancel:  bgCancel,
	}
	for _, opt := range opts {
		opt(svc)
	}
	fetchCfg := cfg.Fetch
	if svc.urlValidator != nil {
		fetchCfg.URLValidator = svc.urlValidator
	}
	svc.fetcher = fetchpkg.New(fetchCfg)
	svc.store = svc.newStore()
	return svc, nil
}

func (svc *Service) newStore() *corpus.Store {
	cfg := corpus.Config{
		Fetcher:   svc.fetcher,
		Extractor: svc.extractor,
		Logger:    svc.logger,
		Workers:   svc.config.Workers,
	}
	if svc.events != nil {
		cfg.Recorder = &eventRecorder{events: svc.events, logger: svc.logger}
	}
	return corpus.New(cfg)
}

// Close stops background prefetching and waits for it to return.
func (svc *Service) Close() error {
	svc.bgCancel()
	svc.bg.Wait()
	svc.logger.Info("veille: closed")
	return nil
}

// IngestURL fetches the feed at feedURL (Config.FeedURL when empty) and
// ingests it. On failure the corpus is replaced by an empty one and the
// error wraps ErrFeedUnavailable.
func (svc *Service) IngestURL(ctx context.Context, feedURL string) (int, error) {
	if feedURL == "" {
		feedURL = svc.config.FeedURL
	}
	if feedURL == "" {
		return 0, ErrNoFeedURL
	}

	ctx, span := svc.tracer.Start(ctx, "veille.ingest_url", trace.WithAttributes(attribute.String("feed.url", feedURL)))
	defer span.End()

	res, err := svc.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return svc.ingestFailed(ctx, feedURL, err)
	}
	return svc.ingest(ctx, feedURL, res.Body)
}

// IngestFeed ingests a raw feed payload.
func (svc *Service) IngestFeed(ctx context.Context, data []byte) (int, error) {
	ctx, span := svc.tracer.Start(ctx, "veille.ingest_feed")
	defer span.End()
	return svc.ingest(ctx, "", data)
}

func (svc *Service) ingest(ctx context.Context, feedURL string, data []byte) (int, error) {
	f, err := feed.Parse(data)
	if err != nil {
		return svc.ingestFailed(ctx, feedURL, err)
	}

	store := svc.newStore()
	documents := 0
	for _, e := range f.Entries {
		urls := resolve.DocumentURLs(e)
		documents += len(urls)
		store.Add(e.Title, e.Link, urls)
	}
	svc.install(store, Snapshot{FeedTitle: f.Title, FeedURL: feedURL, Publications: store.Len(), IngestedAt: time.Now()})

	svc.logger.InfoContext(ctx, "veille: feed ingested",
		"feed", f.Title, "url", feedURL, "publications", store.Len(), "documents", documents)

	if svc.config.Prefetch {
		svc.startPrefetch(ctx, store)
	}
	return store.Len(), nil
}

func (svc *Service) ingestFailed(ctx context.Context, feedURL string, cause error) (int, error) {
	svc.install(svc.newStore(), Snapshot{FeedURL: feedURL, IngestedAt: time.Now()})
	svc.logger.ErrorContext(ctx, "veille: feed unavailable", "url", feedURL, "error", cause)
	return 0, fmt.Errorf("%w: %w", ErrFeedUnavailable, cause)
}

func (svc *Service) install(store *corpus.Store, snap Snapshot) {
	svc.mu.Lock()
	svc.store = store
	svc.snapshot = snap
	svc.mu.Unlock()
}

func (svc *Service) current() *corpus.Store {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.store
}

// Snapshot describes the corpus currently served.
func (svc *Service) Snapshot() Snapshot {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.snapshot
}

func (svc *Service) startPrefetch(ctx context.Context, store *corpus.Store) {
	bg := observability.DetachTraceContextFrom(ctx, svc.bgCtx)
	svc.bg.Add(1)
	go func() {
		defer svc.bg.Done()
		if err := store.Prefetch(bg); err != nil {
			svc.logger.Warn("veille: prefetch interrupted", "error", err)
		}
	}()
}

// Prefetch extracts every publication of the current corpus and waits for it.
func (svc *Service) Prefetch(ctx context.Context) error {
	return svc.current().Prefetch(ctx)
}

// Search returns every occurrence of every query word, grouped by
// publication in feed order. An empty query returns no results and no error.
// Publications not yet extracted are extracted first.
func (svc *Service) Search(ctx context.Context, query string) ([]Result, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	if len(search.Words(query)) == 0 {
		return nil, nil
	}

	ctx, span := svc.tracer.Start(ctx, "veille.search", trace.WithAttributes(attribute.String("query", query)))
	defer span.End()

	store := svc.current()
	pubs := store.Publications()
	if err := store.EnsureAll(ctx, pubs); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("veille: search: %w", err)
	}

	docs := make([]search.Document, 0, len(pubs))
	for _, p := range pubs {
		text, _ := p.Text()
		docs = append(docs, search.Document{ID: p.ID, Title: p.Title, Link: p.Link, Text: text})
	}
	results := svc.engine.Search(docs, query)
	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// Publication returns the availability status of one publication of the
// current corpus. IDs do not survive a re-ingestion.
func (svc *Service) Publication(ctx context.Context, id string) (PublicationStatus, error) {
	if err := ctx.Err(); err != nil {
		return PublicationStatus{}, err
	}
	p := svc.current().Get(id)
	if p == nil {
		return PublicationStatus{}, fmt.Errorf("%w: publication %q", ErrNotFound, id)
	}
	return p.Status(), nil
}

// Publications returns the availability status of every publication.
func (svc *Service) Publications(ctx context.Context) ([]PublicationStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pubs := svc.current().Publications()
	out := make([]PublicationStatus, 0, len(pubs))
	for _, p := range pubs {
		out = append(out, p.Status())
	}
	return out, nil
}

// Availability summarises recorded document attempts per URL. It returns
// nil when no event log is configured.
func (svc *Service) Availability(ctx context.Context) ([]observability.URLAvailability, error) {
	if svc.events == nil {
		return nil, nil
	}
	return svc.events.Availability(ctx)
}
