// Package corpus holds the publications of the current feed snapshot and
// extracts their documents lazily: at most once per publication, on the
// first search (or prefetch) that needs the text.
package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/pdfveille/docpipe"
	"github.com/hazyhaar/pdfveille/idgen"
	"github.com/hazyhaar/pdfveille/veille/internal/fetch"
)

// Fetcher downloads one document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// Extractor turns document bytes into text.
type Extractor interface {
	ExtractBytes(ctx context.Context, data []byte) (*docpipe.Document, error)
}

// Recorder receives one Attempt per processed document.
type Recorder interface {
	RecordAttempt(ctx context.Context, a Attempt)
}

// Config wires a Store.
type Config struct {
	Fetcher   Fetcher
	Extractor Extractor
	Recorder  Recorder     // optional
	Logger    *slog.Logger // optional
	Workers   int          // parallel extractions in EnsureAll. Default: 4.
	NewID     idgen.Generator
}

// Store is the ordered set of publications of one feed snapshot.
type Store struct {
	fetcher   Fetcher
	extractor Extractor
	recorder  Recorder
	logger    *slog.Logger
	workers   int
	newID     idgen.Generator
	tracer    trace.Tracer

	mu   sync.RWMutex
	pubs []*Publication
	byID map[string]*Publication
}

// New creates an empty Store.
func New(cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.NewID == nil {
		cfg.NewID = idgen.Prefixed("pub_", idgen.NanoID(10))
	}
	return &Store{
		fetcher:   cfg.Fetcher,
		extractor: cfg.Extractor,
		recorder:  cfg.Recorder,
		logger:    cfg.Logger,
		workers:   cfg.Workers,
		newID:     cfg.NewID,
		tracer:    otel.Tracer("pdfveille/corpus"),
		byID:      make(map[string]*Publication),
	}
}

// Add appends a publication in NotStarted state.
func (s *Store) Add(title, link string, documentURLs []string) *Publication {
	p := newPublication(s.newID(), title, link, documentURLs)
	s.mu.Lock()
	s.pubs = append(s.pubs, p)
	s.byID[p.ID] = p
	s.mu.Unlock()
	return p
}

// Publications returns the publications in ingestion order.
func (s *Store) Publications() []*Publication {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Publication, len(s.pubs))
	copy(out, s.pubs)
	return out
}

// Get returns the publication with the given ID, or nil.
func (s *Store) Get(id string) *Publication {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

// Len returns the number of publications.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pubs)
}

// EnsureExtracted returns p's text, extracting it first if nobody has.
// Concurrent callers share one extraction. The extraction is detached from
// ctx cancellation; ctx only bounds how long this caller waits. The only
// error is ctx.Err().
func (s *Store) EnsureExtracted(ctx context.Context, p *Publication) (string, error) {
	owner, done := p.begin()
	if owner {
		go s.extract(context.WithoutCancel(ctx), p)
	}
	select {
	case <-done:
		text, _ := p.Text()
		return text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// EnsureAll extracts pubs with at most Workers extractions in flight.
func (s *Store) EnsureAll(ctx context.Context, pubs []*Publication) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, p := range pubs {
		if p.State() == Done {
			continue
		}
		g.Go(func() error {
			_, err := s.EnsureExtracted(gctx, p)
			return err
		})
	}
	return g.Wait()
}

// Prefetch extracts every publication of the store.
func (s *Store) Prefetch(ctx context.Context) error {
	start := time.Now()
	pubs := s.Publications()
	if err := s.EnsureAll(ctx, pubs); err != nil {
		return fmt.Errorf("corpus: prefetch: %w", err)
	}
	s.logger.Info("corpus: prefetch complete", "publications", len(pubs), "duration", time.Since(start))
	return nil
}

// extract runs the fetch and extract steps for every document of p, in
// order, and always finishes p. Document failures are recorded and dropped.
func (s *Store) extract(ctx context.Context, p *Publication) {
	ctx, span := s.tracer.Start(ctx, "corpus.extract",
		trace.WithAttributes(
			attribute.String("publication.id", p.ID),
			attribute.Int("documents", len(p.DocumentURLs)),
		))
	defer span.End()

	log := s.logger.With("publication", p.ID)
	var (
		sb        strings.Builder
		extracted int
		failures  []*DocumentError
	)
	for _, u := range p.DocumentURLs {
		text, a := s.processDocument(ctx, p.ID, u)
		if a.Err != nil {
			failures = append(failures, a.Err)
			log.Warn("corpus: document failed", "url", u, "stage", a.Err.Stage, "error", a.Err.Err)
		} else {
			extracted++
			sb.WriteString(text)
			sb.WriteByte('\n')
		}
		if s.recorder != nil {
			s.recorder.RecordAttempt(ctx, a)
		}
	}
	text := sb.String()

	span.SetAttributes(attribute.Int("documents.extracted", extracted), attribute.Int("text.bytes", len(text)))
	p.finish(text, extracted, failures)
	log.Info("corpus: publication extracted",
		"documents", len(p.DocumentURLs), "extracted", extracted, "failed", len(failures))
}

// processDocument fetches and extracts one URL. A panic in either step is
// turned into a DocumentError so the publication still reaches Done.
func (s *Store) processDocument(ctx context.Context, pubID, url string) (text string, a Attempt) {
	start := time.Now()
	a = Attempt{PublicationID: pubID, URL: url}
	stage := StageFetch
	defer func() {
		if r := recover(); r != nil {
			text = ""
			a.Err = &DocumentError{Stage: stage, URL: url, Err: fmt.Errorf("panic: %v", r)}
		}
		a.Duration = time.Since(start)
	}()

	res, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		a.Err = &DocumentError{Stage: StageFetch, URL: url, Err: err}
		return "", a
	}
	a.Bytes, a.Hash = len(res.Body), res.Hash

	stage = StageExtract
	doc, err := s.extractor.ExtractBytes(ctx, res.Body)
	if err != nil {
		a.Err = &DocumentError{Stage: StageExtract, URL: url, Err: err}
		return "", a
	}
	a.Chars = len([]rune(doc.RawText))
	return doc.RawText, a
}
