package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pdfveille/dbopen"
	"github.com/hazyhaar/pdfveille/docpipe"
	"github.com/hazyhaar/pdfveille/docpipe/pdftest"
	"github.com/hazyhaar/pdfveille/horosafe"
	"github.com/hazyhaar/pdfveille/observability"
	"github.com/hazyhaar/pdfveille/veille"
)

const budgetFeed = `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Publications</title>` +
	`<item><title>Budget &amp; finances</title><link>%[1]s/doc.pdf</link></item>` +
	`<item><title>Ordre du jour</title><link>%[1]s/agenda.html</link></item>` +
	`</channel></rss>`

// newPublisher serves a two-entry feed and one PDF.
func newPublisher(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/feed.xml":
			w.Header().Set("Content-Type", "application/rss+xml")
			fmt.Fprintf(w, budgetFeed, "http://"+r.Host)
		case "/doc.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Write(pdftest.TextPDF("Le budget 2024 est approuvé."))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// setupTestApp builds an app against the publisher without touching disk.
func setupTestApp(t *testing.T, feedURL string) *app {
	t.Helper()
	cfg := veille.DefaultConfig()
	cfg.FeedURL = feedURL
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	events := observability.NewEventLogger(dbopen.OpenMemory(t, dbopen.WithSchema(observability.Schema)))
	svc, err := veille.New(cfg, logger, veille.WithURLValidator(horosafe.AllowAll), veille.WithEvents(events))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return &app{cfg: cfg, logger: logger, events: events, svc: svc}
}

func setupIngested(t *testing.T) (*app, http.Handler) {
	t.Helper()
	pub := newPublisher(t)
	a := setupTestApp(t, pub.URL+"/feed.xml")
	if _, err := a.svc.IngestURL(context.Background(), ""); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	return a, newRouter(a)
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	_, h := setupIngested(t)
	rec := get(t, h, "/health")
	if rec.Code != 200 {
		t.Fatalf("status: got %d", rec.Code)
	}
	var body struct {
		Status       string `json:"status"`
		Publications int    `json:"publications"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Publications != 2 {
		t.Errorf("health: got %+v", body)
	}
}

func TestIndexPage(t *testing.T) {
	_, h := setupIngested(t)
	rec := get(t, h, "/")
	if rec.Code != 200 {
		t.Fatalf("status: got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `action="/search"`) {
		t.Error("search form missing")
	}
	if strings.Contains(body, "Résultats de la recherche") {
		t.Error("index page must not show a results section")
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("security headers missing")
	}
}

func TestSearchPage(t *testing.T) {
	// WHAT: the HTML page lists title, link and "...context..." per occurrence.
	// WHY: the form page is the main way people search the publications.
	_, h := setupIngested(t)
	rec := get(t, h, "/search?query=BUDGET")
	if rec.Code != 200 {
		t.Fatalf("status: got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"Budget &amp; finances",
		"Lien vers la publication",
		"/doc.pdf",
		"...Le budget 2024 est approuvé....",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(body, "Ordre du jour") {
		t.Error("publication without match must be omitted")
	}
}

func TestSearchPage_NoResults(t *testing.T) {
	_, h := setupIngested(t)
	body := get(t, h, "/search?query=introuvable").Body.String()
	if !strings.Contains(body, "Aucun résultat.") {
		t.Error("empty results message missing")
	}
}

func TestSearchPage_InvalidQuery(t *testing.T) {
	_, h := setupIngested(t)
	rec := get(t, h, "/search?query="+strings.Repeat("a", 2000))
	if rec.Code != 400 {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}
}

func TestAPISearch(t *testing.T) {
	_, h := setupIngested(t)
	rec := get(t, h, "/api/search?query=budget+2024")
	if rec.Code != 200 {
		t.Fatalf("status: got %d: %s", rec.Code, rec.Body)
	}
	var resp veille.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Query != "budget 2024" || len(resp.Results) != 1 {
		t.Fatalf("response: got %+v", resp)
	}
	occ := resp.Results[0].Occurrences
	if len(occ) != 2 || occ[0].Word != "budget" || occ[1].Word != "2024" {
		t.Errorf("occurrences: got %+v", occ)
	}
}

func TestAPISearch_EmptyQuery(t *testing.T) {
	// WHAT: an empty query answers an empty list, never null.
	_, h := setupIngested(t)
	rec := get(t, h, "/api/search?query=")
	if rec.Code != 200 {
		t.Fatalf("status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"results":[]`) {
		t.Errorf("body: %s", rec.Body)
	}
}

func TestAPIPublications(t *testing.T) {
	a, h := setupIngested(t)
	if _, err := a.svc.Search(context.Background(), "budget"); err != nil {
		t.Fatal(err)
	}
	rec := get(t, h, "/api/publications")
	var pubs []veille.PublicationStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &pubs); err != nil {
		t.Fatalf("decode: %v: %s", err, rec.Body)
	}
	if len(pubs) != 2 {
		t.Fatalf("publications: got %d", len(pubs))
	}
	if pubs[0].TextLength == 0 || len(pubs[0].DocumentURLs) != 1 {
		t.Errorf("first publication: got %+v", pubs[0])
	}
	if len(pubs[1].DocumentURLs) != 0 {
		t.Errorf("second publication has no document: got %+v", pubs[1])
	}
}

func TestAPIPublication(t *testing.T) {
	a, h := setupIngested(t)
	pubs, err := a.svc.Publications(context.Background())
	if err != nil || len(pubs) == 0 {
		t.Fatalf("publications: %v %d", err, len(pubs))
	}

	rec := get(t, h, "/api/publications/"+pubs[0].ID)
	if rec.Code != 200 {
		t.Fatalf("status: got %d: %s", rec.Code, rec.Body)
	}
	var pub veille.PublicationStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &pub); err != nil {
		t.Fatalf("decode: %v: %s", err, rec.Body)
	}
	if pub.ID != pubs[0].ID || pub.Title != "Budget & finances" {
		t.Errorf("publication: got %+v", pub)
	}

	if rec := get(t, h, "/api/publications/pub_unknown"); rec.Code != 404 {
		t.Errorf("unknown id: got %d, want 404", rec.Code)
	}
}

func TestAPIAvailability(t *testing.T) {
	a, h := setupIngested(t)
	if _, err := a.svc.Search(context.Background(), "budget"); err != nil {
		t.Fatal(err)
	}
	rec := get(t, h, "/api/availability")
	var avail []observability.URLAvailability
	if err := json.Unmarshal(rec.Body.Bytes(), &avail); err != nil {
		t.Fatalf("decode: %v: %s", err, rec.Body)
	}
	if len(avail) != 1 || avail[0].Attempts != 1 || avail[0].Failures != 0 {
		t.Errorf("availability: got %+v", avail)
	}
}

func TestAPIIngest(t *testing.T) {
	pub := newPublisher(t)
	a := setupTestApp(t, pub.URL+"/feed.xml")
	h := newRouter(a)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ingest", nil))
	if rec.Code != 200 {
		t.Fatalf("status: got %d: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"publications":2`) {
		t.Errorf("body: %s", rec.Body)
	}
}

func TestAPIIngest_FeedUnavailable(t *testing.T) {
	pub := newPublisher(t)
	a := setupTestApp(t, pub.URL+"/feed.xml")
	h := newRouter(a)

	body := bytes.NewBufferString(`{"feed_url":"` + pub.URL + `/missing.xml"}`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ingest", body))
	if rec.Code != 502 {
		t.Fatalf("status: got %d, want 502", rec.Code)
	}
}

func TestHeadHealth(t *testing.T) {
	_, h := setupIngested(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/health", nil))
	if rec.Code != 200 {
		t.Errorf("HEAD /health: got %d", rec.Code)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", veille.ErrInvalidInput), 400},
		{veille.ErrNoFeedURL, 400},
		{fmt.Errorf("%w: boom", veille.ErrFeedUnavailable), 502},
		{fmt.Errorf("%w: publication %q", veille.ErrNotFound, "x"), 404},
		{context.Canceled, 503},
		{errors.New("other"), 500},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v): got %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	// WHAT: flags override the config file, and the default feed applies last.
	dir := t.TempDir()
	path := filepath.Join(dir, "pdfveille.yaml")
	if err := os.WriteFile(path, []byte("workers: 2\ncontext_width: 30\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	saved := [...]string{flagConfig, flagFeed, flagEventsDB}
	t.Cleanup(func() { flagConfig, flagFeed, flagEventsDB = saved[0], saved[1], saved[2] })

	flagConfig, flagFeed, flagEventsDB = path, "", filepath.Join(dir, "events.db")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 2 || cfg.ContextWidth != 30 {
		t.Errorf("file values lost: %+v", cfg)
	}
	if cfg.FeedURL != defaultFeedURL {
		t.Errorf("feed: got %q", cfg.FeedURL)
	}
	if cfg.EventsDB != filepath.Join(dir, "events.db") {
		t.Errorf("events db: got %q", cfg.EventsDB)
	}

	flagFeed = "not a url"
	if _, err := loadConfig(); !errors.Is(err, veille.ErrInvalidInput) {
		t.Errorf("invalid feed: got %v, want ErrInvalidInput", err)
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	if !strings.HasPrefix(out.String(), "pdfveille ") {
		t.Errorf("version: got %q", out.String())
	}
}

func TestPrintResults(t *testing.T) {
	var out bytes.Buffer
	printResults(&out, []veille.Result{{
		Title:       "Budget",
		Link:        "https://example.org/doc.pdf",
		Occurrences: []veille.Occurrence{{Word: "budget", Context: "Le budget 2024"}},
	}})
	if !strings.Contains(out.String(), "  ...Le budget 2024...\n") {
		t.Errorf("output: %q", out.String())
	}

	out.Reset()
	printResults(&out, nil)
	if out.String() != "Aucun résultat.\n" {
		t.Errorf("empty output: %q", out.String())
	}
}

func TestNewApp_MemoryEvents(t *testing.T) {
	cfg := veille.DefaultConfig()
	cfg.FeedURL = "https://example.org/feed.xml"
	a, err := newApp(context.Background(), cfg, io.Discard, "error")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil))) })
	if err := a.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestPruneOnce(t *testing.T) {
	// WHAT: events older than the retention are deleted, recent ones kept.
	// WHY: the events database of a long-running server must not grow forever.
	a := setupTestApp(t, "https://example.org/feed.xml")
	a.cfg.EventsRetention = 24 * time.Hour
	ctx := context.Background()
	a.events.LogDocument(ctx, &observability.DocumentEvent{PublicationID: "p", URL: "https://x/old.pdf", CreatedAt: time.Now().Add(-48 * time.Hour)})
	a.events.LogDocument(ctx, &observability.DocumentEvent{PublicationID: "p", URL: "https://x/new.pdf"})

	a.pruneOnce(ctx)

	evs, err := a.events.Query(ctx, observability.EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 1 || evs[0].URL != "https://x/new.pdf" {
		t.Errorf("remaining events: got %+v", evs)
	}
}

func TestPruneEvents_StopsWithContext(t *testing.T) {
	a := setupTestApp(t, "https://example.org/feed.xml")
	a.cfg.EventsRetention = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	a.events.LogDocument(ctx, &observability.DocumentEvent{PublicationID: "p", URL: "https://x/old.pdf", CreatedAt: time.Now().Add(-2 * time.Hour)})

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.pruneEvents(ctx, 10*time.Millisecond)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		evs, err := a.events.Query(context.Background(), observability.EventFilter{})
		if err != nil {
			t.Fatal(err)
		}
		if len(evs) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expired event never pruned")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pruneEvents did not return after cancel")
	}
}

func TestExtractCommand(t *testing.T) {
	// WHAT: extract prints each page of a local PDF, and JSON on --json.
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, pdftest.TextPDF("Le budget 2024 est approuvé.", "Annexe"), 0o644); err != nil {
		t.Fatal(err)
	}
	saved := [...]string{flagConfig, flagFeed, flagEventsDB}
	savedJSON := flagJSON
	t.Cleanup(func() {
		flagConfig, flagFeed, flagEventsDB = saved[0], saved[1], saved[2]
		flagJSON = savedJSON
	})
	flagConfig, flagFeed, flagEventsDB, flagJSON = "", "", "", false

	var out bytes.Buffer
	extractCmd.SetOut(&out)
	extractCmd.SetErr(io.Discard)
	t.Cleanup(func() { extractCmd.SetOut(nil); extractCmd.SetErr(nil) })

	if err := runExtract(extractCmd, []string{path}); err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := "--- page 1 ---\nLe budget 2024 est approuvé.\n--- page 2 ---\nAnnexe\n"
	if out.String() != want {
		t.Errorf("output: got %q, want %q", out.String(), want)
	}

	out.Reset()
	flagJSON = true
	if err := runExtract(extractCmd, []string{path}); err != nil {
		t.Fatalf("extract json: %v", err)
	}
	var doc docpipe.Document
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v: %s", err, out.String())
	}
	if len(doc.Pages) != 2 || doc.Engine != docpipe.EnginePDFCPU {
		t.Errorf("document: got %+v", doc)
	}
}

func TestExtractCommand_NotPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.pdf")
	if err := os.WriteFile(path, []byte("<html>introuvable</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	saved := [...]string{flagConfig, flagFeed, flagEventsDB}
	t.Cleanup(func() { flagConfig, flagFeed, flagEventsDB = saved[0], saved[1], saved[2] })
	flagConfig, flagFeed, flagEventsDB = "", "", ""

	extractCmd.SetErr(io.Discard)
	t.Cleanup(func() { extractCmd.SetErr(nil) })
	if err := runExtract(extractCmd, []string{path}); !errors.Is(err, docpipe.ErrUnsupportedContent) {
		t.Fatalf("got %v, want ErrUnsupportedContent", err)
	}
}
