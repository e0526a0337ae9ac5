package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pdfveille/shield"
	"github.com/hazyhaar/pdfveille/veille"
)

//go:embed templates
var templateFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templateFS, "templates/page.html"))

type pageData struct {
	Query    string
	Searched bool
	Results  []veille.Result
	Error    string
	Snapshot *veille.Snapshot
}

func newRouter(a *app) http.Handler {
	svc := a.svc

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "pdfveille", Version: Version}, nil)
	svc.RegisterMCP(mcpSrv)
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)

	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(a.logger) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"status": "ok", "publications": svc.Snapshot().Publications})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		snap := svc.Snapshot()
		renderPage(w, r, 200, pageData{Snapshot: &snap})
	})

	r.Get("/search", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("query")
		data := pageData{Query: query, Searched: query != ""}
		results, err := svc.Search(r.Context(), query)
		if err != nil {
			data.Searched = false
			data.Error = err.Error()
			renderPage(w, r, errorStatus(err), data)
			return
		}
		data.Results = results
		renderPage(w, r, 200, data)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", func(w http.ResponseWriter, r *http.Request) {
			query := r.URL.Query().Get("query")
			results, err := svc.Search(r.Context(), query)
			if err != nil {
				writeError(w, errorStatus(err), err)
				return
			}
			writeJSON(w, 200, veille.SearchResponse{Query: query, Results: nonNil(results)})
		})

		r.Get("/publications", func(w http.ResponseWriter, r *http.Request) {
			pubs, err := svc.Publications(r.Context())
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, pubs)
		})

		r.Get("/publications/{id}", func(w http.ResponseWriter, r *http.Request) {
			pub, err := svc.Publication(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, errorStatus(err), err)
				return
			}
			writeJSON(w, 200, pub)
		})

		r.Get("/availability", func(w http.ResponseWriter, r *http.Request) {
			avail, err := svc.Availability(r.Context())
			if err != nil {
				writeError(w, 500, err)
				return
			}
			if avail == nil {
				writeJSON(w, 200, []any{})
				return
			}
			writeJSON(w, 200, avail)
		})

		r.Get("/snapshot", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, 200, svc.Snapshot())
		})

		r.Post("/ingest", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				FeedURL string `json:"feed_url"`
			}
			if r.ContentLength != 0 {
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					writeError(w, 400, err)
					return
				}
			}
			n, err := svc.IngestURL(r.Context(), req.FeedURL)
			if err != nil {
				shield.GetLogger(r.Context()).Warn("ingest failed", "error", err)
				writeError(w, errorStatus(err), err)
				return
			}
			writeJSON(w, 200, map[string]int{"publications": n})
		})
	})

	r.Handle("/mcp", mcpHandler)

	return r
}

func renderPage(w http.ResponseWriter, r *http.Request, code int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := pageTmpl.Execute(w, data); err != nil {
		shield.GetLogger(r.Context()).Error("render page", "error", err)
	}
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, veille.ErrInvalidInput), errors.Is(err, veille.ErrNoFeedURL):
		return 400
	case errors.Is(err, veille.ErrNotFound):
		return 404
	case errors.Is(err, veille.ErrFeedUnavailable):
		return 502
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 503
	default:
		return 500
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// serve runs the HTTP server until ctx is canceled, then shuts it down.
func serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute, // cold searches extract every PDF first
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
