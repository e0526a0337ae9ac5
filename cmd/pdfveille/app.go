package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pdfveille/dbopen"
	"github.com/hazyhaar/pdfveille/observability"
	"github.com/hazyhaar/pdfveille/veille"
)

// app holds the long-lived resources shared by every command.
type app struct {
	cfg    *veille.Config
	logger *slog.Logger
	db     *sql.DB
	tp     *sdktrace.TracerProvider // nil when tracing is off
	events *observability.EventLogger
	svc    *veille.Service
}

func newApp(ctx context.Context, cfg *veille.Config, logOut io.Writer, level string) (*app, error) {
	logger := observability.NewLogger(logOut, level)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		tp, err := observability.InitTracer(ctx, "pdfveille", Version)
		if err != nil {
			logger.Warn("tracing disabled", "error", err)
		} else {
			a.tp = tp
		}
	}

	db, err := dbopen.Open(cfg.EventsDB,
		dbopen.WithSchema(observability.Schema),
		dbopen.WithMkdirAll(),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.db = db
	a.events = observability.NewEventLogger(db)

	svc, err := veille.New(cfg, logger, veille.WithEvents(a.events))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.svc = svc
	return a, nil
}

// Close stops background extraction, then flushes spans and closes the
// events database.
func (a *app) Close() error {
	var errs []error
	if a.svc != nil {
		errs = append(errs, a.svc.Close())
	}
	if a.tp != nil {
		errs = append(errs, a.tp.Shutdown(context.Background()))
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

// pruneEvents deletes expired document events now and then every interval,
// until ctx ends.
func (a *app) pruneEvents(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		a.pruneOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *app) pruneOnce(ctx context.Context) {
	if a.events == nil {
		return
	}
	n, err := a.events.Cleanup(ctx, a.cfg.EventsRetention)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Warn("prune document events", "error", err)
		}
		return
	}
	if n > 0 {
		a.logger.Info("document events pruned", "deleted", n, "retention", a.cfg.EventsRetention)
	}
}
