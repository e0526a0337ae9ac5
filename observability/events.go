package observability

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/pdfveille/idgen"
)

// Event statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// DocumentEvent is one attempt to fetch and extract one document.
type DocumentEvent struct {
	EventID       string    `json:"event_id"`
	PublicationID string    `json:"publication_id"`
	URL           string    `json:"url"`
	Status        string    `json:"status"`
	Stage         string    `json:"stage,omitempty"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Bytes         int       `json:"bytes"`
	Chars         int       `json:"chars"`
	ContentHash   string    `json:"content_hash,omitempty"` // SHA-256 of the fetched body
	DurationMs    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// EventFilter narrows Query results. Zero fields match everything.
type EventFilter struct {
	PublicationID string
	URL           string
	Status        string
	Limit         int // default 100
}

// URLAvailability summarises the attempts made on one document URL.
type URLAvailability struct {
	URL         string `json:"url"`
	Attempts    int    `json:"attempts"`
	Failures    int    `json:"failures"`
	LastStatus  string `json:"last_status"`
	LastErrKind string `json:"last_error_kind,omitempty"`
}

// EventLogger persists document events.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
}

// NewEventLogger creates a logger backed by db. Init must have been applied.
func NewEventLogger(db *sql.DB) *EventLogger {
	return &EventLogger{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
	}
}

// LogDocument inserts e, filling EventID, Status and CreatedAt when empty.
func (l *EventLogger) LogDocument(ctx context.Context, e *DocumentEvent) error {
	if e.EventID == "" {
		e.EventID = l.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Status == "" {
		e.Status = StatusOK
		if e.ErrorMessage != "" {
			e.Status = StatusError
		}
	}
	_, err := l.db.ExecContext(ctx, `INSERT INTO document_events
		(event_id, publication_id, url, status, stage, error_kind, error_message,
		 bytes, chars, content_hash, duration_ms, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.EventID, e.PublicationID, e.URL, e.Status, e.Stage, e.ErrorKind, e.ErrorMessage,
		e.Bytes, e.Chars, e.ContentHash, e.DurationMs, e.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert document event: %w", err)
	}
	return nil
}

// Query returns events matching f, most recent first.
func (l *EventLogger) Query(ctx context.Context, f EventFilter) ([]*DocumentEvent, error) {
	q := `SELECT event_id, publication_id, url, status, stage, error_kind, error_message,
		bytes, chars, content_hash, duration_ms, created_at
		FROM document_events WHERE 1=1`
	var args []any
	if f.PublicationID != "" {
		q += " AND publication_id = ?"
		args = append(args, f.PublicationID)
	}
	if f.URL != "" {
		q += " AND url = ?"
		args = append(args, f.URL)
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}
	limit := 100
	if f.Limit > 0 {
		limit = f.Limit
	}
	q += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query document events: %w", err)
	}
	defer rows.Close()

	var events []*DocumentEvent
	for rows.Next() {
		var (
			e                DocumentEvent
			stage, kind, msg sql.NullString
			hash             sql.NullString
			ts               int64
		)
		if err := rows.Scan(&e.EventID, &e.PublicationID, &e.URL, &e.Status, &stage, &kind, &msg,
			&e.Bytes, &e.Chars, &hash, &e.DurationMs, &ts); err != nil {
			return nil, fmt.Errorf("scan document event: %w", err)
		}
		e.Stage, e.ErrorKind, e.ErrorMessage = stage.String, kind.String, msg.String
		e.ContentHash = hash.String
		e.CreatedAt = time.UnixMilli(ts)
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Availability returns one summary per URL seen, ordered by URL.
func (l *EventLogger) Availability(ctx context.Context) ([]URLAvailability, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT d.url, COUNT(*), SUM(CASE WHEN d.status = 'error' THEN 1 ELSE 0 END),
			(SELECT status FROM document_events x WHERE x.url = d.url ORDER BY created_at DESC, rowid DESC LIMIT 1),
			(SELECT COALESCE(error_kind, '') FROM document_events x WHERE x.url = d.url ORDER BY created_at DESC, rowid DESC LIMIT 1)
		FROM document_events d
		GROUP BY d.url
		ORDER BY d.url`)
	if err != nil {
		return nil, fmt.Errorf("query availability: %w", err)
	}
	defer rows.Close()

	var out []URLAvailability
	for rows.Next() {
		var a URLAvailability
		if err := rows.Scan(&a.URL, &a.Attempts, &a.Failures, &a.LastStatus, &a.LastErrKind); err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Cleanup deletes events older than retention.
func (l *EventLogger) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	res, err := l.db.ExecContext(ctx, "DELETE FROM document_events WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup document events: %w", err)
	}
	return res.RowsAffected()
}
