package observability

import (
	"context"
	"database/sql"
)

// Schema is the DDL of the document events log.
const Schema = `
CREATE TABLE IF NOT EXISTS document_events (
    event_id TEXT PRIMARY KEY,
    publication_id TEXT NOT NULL,
    url TEXT NOT NULL,
    status TEXT NOT NULL,
    stage TEXT,
    error_kind TEXT,
    error_message TEXT,
    bytes INTEGER NOT NULL DEFAULT 0,
    chars INTEGER NOT NULL DEFAULT 0,
    content_hash TEXT,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL -- unix milliseconds
);
CREATE INDEX IF NOT EXISTS idx_document_events_pub ON document_events(publication_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_document_events_url ON document_events(url, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_document_events_status ON document_events(status);
`

// Init applies the schema to db.
func Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}
