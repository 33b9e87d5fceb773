// Package archive mirrors event log entries into a durable Postgres table.
// Archiving is best-effort: the in-memory log is the source of truth for the
// live window and a failed archive write never blocks or fails an append.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sqlc-dev/pqtype"

	"questpulse/internal/eventlog"
)

const schema = `
CREATE TABLE IF NOT EXISTS event_archive (
	id           UUID PRIMARY KEY,
	event_type   TEXT NOT NULL,
	occurred_at  TIMESTAMPTZ NOT NULL,
	entity_kind  TEXT NOT NULL DEFAULT '',
	entity_id    TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL DEFAULT '',
	importance   TEXT NOT NULL DEFAULT '',
	payload      JSONB,
	archived_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_event_archive_type ON event_archive(event_type);
CREATE INDEX IF NOT EXISTS idx_event_archive_entity ON event_archive(entity_kind, entity_id);
`

// Archive implements eventlog.Sink backed by PostgreSQL.
type Archive struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan eventlog.Entry
	done    chan struct{}
}

// New connects to Postgres, ensures the archive table, and starts the
// background writer.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect archive: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure archive schema: %w", err)
	}

	a := &Archive{
		pool:    pool,
		logger:  logger,
		entries: make(chan eventlog.Entry, 256),
		done:    make(chan struct{}),
	}
	go a.run()
	return a, nil
}

// Record queues an entry for archiving. When the buffer is full the entry is
// dropped; the caller is never blocked.
func (a *Archive) Record(entry eventlog.Entry) {
	select {
	case a.entries <- entry:
	default:
		a.logger.Warn("event archive buffer full, entry dropped",
			"event_id", entry.ID, "event_type", entry.Type)
	}
}

// Close drains queued entries and releases the pool.
func (a *Archive) Close() {
	close(a.entries)
	<-a.done
	a.pool.Close()
}

func (a *Archive) run() {
	defer close(a.done)

	for entry := range a.entries {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.write(ctx, entry); err != nil {
			a.logger.Warn("archive event failed",
				"event_id", entry.ID, "event_type", entry.Type, "error", err)
		}
		cancel()
	}
}

func (a *Archive) write(ctx context.Context, entry eventlog.Entry) error {
	payload, err := payloadMessage(entry)
	if err != nil {
		return err
	}

	_, err = a.pool.Exec(ctx, `
		INSERT INTO event_archive (id, event_type, occurred_at, entity_kind,
			entity_id, source, importance, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		entry.ID, entry.Type, entry.Timestamp, entry.Entity.Kind,
		entry.Entity.ID, entry.Metadata.Source, string(entry.Metadata.Importance),
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// payloadMessage converts an entry payload to a nullable JSONB value. An
// empty payload archives as SQL NULL, not as an empty object.
func payloadMessage(entry eventlog.Entry) (pqtype.NullRawMessage, error) {
	if len(entry.Payload) == 0 {
		return pqtype.NullRawMessage{}, nil
	}
	data, err := json.Marshal(entry.Payload)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("marshal payload: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: data, Valid: true}, nil
}
