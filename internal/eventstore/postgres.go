package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"keystone/internal/sentinel"
	es "keystone/pkg/eventsourcing"
)

// PostgresStore persists event streams in PostgreSQL. The primary key
// on (stream_key, version) is the optimistic concurrency guarantee: two
// writers appending at the same expected version collide on the unique
// constraint and the loser surfaces a version conflict.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed event store. The caller
// owns the pool (open it with the pgx stdlib driver).
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const schema = `
	CREATE TABLE IF NOT EXISTS trust_events (
		stream_key  TEXT        NOT NULL,
		version     BIGINT      NOT NULL,
		event_type  TEXT        NOT NULL,
		payload     JSONB       NOT NULL,
		actor_id    TEXT        NOT NULL DEFAULT '',
		occurred_on TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (stream_key, version)
	)
`

// Migrate creates the event table when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate event store: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, streamKey string, expectedVersion int64, events []es.Envelope) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var head int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM trust_events WHERE stream_key = $1`, streamKey,
	).Scan(&head)
	if err != nil {
		return fmt.Errorf("read stream head: %w", err)
	}
	if head != expectedVersion {
		return fmt.Errorf("stream %s at version %d, expected %d: %w",
			streamKey, head, expectedVersion, sentinel.ErrVersionConflict)
	}

	query := `
		INSERT INTO trust_events (stream_key, version, event_type, payload, actor_id, occurred_on)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, event := range events {
		if _, err := tx.ExecContext(ctx, query,
			event.StreamKey,
			event.Version,
			event.Type,
			[]byte(event.Data),
			event.ActorID,
			event.OccurredOn,
		); err != nil {
			// A concurrent writer can slip between the head read and the
			// insert; the primary key turns that race into a conflict.
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("stream %s version %d taken: %w",
					event.StreamKey, event.Version, sentinel.ErrVersionConflict)
			}
			return fmt.Errorf("append event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, streamKey string) ([]es.Envelope, error) {
	query := `
		SELECT stream_key, version, event_type, payload, actor_id, occurred_on
		FROM trust_events
		WHERE stream_key = $1
		ORDER BY version
	`
	rows, err := s.db.QueryContext(ctx, query, streamKey)
	if err != nil {
		return nil, fmt.Errorf("load stream: %w", err)
	}
	defer rows.Close()

	var events []es.Envelope
	for rows.Next() {
		var event es.Envelope
		var payload []byte
		if err := rows.Scan(&event.StreamKey, &event.Version, &event.Type, &payload, &event.ActorID, &event.OccurredOn); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.Data = payload
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stream: %w", err)
	}
	return events, nil
}
