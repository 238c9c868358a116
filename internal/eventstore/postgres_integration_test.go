//go:build integration

package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"keystone/internal/sentinel"
	es "keystone/pkg/eventsourcing"
)

type PostgresStoreSuite struct {
	suite.Suite
	container testcontainers.Container
	db        *sql.DB
	store     *PostgresStore
	ctx       context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("keystone_test"),
		postgres.WithUsername("keystone"),
		postgres.WithPassword("keystone_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sql.Open("pgx", dsn)
	s.Require().NoError(err)
	s.db = db

	s.store = NewPostgres(db)
	s.Require().NoError(s.store.Migrate(s.ctx))
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.db.ExecContext(s.ctx, "TRUNCATE TABLE trust_events")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) envelope(streamKey string, version int64, eventType string) es.Envelope {
	return es.Envelope{
		StreamKey:  streamKey,
		Version:    version,
		Type:       eventType,
		Data:       json.RawMessage(`{"text":"hello"}`),
		ActorID:    "alice",
		OccurredOn: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}
}

func (s *PostgresStoreSuite) TestAppendAndLoad() {
	s.Require().NoError(s.store.Append(s.ctx, "note-1", 0, []es.Envelope{
		s.envelope("note-1", 1, "note.created"),
		s.envelope("note-1", 2, "note.text_changed"),
	}))

	history, err := s.store.Load(s.ctx, "note-1")
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal("note.created", history[0].Type)
	s.Equal(int64(2), history[1].Version)
	s.Equal("alice", history[1].ActorID)
	s.JSONEq(`{"text":"hello"}`, string(history[0].Data))
}

func (s *PostgresStoreSuite) TestLoadUnknownStreamIsEmpty() {
	history, err := s.store.Load(s.ctx, "note-missing")
	s.Require().NoError(err)
	s.Empty(history)
}

func (s *PostgresStoreSuite) TestAppendAtStaleVersionConflicts() {
	s.Require().NoError(s.store.Append(s.ctx, "note-1", 0, []es.Envelope{
		s.envelope("note-1", 1, "note.created"),
	}))

	err := s.store.Append(s.ctx, "note-1", 0, []es.Envelope{
		s.envelope("note-1", 2, "note.text_changed"),
	})
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrVersionConflict)
}

func (s *PostgresStoreSuite) TestDuplicateVersionInsertConflicts() {
	s.Require().NoError(s.store.Append(s.ctx, "note-1", 0, []es.Envelope{
		s.envelope("note-1", 1, "note.created"),
	}))

	// Claim the head read saw version 1 but insert a duplicate: the
	// primary key on (stream_key, version) must reject it.
	err := s.store.Append(s.ctx, "note-1", 1, []es.Envelope{
		s.envelope("note-1", 1, "note.created"),
	})
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrVersionConflict)
}

func (s *PostgresStoreSuite) TestFailedAppendLeavesStreamUntouched() {
	s.Require().NoError(s.store.Append(s.ctx, "note-1", 0, []es.Envelope{
		s.envelope("note-1", 1, "note.created"),
	}))

	err := s.store.Append(s.ctx, "note-1", 1, []es.Envelope{
		s.envelope("note-1", 2, "note.text_changed"),
		s.envelope("note-1", 2, "note.text_changed"),
	})
	s.Require().Error(err)

	history, err := s.store.Load(s.ctx, "note-1")
	s.Require().NoError(err)
	s.Len(history, 1)
}

func (s *PostgresStoreSuite) TestRepositoryOverPostgres() {
	repo := NewRepository(s.store, decodeNoteEvent, func() *note { return &note{} })

	n := &note{}
	s.Require().NoError(es.Raise(n, noteCreated{ID: "note-pg", Text: "durable"}, "alice", time.Now().UTC()))
	s.Require().NoError(repo.Save(s.ctx, n))

	loaded, err := repo.Load(s.ctx, "note-pg")
	s.Require().NoError(err)
	s.Equal("durable", loaded.Text)
	s.Equal(int64(1), loaded.Root().Version)
}
