package eventstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"keystone/internal/sentinel"
	dErrors "keystone/pkg/domain-errors"
	es "keystone/pkg/eventsourcing"
)

// note is a minimal aggregate used to exercise the repository.
type note struct {
	es.AggregateRoot
	Text string
}

type noteCreated struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type noteTextChanged struct {
	Text string `json:"text"`
}

type noteDeleted struct{}

func (noteCreated) EventType() string     { return "note.created" }
func (noteTextChanged) EventType() string { return "note.text_changed" }
func (noteDeleted) EventType() string     { return "note.deleted" }

func (n *note) Apply(e es.Event) error {
	switch event := e.(type) {
	case noteCreated:
		n.ID = event.ID
		n.Text = event.Text
	case noteTextChanged:
		n.Text = event.Text
	case noteDeleted:
		n.Deleted = true
	default:
		return dErrors.New(dErrors.CodeInvariantViolation, "unhandled note event")
	}
	return nil
}

func decodeNoteEvent(eventType string, data []byte) (es.Event, error) {
	switch eventType {
	case "note.created":
		var e noteCreated
		return e, json.Unmarshal(data, &e)
	case "note.text_changed":
		var e noteTextChanged
		return e, json.Unmarshal(data, &e)
	case "note.deleted":
		return noteDeleted{}, nil
	default:
		return nil, dErrors.New(dErrors.CodeInternal, "unknown note event: "+eventType)
	}
}

type RepositorySuite struct {
	suite.Suite
	store *InMemoryStore
	repo  *Repository[*note]
	ctx   context.Context
	now   time.Time
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.repo = NewRepository(s.store, decodeNoteEvent, func() *note { return &note{} })
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
}

func (s *RepositorySuite) newNote(id, text string) *note {
	n := &note{}
	s.Require().NoError(es.Raise(n, noteCreated{ID: id, Text: text}, "alice", s.now))
	return n
}

func (s *RepositorySuite) TestSaveAndLoadRoundTrip() {
	n := s.newNote("note-1", "first draft")
	s.Require().NoError(es.Raise(n, noteTextChanged{Text: "second draft"}, "alice", s.now))

	s.Require().NoError(s.repo.Save(s.ctx, n))
	s.Empty(n.PendingEvents())

	loaded, err := s.repo.Load(s.ctx, "note-1")
	s.Require().NoError(err)
	s.Equal("second draft", loaded.Text)
	s.Equal(int64(2), loaded.Root().Version)
	s.Equal("alice", loaded.CreatedBy)
}

func (s *RepositorySuite) TestSaveWithNothingPendingIsNoop() {
	n := s.newNote("note-1", "draft")
	s.Require().NoError(s.repo.Save(s.ctx, n))

	s.NoError(s.repo.Save(s.ctx, n))
}

func (s *RepositorySuite) TestLoadUnknownStreamIsNotFound() {
	_, err := s.repo.Load(s.ctx, "note-missing")
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RepositorySuite) TestLoadAtVersion() {
	n := s.newNote("note-1", "v1")
	s.Require().NoError(es.Raise(n, noteTextChanged{Text: "v2"}, "alice", s.now))
	s.Require().NoError(es.Raise(n, noteTextChanged{Text: "v3"}, "alice", s.now))
	s.Require().NoError(s.repo.Save(s.ctx, n))

	loaded, err := s.repo.Load(s.ctx, "note-1", AtVersion(2))
	s.Require().NoError(err)
	s.Equal("v2", loaded.Text)
	s.Equal(int64(2), loaded.Root().Version)
}

func (s *RepositorySuite) TestDeletedHiddenUnlessIncluded() {
	n := s.newNote("note-1", "draft")
	s.Require().NoError(es.Raise(n, noteDeleted{}, "alice", s.now))
	s.Require().NoError(s.repo.Save(s.ctx, n))

	_, err := s.repo.Load(s.ctx, "note-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	loaded, err := s.repo.Load(s.ctx, "note-1", IncludeDeleted())
	s.Require().NoError(err)
	s.True(loaded.Root().Deleted)
	s.Equal("draft", loaded.Text)
}

func (s *RepositorySuite) TestConcurrentSaveConflicts() {
	n := s.newNote("note-1", "draft")
	s.Require().NoError(s.repo.Save(s.ctx, n))

	first, err := s.repo.Load(s.ctx, "note-1")
	s.Require().NoError(err)
	second, err := s.repo.Load(s.ctx, "note-1")
	s.Require().NoError(err)

	s.Require().NoError(es.Raise(first, noteTextChanged{Text: "from first"}, "alice", s.now))
	s.Require().NoError(s.repo.Save(s.ctx, first))

	s.Require().NoError(es.Raise(second, noteTextChanged{Text: "from second"}, "bob", s.now))
	err = s.repo.Save(s.ctx, second)
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrVersionConflict)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	loaded, err := s.repo.Load(s.ctx, "note-1")
	s.Require().NoError(err)
	s.Equal("from first", loaded.Text)
}

func (s *RepositorySuite) TestSaveAll() {
	a := s.newNote("note-a", "alpha")
	b := s.newNote("note-b", "beta")

	s.Require().NoError(s.repo.SaveAll(s.ctx, a, b))

	loadedA, err := s.repo.Load(s.ctx, "note-a")
	s.Require().NoError(err)
	loadedB, err := s.repo.Load(s.ctx, "note-b")
	s.Require().NoError(err)
	s.Equal("alpha", loadedA.Text)
	s.Equal("beta", loadedB.Text)
}
