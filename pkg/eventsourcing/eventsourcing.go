// Package eventsourcing provides the aggregate base behavior shared by
// every trust-core aggregate: state is rebuilt only by replaying the
// aggregate's own ordered event history, and mutated only by raising new
// events through the same apply path. The version advances by exactly
// one per event, which is what makes optimistic concurrency checks at
// the store possible.
package eventsourcing

import (
	"encoding/json"
	"fmt"
	"time"

	"keystone/internal/sentinel"
	dErrors "keystone/pkg/domain-errors"
)

// Event is a domain event belonging to one aggregate's closed event
// union. Implementations are pure data; the aggregate's Apply method is
// the single state-transition point for each event type.
type Event interface {
	EventType() string
}

// Envelope is the stored form of a raised event: the serialized payload
// plus the stream position and audit stamps.
type Envelope struct {
	StreamKey  string          `json:"stream_key"`
	Version    int64           `json:"version"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data"`
	ActorID    string          `json:"actor_id,omitempty"`
	OccurredOn time.Time       `json:"occurred_on"`
}

// Aggregate is implemented by every event-sourced aggregate. Apply must
// be a pure state transition: no I/O, no raising of further events, and
// deterministic so that replaying the same history always yields the
// same state. Unknown event types must be rejected, keeping the event
// union closed.
type Aggregate interface {
	Root() *Root
	Apply(Event) error
}

// DecodeFunc rehydrates a stored payload into the aggregate's concrete
// event type. Each aggregate package provides one, dispatching on the
// event type tag.
type DecodeFunc func(eventType string, data []byte) (Event, error)

// Root carries the aggregate identity, version and audit stamps. Embed
// it in concrete aggregates; business methods mutate state exclusively
// through Raise.
type Root struct {
	ID        string
	Version   int64
	Deleted   bool
	CreatedBy string
	CreatedOn time.Time
	UpdatedBy string
	UpdatedOn time.Time

	pending []Envelope
}

// AggregateRoot aliases Root for embedding. Embedding through the alias
// names the field AggregateRoot, so the promoted Root method is not
// shadowed by a field of the same name.
type AggregateRoot = Root

// Root returns the embedded root, satisfying the Aggregate interface
// for types that embed it.
func (r *Root) Root() *Root { return r }

// PendingEvents returns the events raised since load, in order.
func (r *Root) PendingEvents() []Envelope {
	return r.pending
}

// ClearPendingEvents empties the pending list after a successful
// persist. The version is untouched: it already reflects the events.
func (r *Root) ClearPendingEvents() {
	r.pending = nil
}

// EnsureMutable guards business mutators against logically deleted
// aggregates. Deletion is terminal for mutation but not for reads.
func (r *Root) EnsureMutable() error {
	if r.Deleted {
		return dErrors.Wrap(sentinel.ErrDeleted, dErrors.CodeInvariantViolation, "aggregate has been deleted")
	}
	return nil
}

func (r *Root) stamp(actorID string, at time.Time) {
	if r.Version == 1 {
		r.CreatedBy = actorID
		r.CreatedOn = at
	}
	r.UpdatedBy = actorID
	r.UpdatedOn = at
}

// Raise applies the event to the aggregate synchronously, then appends
// it to the pending list stamped with the next version, the actor and
// the occurrence time (zero means now). All guards must have passed
// before calling Raise: a failed Apply leaves both state and the
// pending list untouched.
func Raise(agg Aggregate, e Event, actorID string, occurredOn time.Time) error {
	if err := agg.Apply(e); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("could not serialize %s event", e.EventType()))
	}
	if occurredOn.IsZero() {
		occurredOn = time.Now().UTC()
	}
	root := agg.Root()
	root.Version++
	root.pending = append(root.pending, Envelope{
		StreamKey:  root.ID,
		Version:    root.Version,
		Type:       e.EventType(),
		Data:       data,
		ActorID:    actorID,
		OccurredOn: occurredOn,
	})
	root.stamp(actorID, occurredOn)
	return nil
}

// Replay reconstructs aggregate state from a stored history. The
// history must be contiguous and start at the aggregate's current
// version plus one; any gap means the stream is corrupt and replay
// stops with an error rather than guessing.
func Replay(agg Aggregate, decode DecodeFunc, history []Envelope) error {
	root := agg.Root()
	for _, env := range history {
		if env.Version != root.Version+1 {
			return dErrors.New(dErrors.CodeInternal,
				fmt.Sprintf("event stream gap: expected version %d, got %d", root.Version+1, env.Version))
		}
		e, err := decode(env.Type, env.Data)
		if err != nil {
			return err
		}
		if err := agg.Apply(e); err != nil {
			return err
		}
		root.ID = env.StreamKey
		root.Version = env.Version
		root.stamp(env.ActorID, env.OccurredOn)
	}
	return nil
}
