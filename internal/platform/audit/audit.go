package audit

import (
	"context"
	"time"
)

// Entry is a single audit record describing a committed domain event.
type Entry struct {
	StreamKey  string    `json:"stream_key"`
	EventType  string    `json:"event_type"`
	Version    int64     `json:"version"`
	ActorID    string    `json:"actor_id,omitempty"`
	TenantID   string    `json:"tenant_id,omitempty"`
	OccurredOn time.Time `json:"occurred_on"`
}

// Sink persists audit entries.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

// NoopSink discards entries. Used when audit streaming is disabled.
type NoopSink struct{}

func (NoopSink) Append(context.Context, Entry) error { return nil }
