// Package eventstore persists aggregate event streams and rebuilds
// aggregates from them. Concurrent writers to the same stream are
// reconciled optimistically: an append carries the version the writer
// observed at load time and fails with a version conflict when storage
// has already advanced past it. The store never retries; retry policy
// belongs to the calling command layer.
package eventstore

import (
	"context"

	es "keystone/pkg/eventsourcing"
)

// Store is the event stream port.
//
// Error contract:
//   - Append returns an error wrapping sentinel.ErrVersionConflict when
//     expectedVersion no longer matches the stream head.
//   - Load returns an empty slice (not an error) for unknown streams;
//     existence is the repository's concern.
//   - Infrastructure failures are returned wrapped with context.
type Store interface {
	// Append atomically appends events to the stream iff the stream's
	// current head version equals expectedVersion.
	Append(ctx context.Context, streamKey string, expectedVersion int64, events []es.Envelope) error

	// Load returns the stream's events in version order.
	Load(ctx context.Context, streamKey string) ([]es.Envelope, error)
}
