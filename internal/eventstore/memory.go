package eventstore

import (
	"context"
	"fmt"
	"sync"

	"keystone/internal/sentinel"
	es "keystone/pkg/eventsourcing"
)

// InMemoryStore keeps event streams in process memory. It favors
// clarity over performance and backs unit tests and local development.
type InMemoryStore struct {
	mu      sync.RWMutex
	streams map[string][]es.Envelope
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{streams: make(map[string][]es.Envelope)}
}

func (s *InMemoryStore) Append(_ context.Context, streamKey string, expectedVersion int64, events []es.Envelope) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[streamKey]
	var head int64
	if len(stream) > 0 {
		head = stream[len(stream)-1].Version
	}
	if head != expectedVersion {
		return fmt.Errorf("stream %s at version %d, expected %d: %w",
			streamKey, head, expectedVersion, sentinel.ErrVersionConflict)
	}
	s.streams[streamKey] = append(stream, events...)
	return nil
}

func (s *InMemoryStore) Load(_ context.Context, streamKey string) ([]es.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[streamKey]
	out := make([]es.Envelope, len(stream))
	copy(out, stream)
	return out, nil
}
