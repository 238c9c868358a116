package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Publisher fans committed events out to a sink. It is append-only; the
// sink is an interface so tests can swap in a recording implementation.
type Publisher struct {
	sink    Sink
	entries chan Entry
	wg      sync.WaitGroup
	logger  *slog.Logger
	async   bool
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Entries are queued and persisted in a background goroutine.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.entries = make(chan Entry, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for async error reporting.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(sink Sink, opts ...PublisherOption) *Publisher {
	p := &Publisher{sink: sink}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEntries()
	}
	return p
}

func (p *Publisher) processEntries() {
	defer p.wg.Done()
	for entry := range p.entries {
		if err := p.sink.Append(context.Background(), entry); err != nil {
			if p.logger != nil {
				p.logger.Error("failed to persist audit entry",
					"error", err,
					"event_type", entry.EventType,
					"stream_key", entry.StreamKey,
				)
			}
		}
	}
}

// Close shuts down the async publisher and waits for pending entries to drain.
func (p *Publisher) Close() {
	if p.async && p.entries != nil {
		close(p.entries)
		p.wg.Wait()
	}
}

// Emit records an entry. In async mode the send is non-blocking; the
// entry is dropped if the buffer is full so the write path never stalls.
func (p *Publisher) Emit(ctx context.Context, entry Entry) error {
	if entry.OccurredOn.IsZero() {
		entry.OccurredOn = time.Now().UTC()
	}
	if p.async {
		select {
		case p.entries <- entry:
			return nil
		default:
			if p.logger != nil {
				p.logger.Warn("audit buffer full, entry dropped",
					"event_type", entry.EventType,
					"stream_key", entry.StreamKey,
				)
			}
			return nil
		}
	}
	return p.sink.Append(ctx, entry)
}
