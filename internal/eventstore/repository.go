package eventstore

import (
	"context"
	"errors"

	"keystone/internal/sentinel"
	dErrors "keystone/pkg/domain-errors"
	es "keystone/pkg/eventsourcing"
)

// LoadOption adjusts how an aggregate is rebuilt.
type LoadOption func(*loadOptions)

type loadOptions struct {
	version        int64
	includeDeleted bool
}

// AtVersion stops replay after the given version, rebuilding the
// aggregate as it was at that point in its history.
func AtVersion(version int64) LoadOption {
	return func(o *loadOptions) { o.version = version }
}

// IncludeDeleted lets a load return logically deleted aggregates, which
// otherwise surface as not found.
func IncludeDeleted() LoadOption {
	return func(o *loadOptions) { o.includeDeleted = true }
}

// Repository rebuilds and persists one aggregate type over a Store.
// One repository body serves every aggregate: the type parameter and
// the decode function carry the per-aggregate parts.
type Repository[T es.Aggregate] struct {
	store  Store
	decode es.DecodeFunc
	blank  func() T
}

// NewRepository wires a repository for T. blank returns an empty
// aggregate ready for replay; decode rehydrates T's event union.
func NewRepository[T es.Aggregate](store Store, decode es.DecodeFunc, blank func() T) *Repository[T] {
	return &Repository[T]{store: store, decode: decode, blank: blank}
}

// Load rebuilds the aggregate identified by streamKey by replaying its
// stored history.
func (r *Repository[T]) Load(ctx context.Context, streamKey string, opts ...LoadOption) (T, error) {
	var zero T
	var options loadOptions
	for _, opt := range opts {
		opt(&options)
	}

	history, err := r.store.Load(ctx, streamKey)
	if err != nil {
		return zero, err
	}
	if options.version > 0 {
		for i, event := range history {
			if event.Version > options.version {
				history = history[:i]
				break
			}
		}
	}
	if len(history) == 0 {
		return zero, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "aggregate not found: "+streamKey)
	}

	agg := r.blank()
	if err := es.Replay(agg, r.decode, history); err != nil {
		return zero, err
	}
	if agg.Root().Deleted && !options.includeDeleted {
		return zero, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "aggregate not found: "+streamKey)
	}
	return agg, nil
}

// Save appends the aggregate's pending events at the version observed
// when it was loaded, then clears the pending list. A storage-level
// version mismatch surfaces as a retryable conflict; the repository
// itself never retries.
func (r *Repository[T]) Save(ctx context.Context, agg T) error {
	root := agg.Root()
	pending := root.PendingEvents()
	if len(pending) == 0 {
		return nil
	}
	expected := root.Version - int64(len(pending))
	if err := r.store.Append(ctx, root.ID, expected, pending); err != nil {
		if errors.Is(err, sentinel.ErrVersionConflict) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "aggregate modified concurrently, reload and retry")
		}
		return err
	}
	root.ClearPendingEvents()
	return nil
}

// SaveAll persists several aggregates of the same type. Streams are
// independent; a failure leaves earlier aggregates saved.
func (r *Repository[T]) SaveAll(ctx context.Context, aggs ...T) error {
	for _, agg := range aggs {
		if err := r.Save(ctx, agg); err != nil {
			return err
		}
	}
	return nil
}
