// Package token issues and validates signed JSON Web Tokens and, via a
// revocation blacklist, makes otherwise stateless tokens behave as
// single-use credentials.
package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"keystone/internal/sentinel"
)

// Blacklist stores consumed/revoked token identifiers.
//
// Required invariant for implementers: Blacklist for an id must be safe
// to call concurrently with IsBlacklisted for the same id without two
// callers both observing "not blacklisted" and both consuming the
// token undetected. The expected mitigation is a unique insert in the
// store; a write conflict must surface as sentinel.ErrBlacklisted so
// the manager can treat the lost race as an already-consumed token.
type Blacklist interface {
	// IsBlacklisted returns the subset of ids currently blacklisted.
	IsBlacklisted(ctx context.Context, ids []string) ([]string, error)

	// Blacklist records the ids until expiresOn, after which the entries
	// may be dropped (the tokens would have expired anyway).
	Blacklist(ctx context.Context, ids []string, expiresOn time.Time) error
}

// InMemoryBlacklist is an in-process Blacklist for tests and single
// node deployments. Distributed deployments should use RedisBlacklist.
type InMemoryBlacklist struct {
	mu      sync.Mutex
	revoked map[string]time.Time // token id -> expiry
}

// NewInMemoryBlacklist creates an in-memory blacklist. A cleanup
// goroutine drops expired entries periodically.
func NewInMemoryBlacklist() *InMemoryBlacklist {
	bl := &InMemoryBlacklist{revoked: make(map[string]time.Time)}
	go bl.cleanup()
	return bl
}

func (b *InMemoryBlacklist) IsBlacklisted(_ context.Context, ids []string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	var hits []string
	for _, id := range ids {
		if expiry, ok := b.revoked[id]; ok && now.Before(expiry) {
			hits = append(hits, id)
		}
	}
	return hits, nil
}

func (b *InMemoryBlacklist) Blacklist(_ context.Context, ids []string, expiresOn time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	// First pass: reject if any id is already held, so a lost race is
	// indistinguishable from a replayed token.
	for _, id := range ids {
		if expiry, ok := b.revoked[id]; ok && now.Before(expiry) {
			return fmt.Errorf("token id %s: %w", id, sentinel.ErrBlacklisted)
		}
	}
	for _, id := range ids {
		b.revoked[id] = expiresOn
	}
	return nil
}

// cleanup periodically removes expired entries.
func (b *InMemoryBlacklist) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		b.mu.Lock()
		now := time.Now()
		for id, expiry := range b.revoked {
			if now.After(expiry) {
				delete(b.revoked, id)
			}
		}
		b.mu.Unlock()
	}
}
