// Package secrets implements the pluggable password abstraction: hashing
// strategies behind a registry, policy validation, and generation of
// one-time and bearer secret material.
package secrets

import (
	"strings"

	dErrors "keystone/pkg/domain-errors"
)

// Separator splits the strategy key from its payload in the encoded
// form "<strategyKey>$<payload>". PHC-style, so payloads may freely use
// ':' internally.
const Separator = "$"

// Password is an immutable hashed (or, for the reversible test
// strategy, encoded) secret. Matches never exposes the stored material.
type Password interface {
	// StrategyKey identifies the strategy that produced this password.
	StrategyKey() string
	// Encode renders the password as "<strategyKey>$<payload>".
	Encode() string
	// Matches reports whether the plain value verifies against the
	// stored material.
	Matches(plain string) bool
}

// Strategy hashes plain secrets and rehydrates stored payloads.
type Strategy interface {
	Key() string
	Hash(plain string) (Password, error)
	Decode(payload string) (Password, error)
}

// Registry maps strategy keys to implementations. The default strategy
// hashes new secrets; decoding dispatches on the encoded prefix. An
// unknown key is a fatal configuration error, never silently defaulted:
// defaulting would let a credential hashed under a disabled algorithm
// keep authenticating.
type Registry struct {
	strategies map[string]Strategy
	defaultKey string
}

// NewRegistry builds a registry from the given strategies, with
// defaultKey selecting the strategy used for new secrets.
func NewRegistry(defaultKey string, strategies ...Strategy) (*Registry, error) {
	if len(strategies) == 0 {
		return nil, dErrors.New(dErrors.CodeStrategyNotSupported, "at least one password strategy is required")
	}
	reg := &Registry{strategies: make(map[string]Strategy, len(strategies)), defaultKey: defaultKey}
	for _, s := range strategies {
		if s.Key() == "" || strings.Contains(s.Key(), Separator) {
			return nil, dErrors.New(dErrors.CodeStrategyNotSupported, "invalid password strategy key")
		}
		if _, dup := reg.strategies[s.Key()]; dup {
			return nil, dErrors.New(dErrors.CodeConflict, "duplicate password strategy key: "+s.Key())
		}
		reg.strategies[s.Key()] = s
	}
	if _, ok := reg.strategies[defaultKey]; !ok {
		return nil, dErrors.New(dErrors.CodeStrategyNotSupported, "default password strategy not registered: "+defaultKey)
	}
	return reg, nil
}

// Strategy returns the registered strategy for key.
func (r *Registry) Strategy(key string) (Strategy, error) {
	s, ok := r.strategies[key]
	if !ok {
		return nil, dErrors.New(dErrors.CodeStrategyNotSupported, "unknown password strategy: "+key)
	}
	return s, nil
}

// Keys lists the registered strategy keys.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.strategies))
	for k := range r.strategies {
		keys = append(keys, k)
	}
	return keys
}

// Hash hashes a plain secret with the default strategy.
func (r *Registry) Hash(plain string) (Password, error) {
	return r.strategies[r.defaultKey].Hash(plain)
}

// Decode rehydrates an encoded password, dispatching on its strategy
// prefix.
func (r *Registry) Decode(encoded string) (Password, error) {
	key, payload, found := strings.Cut(encoded, Separator)
	if !found || key == "" || payload == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "malformed encoded password")
	}
	strategy, err := r.Strategy(key)
	if err != nil {
		return nil, err
	}
	return strategy.Decode(payload)
}

func encode(key, payload string) string {
	return key + Separator + payload
}
