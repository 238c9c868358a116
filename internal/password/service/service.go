// Package service exposes policy-checked password hashing and
// verification for callers that manage user credentials.
package service

import (
	"context"
	"log/slog"

	"keystone/pkg/secrets"
)

// Service hashes plain passwords under the tenant's default strategy
// after enforcing the configured policy, and verifies presented
// passwords against stored encodings of any registered strategy.
type Service struct {
	registry *secrets.Registry
	policy   secrets.Policy
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(registry *secrets.Registry, policy secrets.Policy, opts ...Option) *Service {
	s := &Service{registry: registry, policy: policy}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hash validates plain against the policy and returns its encoding
// under the default strategy. Policy failures enumerate every unmet
// rule so callers can show them all at once.
func (s *Service) Hash(ctx context.Context, plain string) (string, error) {
	if err := s.policy.Validate(plain); err != nil {
		return "", err
	}
	password, err := s.registry.Hash(plain)
	if err != nil {
		return "", err
	}
	return password.Encode(), nil
}

// Verify reports whether plain matches the stored encoding. An unknown
// strategy key in the encoding is a configuration error, never a
// mismatch.
func (s *Service) Verify(ctx context.Context, encoded, plain string) (bool, error) {
	password, err := s.registry.Decode(encoded)
	if err != nil {
		return false, err
	}
	return password.Matches(plain), nil
}
