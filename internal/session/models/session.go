// Package models holds the session aggregate: the record of one user
// sign-in, optionally renewable through a rotating refresh secret.
package models

import (
	"fmt"
	"time"

	"keystone/internal/sentinel"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	es "keystone/pkg/eventsourcing"
	"keystone/pkg/secrets"
)

// AttributeDevice names the custom attribute carrying the device
// display name recorded at sign-in.
const AttributeDevice = "device"

// Session is an event-sourced aggregate. A session is persistent iff a
// secret was attached at sign-in; only persistent sessions can be
// renewed, and every renewal rotates the secret.
type Session struct {
	es.AggregateRoot

	SessionID  id.ScopedID
	UserID     id.UserID
	Secret     string // encoded password; empty for non-persistent sessions
	Active     bool
	Attributes map[string]string
}

// Option configures optional sign-in parameters.
type Option func(*SignedIn)

// WithSecret makes the session persistent by attaching its first
// refresh secret.
func WithSecret(secret secrets.Password) Option {
	return func(e *SignedIn) { e.Secret = secret.Encode() }
}

// WithAttributes attaches free-form custom attributes.
func WithAttributes(attrs map[string]string) Option {
	return func(e *SignedIn) {
		if e.Attributes == nil {
			e.Attributes = make(map[string]string, len(attrs))
		}
		for k, v := range attrs {
			e.Attributes[k] = v
		}
	}
}

// WithDeviceName records a human-readable device name for session
// management UIs (e.g. "Chrome on macOS").
func WithDeviceName(name string) Option {
	return func(e *SignedIn) {
		if name == "" {
			return
		}
		if e.Attributes == nil {
			e.Attributes = make(map[string]string, 1)
		}
		e.Attributes[AttributeDevice] = name
	}
}

// Blank returns an empty aggregate ready for replay.
func Blank() *Session { return &Session{} }

// New signs a user in by raising the SignedIn event.
func New(sessionID id.ScopedID, userID id.UserID, actorID string, now time.Time, opts ...Option) (*Session, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "session user ID cannot be empty")
	}
	signedIn := SignedIn{ID: sessionID.StreamKey(), UserID: userID.String()}
	for _, opt := range opts {
		opt(&signedIn)
	}
	session := Blank()
	if err := es.Raise(session, signedIn, actorID, now); err != nil {
		return nil, err
	}
	return session, nil
}

// IsPersistent reports whether a refresh secret is attached.
func (s *Session) IsPersistent() bool { return s.Secret != "" }

// Renew rotates the refresh secret. The presented plain value must
// match the stored hash; on success the stored secret is replaced with
// newSecret, invalidating the previous refresh token. That rotation
// bounds the blast radius of a leaked token to a single use.
func (s *Session) Renew(registry *secrets.Registry, presented string, newSecret secrets.Password, actorID string, now time.Time) error {
	if err := s.EnsureMutable(); err != nil {
		return err
	}
	if !s.Active {
		return dErrors.Wrap(sentinel.ErrNotActive, dErrors.CodeInvalidCredentials, "session has signed out")
	}
	if !s.IsPersistent() {
		return dErrors.Wrap(sentinel.ErrNotPersistent, dErrors.CodeInvalidCredentials, "session is not persistent")
	}
	secret, err := registry.Decode(s.Secret)
	if err != nil {
		return err
	}
	if !secret.Matches(presented) {
		return dErrors.Wrap(sentinel.ErrIncorrectSecret, dErrors.CodeInvalidCredentials, "incorrect refresh secret")
	}
	return es.Raise(s, Renewed{Secret: newSecret.Encode()}, actorID, now)
}

// SignOut deactivates the session. Idempotent: no event when already
// inactive.
func (s *Session) SignOut(actorID string, now time.Time) error {
	if err := s.EnsureMutable(); err != nil {
		return err
	}
	if !s.Active {
		return nil
	}
	return es.Raise(s, SignedOut{}, actorID, now)
}

// SetAttribute upserts a custom attribute. Idempotent: no event when
// the value is already held.
func (s *Session) SetAttribute(key, value, actorID string, now time.Time) error {
	if err := s.EnsureMutable(); err != nil {
		return err
	}
	if key == "" {
		return dErrors.New(dErrors.CodeBadRequest, "attribute key cannot be empty")
	}
	if current, ok := s.Attributes[key]; ok && current == value {
		return nil
	}
	return es.Raise(s, AttributeSet{Key: key, Value: value}, actorID, now)
}

// Delete soft-deletes the session. Idempotent: no event when already
// deleted.
func (s *Session) Delete(actorID string, now time.Time) error {
	if s.Deleted {
		return nil
	}
	return es.Raise(s, Deleted{}, actorID, now)
}

// Apply is the single state-transition point of the session event union.
func (s *Session) Apply(e es.Event) error {
	switch event := e.(type) {
	case SignedIn:
		sessionID, err := id.ParseStreamKey(event.ID)
		if err != nil {
			return err
		}
		userID, err := id.ParseUserID(event.UserID)
		if err != nil {
			return err
		}
		s.ID = event.ID
		s.SessionID = sessionID
		s.UserID = userID
		s.Secret = event.Secret
		s.Active = true
		s.Attributes = event.Attributes
	case Renewed:
		s.Secret = event.Secret
	case SignedOut:
		s.Active = false
	case AttributeSet:
		if s.Attributes == nil {
			s.Attributes = make(map[string]string)
		}
		s.Attributes[event.Key] = event.Value
	case Deleted:
		s.AggregateRoot.Deleted = true
	default:
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("unhandled session event %T", e))
	}
	return nil
}
