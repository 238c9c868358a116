// Package models holds the API key aggregate and its bearer codec.
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

const maxNameLength = 128

// APIKey is an event-sourced aggregate representing a long-lived
// machine credential with role membership.
type APIKey struct {
	es.AggregateRoot

	KeyID           id.ScopedID
	Secret          string // encoded password
	Name            string
	ExpiresOn       *time.Time
	AuthenticatedOn *time.Time
	Roles           map[string]id.ScopedID // keyed by role stream key
	Attributes      map[string]string
}

// Option configures optional creation parameters.
type Option func(*Created)

// WithExpiry bounds the key's lifetime from the start.
func WithExpiry(expiresOn time.Time) Option {
	return func(e *Created) { e.ExpiresOn = &expiresOn }
}

// WithRoles grants initial roles. Cross-tenant roles are rejected at
// construction like they are at AddRole.
func WithRoles(roles ...id.ScopedID) Option {
	return func(e *Created) {
		for _, role := range roles {
			e.Roles = append(e.Roles, role.StreamKey())
		}
	}
}

// WithAttributes attaches free-form custom attributes.
func WithAttributes(attrs map[string]string) Option {
	return func(e *Created) { e.Attributes = attrs }
}

// Blank returns an empty aggregate ready for replay.
func Blank() *APIKey { return &APIKey{} }

// New creates an APIKey by raising its Created event.
func New(keyID id.ScopedID, secret secrets.Password, name, actorID string, now time.Time, opts ...Option) (*APIKey, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	created := Created{ID: keyID.StreamKey(), Secret: secret.Encode(), Name: name}
	for _, opt := range opts {
		opt(&created)
	}
	if created.ExpiresOn != nil && !created.ExpiresOn.After(now) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "API key expiry must be in the future")
	}
	for _, roleKey := range created.Roles {
		role, err := id.ParseStreamKey(roleKey)
		if err != nil {
			return nil, err
		}
		if !role.SameTenant(keyID) {
			return nil, dErrors.New(dErrors.CodeInvalidTenant, "role belongs to a different tenant")
		}
	}
	key := Blank()
	if err := es.Raise(key, created, actorID, now); err != nil {
		return nil, err
	}
	return key, nil
}

// Authenticate checks the presented secret and stamps AuthenticatedOn.
// An expired key fails before the secret is ever inspected.
func (k *APIKey) Authenticate(registry *secrets.Registry, attempted, actorID string, now time.Time) error {
	if err := k.EnsureMutable(); err != nil {
		return err
	}
	if k.ExpiresOn != nil && !now.Before(*k.ExpiresOn) {
		return dErrors.Wrap(sentinel.ErrExpired, dErrors.CodeInvalidCredentials, "API key expired")
	}
	secret, err := registry.Decode(k.Secret)
	if err != nil {
		return err
	}
	if !secret.Matches(attempted) {
		return dErrors.Wrap(sentinel.ErrIncorrectSecret, dErrors.CodeInvalidCredentials, "incorrect API key secret")
	}
	return es.Raise(k, Authenticated{On: now}, actorID, now)
}

// AddRole grants a role. Idempotent: no event when already granted.
// Roles from another tenant are rejected.
func (k *APIKey) AddRole(role id.ScopedID, actorID string, now time.Time) error {
	if err := k.EnsureMutable(); err != nil {
		return err
	}
	if !role.SameTenant(k.KeyID) {
		return dErrors.New(dErrors.CodeInvalidTenant, "role belongs to a different tenant")
	}
	if _, held := k.Roles[role.StreamKey()]; held {
		return nil
	}
	return es.Raise(k, RoleAdded{Role: role.StreamKey()}, actorID, now)
}

// RemoveRole revokes a role. Idempotent: no event when not granted.
func (k *APIKey) RemoveRole(role id.ScopedID, actorID string, now time.Time) error {
	if err := k.EnsureMutable(); err != nil {
		return err
	}
	if _, held := k.Roles[role.StreamKey()]; !held {
		return nil
	}
	return es.Raise(k, RoleRemoved{Role: role.StreamKey()}, actorID, now)
}

// SetExpiresOn moves the expiration. Once set, the expiration only ever
// moves closer to now: extending or removing it would resurrect a
// credential its owner already decided to retire.
func (k *APIKey) SetExpiresOn(expiresOn time.Time, actorID string, now time.Time) error {
	if err := k.EnsureMutable(); err != nil {
		return err
	}
	if !expiresOn.After(now) {
		return dErrors.New(dErrors.CodeBadRequest, "API key expiry must be in the future")
	}
	if k.ExpiresOn != nil {
		if expiresOn.Equal(*k.ExpiresOn) {
			return nil
		}
		if expiresOn.After(*k.ExpiresOn) {
			return dErrors.New(dErrors.CodeValidation, "API key expiry can only be shortened")
		}
	}
	return es.Raise(k, ExpiryShortened{ExpiresOn: expiresOn}, actorID, now)
}

// Rename changes the display name. Idempotent: no event when unchanged.
func (k *APIKey) Rename(name, actorID string, now time.Time) error {
	if err := k.EnsureMutable(); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}
	if name == k.Name {
		return nil
	}
	return es.Raise(k, Renamed{Name: name}, actorID, now)
}

// SetAttribute upserts a custom attribute. Idempotent: no event when
// the value is already held.
func (k *APIKey) SetAttribute(key, value, actorID string, now time.Time) error {
	if err := k.EnsureMutable(); err != nil {
		return err
	}
	if key == "" {
		return dErrors.New(dErrors.CodeBadRequest, "attribute key cannot be empty")
	}
	if current, ok := k.Attributes[key]; ok && current == value {
		return nil
	}
	return es.Raise(k, AttributeSet{Key: key, Value: value}, actorID, now)
}

// Delete soft-deletes the key. Idempotent: no event when already deleted.
func (k *APIKey) Delete(actorID string, now time.Time) error {
	if k.Deleted {
		return nil
	}
	return es.Raise(k, Deleted{}, actorID, now)
}

// HasRole reports role membership.
func (k *APIKey) HasRole(role id.ScopedID) bool {
	_, held := k.Roles[role.StreamKey()]
	return held
}

// Apply is the single state-transition point of the API key event union.
func (k *APIKey) Apply(e es.Event) error {
	switch event := e.(type) {
	case Created:
		keyID, err := id.ParseStreamKey(event.ID)
		if err != nil {
			return err
		}
		k.ID = event.ID
		k.KeyID = keyID
		k.Secret = event.Secret
		k.Name = event.Name
		k.ExpiresOn = event.ExpiresOn
		k.Attributes = event.Attributes
		k.Roles = make(map[string]id.ScopedID, len(event.Roles))
		for _, roleKey := range event.Roles {
			role, err := id.ParseStreamKey(roleKey)
			if err != nil {
				return err
			}
			k.Roles[roleKey] = role
		}
	case Authenticated:
		on := event.On
		k.AuthenticatedOn = &on
	case RoleAdded:
		role, err := id.ParseStreamKey(event.Role)
		if err != nil {
			return err
		}
		if k.Roles == nil {
			k.Roles = make(map[string]id.ScopedID)
		}
		k.Roles[event.Role] = role
	case RoleRemoved:
		delete(k.Roles, event.Role)
	case ExpiryShortened:
		expiresOn := event.ExpiresOn
		k.ExpiresOn = &expiresOn
	case Renamed:
		k.Name = event.Name
	case AttributeSet:
		if k.Attributes == nil {
			k.Attributes = make(map[string]string)
		}
		k.Attributes[event.Key] = event.Value
	case Deleted:
		k.AggregateRoot.Deleted = true
	default:
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("unhandled API key event %T", e))
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return dErrors.New(dErrors.CodeBadRequest, "API key name cannot be empty")
	}
	if len(name) > maxNameLength {
		return dErrors.New(dErrors.CodeBadRequest, "API key name must be 128 characters or less")
	}
	return nil
}
