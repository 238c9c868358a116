// Package models holds the one-time password aggregate: a short-lived,
// attempt-limited proof-of-possession code.
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

// OneTimePassword is an event-sourced aggregate. Expiry and exhaustion
// are computed states, not stored ones: they are derived from ExpiresOn
// and AttemptCount at validation time, so reaching them raises no event.
type OneTimePassword struct {
	es.AggregateRoot

	OTPID           id.ScopedID
	Secret          string // encoded password
	ExpiresOn       *time.Time
	MaximumAttempts *int
	AttemptCount    int
	Succeeded       bool
	UserID          *id.UserID
	Attributes      map[string]string
}

// Option configures optional creation parameters.
type Option func(*Created)

// WithExpiry bounds the OTP's lifetime.
func WithExpiry(expiresOn time.Time) Option {
	return func(e *Created) { e.ExpiresOn = &expiresOn }
}

// WithMaximumAttempts bounds the number of validations ever accepted.
func WithMaximumAttempts(max int) Option {
	return func(e *Created) { e.MaximumAttempts = &max }
}

// WithUserID binds the OTP to a user.
func WithUserID(userID id.UserID) Option {
	return func(e *Created) { e.UserID = userID.String() }
}

// WithAttributes attaches free-form custom attributes.
func WithAttributes(attrs map[string]string) Option {
	return func(e *Created) { e.Attributes = attrs }
}

// Blank returns an empty aggregate ready for replay.
func Blank() *OneTimePassword { return &OneTimePassword{} }

// New creates a OneTimePassword by raising its Created event.
func New(otpID id.ScopedID, password secrets.Password, actorID string, now time.Time, opts ...Option) (*OneTimePassword, error) {
	created := Created{ID: otpID.StreamKey(), Secret: password.Encode()}
	for _, opt := range opts {
		opt(&created)
	}
	if created.MaximumAttempts != nil && *created.MaximumAttempts < 1 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "maximum attempts must be positive")
	}
	if created.ExpiresOn != nil && !created.ExpiresOn.After(now) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "one-time password expiry must be in the future")
	}
	otp := Blank()
	if err := es.Raise(otp, created, actorID, now); err != nil {
		return nil, err
	}
	return otp, nil
}

// Validate runs one validation attempt. Expiry and exhaustion are
// checked before any attempt is consumed, so a dead OTP never appears
// to use up further tries; a wrong guess always counts against the
// budget and is recorded durably before the failure propagates.
func (o *OneTimePassword) Validate(registry *secrets.Registry, attempted, actorID string, now time.Time) error {
	if err := o.EnsureMutable(); err != nil {
		return err
	}
	if o.Succeeded {
		return dErrors.Wrap(sentinel.ErrAlreadyUsed, dErrors.CodeInvalidCredentials, "one-time password already used")
	}
	if o.ExpiresOn != nil && !now.Before(*o.ExpiresOn) {
		return dErrors.Wrap(sentinel.ErrExpired, dErrors.CodeInvalidCredentials, "one-time password expired")
	}
	if o.MaximumAttempts != nil && o.AttemptCount >= *o.MaximumAttempts {
		return dErrors.Wrap(sentinel.ErrAttemptsExhausted, dErrors.CodeInvalidCredentials, "one-time password attempts exhausted")
	}
	password, err := registry.Decode(o.Secret)
	if err != nil {
		return err
	}
	if password.Matches(attempted) {
		return es.Raise(o, ValidationSucceeded{}, actorID, now)
	}
	if err := es.Raise(o, ValidationFailed{}, actorID, now); err != nil {
		return err
	}
	return dErrors.Wrap(sentinel.ErrIncorrectSecret, dErrors.CodeInvalidCredentials, "incorrect one-time password")
}

// Delete soft-deletes the OTP. Idempotent: no event when already deleted.
func (o *OneTimePassword) Delete(actorID string, now time.Time) error {
	if o.Deleted {
		return nil
	}
	return es.Raise(o, Deleted{}, actorID, now)
}

// Apply is the single state-transition point of the OTP event union.
func (o *OneTimePassword) Apply(e es.Event) error {
	switch event := e.(type) {
	case Created:
		otpID, err := id.ParseStreamKey(event.ID)
		if err != nil {
			return err
		}
		o.ID = event.ID
		o.OTPID = otpID
		o.Secret = event.Secret
		o.ExpiresOn = event.ExpiresOn
		o.MaximumAttempts = event.MaximumAttempts
		o.Attributes = event.Attributes
		if event.UserID != "" {
			userID, err := id.ParseUserID(event.UserID)
			if err != nil {
				return err
			}
			o.UserID = &userID
		}
	case ValidationFailed:
		o.AttemptCount++
	case ValidationSucceeded:
		o.AttemptCount++
		o.Succeeded = true
	case Deleted:
		o.AggregateRoot.Deleted = true
	default:
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("unhandled one-time password event %T", e))
	}
	return nil
}
