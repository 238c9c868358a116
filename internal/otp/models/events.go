package models

import (
	"encoding/json"
	"time"

	dErrors "keystone/pkg/domain-errors"
	es "keystone/pkg/eventsourcing"
)

// The one-time password event union. Closed: DecodeEvent and Apply both
// reject types outside this file.

const (
	EventOTPCreated             = "otp.created"
	EventOTPValidationFailed    = "otp.validation_failed"
	EventOTPValidationSucceeded = "otp.validation_succeeded"
	EventOTPDeleted             = "otp.deleted"
)

// Created is the first event of every OTP stream.
type Created struct {
	ID              string            `json:"id"`
	Secret          string            `json:"secret"` // encoded password, never plain
	ExpiresOn       *time.Time        `json:"expires_on,omitempty"`
	MaximumAttempts *int              `json:"maximum_attempts,omitempty"`
	UserID          string            `json:"user_id,omitempty"`
	Attributes      map[string]string `json:"attributes,omitempty"`
}

// ValidationFailed records a wrong guess; it consumes one attempt.
type ValidationFailed struct{}

// ValidationSucceeded records the correct guess; it consumes one
// attempt and is terminal.
type ValidationSucceeded struct{}

// Deleted soft-deletes the OTP; the stream is retained.
type Deleted struct{}

func (Created) EventType() string             { return EventOTPCreated }
func (ValidationFailed) EventType() string    { return EventOTPValidationFailed }
func (ValidationSucceeded) EventType() string { return EventOTPValidationSucceeded }
func (Deleted) EventType() string             { return EventOTPDeleted }

// DecodeEvent rehydrates a stored OTP event payload.
func DecodeEvent(eventType string, data []byte) (es.Event, error) {
	switch eventType {
	case EventOTPCreated:
		var e Created
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "corrupt otp.created payload")
		}
		return e, nil
	case EventOTPValidationFailed:
		return ValidationFailed{}, nil
	case EventOTPValidationSucceeded:
		return ValidationSucceeded{}, nil
	case EventOTPDeleted:
		return Deleted{}, nil
	default:
		return nil, dErrors.New(dErrors.CodeInternal, "unknown one-time password event type: "+eventType)
	}
}
