package models

import (
	"encoding/json"

	dErrors "keystone/pkg/domain-errors"
	es "keystone/pkg/eventsourcing"
)

// The session event union.

const (
	EventSessionSignedIn     = "session.signed_in"
	EventSessionRenewed      = "session.renewed"
	EventSessionSignedOut    = "session.signed_out"
	EventSessionAttributeSet = "session.attribute_set"
	EventSessionDeleted      = "session.deleted"
)

// SignedIn is the first event of every session stream. An empty Secret
// means a non-persistent session: it can never be renewed.
type SignedIn struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Secret     string            `json:"secret,omitempty"` // encoded password, never plain
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Renewed rotates the refresh secret: the stored hash is replaced, so
// the previous refresh token dies with this event.
type Renewed struct {
	Secret string `json:"secret"` // encoded password, never plain
}

// SignedOut deactivates the session. Terminal for renewal, not for reads.
type SignedOut struct{}

// AttributeSet upserts one custom attribute.
type AttributeSet struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Deleted soft-deletes the session; the stream is retained.
type Deleted struct{}

func (SignedIn) EventType() string     { return EventSessionSignedIn }
func (Renewed) EventType() string      { return EventSessionRenewed }
func (SignedOut) EventType() string    { return EventSessionSignedOut }
func (AttributeSet) EventType() string { return EventSessionAttributeSet }
func (Deleted) EventType() string      { return EventSessionDeleted }

// DecodeEvent rehydrates a stored session event payload.
func DecodeEvent(eventType string, data []byte) (es.Event, error) {
	switch eventType {
	case EventSessionSignedIn:
		var e SignedIn
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "corrupt session.signed_in payload")
		}
		return e, nil
	case EventSessionRenewed:
		var e Renewed
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "corrupt session.renewed payload")
		}
		return e, nil
	case EventSessionSignedOut:
		return SignedOut{}, nil
	case EventSessionAttributeSet:
		var e AttributeSet
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "corrupt session.attribute_set payload")
		}
		return e, nil
	case EventSessionDeleted:
		return Deleted{}, nil
	default:
		return nil, dErrors.New(dErrors.CodeInternal, "unknown session event type: "+eventType)
	}
}
