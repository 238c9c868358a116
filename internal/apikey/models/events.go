package models

import (
	"encoding/json"
	"time"

	dErrors "keystone/pkg/domain-errors"
	es "keystone/pkg/eventsourcing"
)

// The API key event union.

const (
	EventAPIKeyCreated         = "apikey.created"
	EventAPIKeyAuthenticated   = "apikey.authenticated"
	EventAPIKeyRoleAdded       = "apikey.role_added"
	EventAPIKeyRoleRemoved     = "apikey.role_removed"
	EventAPIKeyExpiryShortened = "apikey.expiry_shortened"
	EventAPIKeyRenamed         = "apikey.renamed"
	EventAPIKeyAttributeSet    = "apikey.attribute_set"
	EventAPIKeyDeleted         = "apikey.deleted"
)

// Created is the first event of every API key stream.
type Created struct {
	ID         string            `json:"id"`
	Secret     string            `json:"secret"` // encoded password, never plain
	Name       string            `json:"name"`
	ExpiresOn  *time.Time        `json:"expires_on,omitempty"`
	Roles      []string          `json:"roles,omitempty"` // role stream keys
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Authenticated stamps a successful secret check.
type Authenticated struct {
	On time.Time `json:"on"`
}

// RoleAdded grants a role. The role always belongs to the key's tenant;
// the aggregate rejects cross-tenant grants before raising.
type RoleAdded struct {
	Role string `json:"role"`
}

// RoleRemoved revokes a role.
type RoleRemoved struct {
	Role string `json:"role"`
}

// ExpiryShortened moves the expiration closer to now. The expiration is
// never extended or removed once set.
type ExpiryShortened struct {
	ExpiresOn time.Time `json:"expires_on"`
}

// Renamed changes the display name.
type Renamed struct {
	Name string `json:"name"`
}

// AttributeSet upserts one custom attribute.
type AttributeSet struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Deleted soft-deletes the key; the stream is retained.
type Deleted struct{}

func (Created) EventType() string         { return EventAPIKeyCreated }
func (Authenticated) EventType() string   { return EventAPIKeyAuthenticated }
func (RoleAdded) EventType() string       { return EventAPIKeyRoleAdded }
func (RoleRemoved) EventType() string     { return EventAPIKeyRoleRemoved }
func (ExpiryShortened) EventType() string { return EventAPIKeyExpiryShortened }
func (Renamed) EventType() string         { return EventAPIKeyRenamed }
func (AttributeSet) EventType() string    { return EventAPIKeyAttributeSet }
func (Deleted) EventType() string         { return EventAPIKeyDeleted }

// DecodeEvent rehydrates a stored API key event payload.
func DecodeEvent(eventType string, data []byte) (es.Event, error) {
	unmarshal := func(v any) (es.Event, error) {
		if err := json.Unmarshal(data, v); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "corrupt "+eventType+" payload")
		}
		return nil, nil
	}
	switch eventType {
	case EventAPIKeyCreated:
		var e Created
		if _, err := unmarshal(&e); err != nil {
			return nil, err
		}
		return e, nil
	case EventAPIKeyAuthenticated:
		var e Authenticated
		if _, err := unmarshal(&e); err != nil {
			return nil, err
		}
		return e, nil
	case EventAPIKeyRoleAdded:
		var e RoleAdded
		if _, err := unmarshal(&e); err != nil {
			return nil, err
		}
		return e, nil
	case EventAPIKeyRoleRemoved:
		var e RoleRemoved
		if _, err := unmarshal(&e); err != nil {
			return nil, err
		}
		return e, nil
	case EventAPIKeyExpiryShortened:
		var e ExpiryShortened
		if _, err := unmarshal(&e); err != nil {
			return nil, err
		}
		return e, nil
	case EventAPIKeyRenamed:
		var e Renamed
		if _, err := unmarshal(&e); err != nil {
			return nil, err
		}
		return e, nil
	case EventAPIKeyAttributeSet:
		var e AttributeSet
		if _, err := unmarshal(&e); err != nil {
			return nil, err
		}
		return e, nil
	case EventAPIKeyDeleted:
		return Deleted{}, nil
	default:
		return nil, dErrors.New(dErrors.CodeInternal, "unknown API key event type: "+eventType)
	}
}
