package domain

import (
	"encoding/base64"
	"strings"

	"github.com/google/uuid"

	dErrors "keystone/pkg/domain-errors"
)

// ScopedID identifies an aggregate within an optional tenant scope. The
// derived stream key doubles as the tenant discriminator and the opaque
// primary key of the aggregate's event stream, so no lookup table is
// needed to route a key back to its tenant.
//
// ScopedID is an immutable value: construct it, never mutate it.
type ScopedID struct {
	TenantID *TenantID
	EntityID uuid.UUID
}

// NewScopedID mints a ScopedID with a fresh entity ID in the given scope.
// A nil tenantID produces a global (non-tenant) identifier.
func NewScopedID(tenantID *TenantID) ScopedID {
	return ScopedID{TenantID: tenantID, EntityID: uuid.New()}
}

// ScopedIDOf builds a ScopedID from existing parts.
func ScopedIDOf(tenantID *TenantID, entityID uuid.UUID) ScopedID {
	return ScopedID{TenantID: tenantID, EntityID: entityID}
}

// StreamKey encodes the identifier into its stream-key form:
// url-safe base64 of the 16 entity bytes, prefixed with "<tenant>:" when
// tenant-scoped. The encoding round-trips exactly through ParseStreamKey.
func (s ScopedID) StreamKey() string {
	entity := base64.RawURLEncoding.EncodeToString(s.EntityID[:])
	if s.TenantID == nil {
		return entity
	}
	return s.TenantID.String() + ":" + entity
}

// String returns the stream key, for logging and debugging.
func (s ScopedID) String() string { return s.StreamKey() }

// IsGlobal reports whether the identifier has no tenant scope.
func (s ScopedID) IsGlobal() bool { return s.TenantID == nil }

// SameTenant reports whether two identifiers live in the same scope.
// Two global identifiers are considered same-scoped.
func (s ScopedID) SameTenant(other ScopedID) bool {
	if s.TenantID == nil || other.TenantID == nil {
		return s.TenantID == nil && other.TenantID == nil
	}
	return *s.TenantID == *other.TenantID
}

// ParseStreamKey decodes a stream key back into its (tenant, entity)
// parts. The split is on the first ':'; absence of a separator means a
// global entity. Malformed base64 or a wrong byte length is a decode
// error, never a silent truncation.
func ParseStreamKey(key string) (ScopedID, error) {
	if key == "" {
		return ScopedID{}, dErrors.New(dErrors.CodeInvalidInput, "stream key cannot be empty")
	}
	var tenantID *TenantID
	entityPart := key
	if idx := strings.Index(key, ":"); idx >= 0 {
		parsed, err := ParseTenantID(key[:idx])
		if err != nil {
			return ScopedID{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid tenant token in stream key")
		}
		tenantID = &parsed
		entityPart = key[idx+1:]
	}
	entityID, err := decodeEntityID(entityPart)
	if err != nil {
		return ScopedID{}, err
	}
	return ScopedID{TenantID: tenantID, EntityID: entityID}, nil
}

// decodeEntityID decodes the url-safe base64 form of a 16-byte entity ID.
func decodeEntityID(s string) (uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid entity ID encoding")
	}
	if len(raw) != 16 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "entity ID must decode to exactly 16 bytes")
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid entity ID bytes")
	}
	return id, nil
}
