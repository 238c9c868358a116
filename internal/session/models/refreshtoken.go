package models

import (
	id "keystone/pkg/domain"
)

// RefreshTokenPrefix tags refresh token bearer values on the wire.
const RefreshTokenPrefix = "RT"

// RefreshToken is the transient bearer form of a persistent session's
// current secret: "RT.<urlSafeBase64(entity id)>.<urlSafeBase64(32-byte
// secret)>". It is reconstructed per request and never persisted; each
// successful renewal hands out a new one and kills the previous.
type RefreshToken struct {
	ID     id.ScopedID
	Secret []byte
}

// NewRefreshToken builds a bearer value; the secret must be exactly 32
// raw bytes. Validation happens eagerly so Encode cannot fail later.
func NewRefreshToken(sessionID id.ScopedID, secret []byte) (RefreshToken, error) {
	if _, err := id.EncodeBearer(RefreshTokenPrefix, sessionID, secret); err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{ID: sessionID, Secret: secret}, nil
}

// ParseRefreshToken decodes a bearer value against the expected tenant
// scope. A nil tenant decodes a global session's token.
func ParseRefreshToken(tenantID *id.TenantID, value string) (RefreshToken, error) {
	sessionID, secret, err := id.ParseBearer(RefreshTokenPrefix, tenantID, value)
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{ID: sessionID, Secret: secret}, nil
}

// Encode renders the wire form.
func (r RefreshToken) Encode() string {
	encoded, _ := id.EncodeBearer(RefreshTokenPrefix, r.ID, r.Secret)
	return encoded
}
