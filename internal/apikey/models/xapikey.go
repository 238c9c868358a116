package models

import (
	id "keystone/pkg/domain"
)

// XAPIKeyPrefix tags API key bearer values on the wire.
const XAPIKeyPrefix = "KK"

// XAPIKey is the transient bearer form of an API key:
// "KK.<urlSafeBase64(entity id)>.<urlSafeBase64(32-byte secret)>".
// It is reconstructed per request and never persisted.
type XAPIKey struct {
	ID     id.ScopedID
	Secret []byte
}

// NewXAPIKey builds a bearer value; the secret must be exactly 32 raw
// bytes. Validation happens eagerly so Encode cannot fail later.
func NewXAPIKey(keyID id.ScopedID, secret []byte) (XAPIKey, error) {
	// EncodeBearer enforces the secret length; run it once up front.
	if _, err := id.EncodeBearer(XAPIKeyPrefix, keyID, secret); err != nil {
		return XAPIKey{}, err
	}
	return XAPIKey{ID: keyID, Secret: secret}, nil
}

// ParseXAPIKey decodes a bearer value against the expected tenant
// scope. A nil tenant decodes a global key.
func ParseXAPIKey(tenantID *id.TenantID, value string) (XAPIKey, error) {
	keyID, secret, err := id.ParseBearer(XAPIKeyPrefix, tenantID, value)
	if err != nil {
		return XAPIKey{}, err
	}
	return XAPIKey{ID: keyID, Secret: secret}, nil
}

// Encode renders the wire form.
func (x XAPIKey) Encode() string {
	encoded, _ := id.EncodeBearer(XAPIKeyPrefix, x.ID, x.Secret)
	return encoded
}
