package domain

import (
	"encoding/base64"
	"strings"

	dErrors "keystone/pkg/domain-errors"
	"keystone/internal/sentinel"
)

// BearerSecretLength is the exact raw length of every bearer secret.
const BearerSecretLength = 32

// Bearer token wire format, shared by API keys ("KK") and refresh
// tokens ("RT"):
//
//	<PREFIX> "." urlSafeBase64(16-byte entity id) "." urlSafeBase64(32-byte secret)
//
// The tenant is never part of the wire value; the caller supplies the
// expected scope when decoding. Bearer values are transient: rebuilt per
// request, never persisted.

// EncodeBearer renders a bearer token in the 3-part dot-separated form.
// The secret must be exactly BearerSecretLength raw bytes.
func EncodeBearer(prefix string, id ScopedID, secret []byte) (string, error) {
	if prefix == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "bearer prefix cannot be empty")
	}
	if len(secret) != BearerSecretLength {
		return "", dErrors.New(dErrors.CodeBadRequest, "bearer secret must be exactly 32 bytes")
	}
	return prefix + "." +
		base64.RawURLEncoding.EncodeToString(id.EntityID[:]) + "." +
		base64.RawURLEncoding.EncodeToString(secret), nil
}

// ParseBearer decodes a bearer token value, rejecting anything that is
// not exactly three dot-separated parts with the expected prefix tag, a
// 16-byte entity ID and a 32-byte secret. Failures are reported as
// invalid credentials: a malformed bearer is indistinguishable from a
// wrong one to the caller.
func ParseBearer(prefix string, tenantID *TenantID, value string) (ScopedID, []byte, error) {
	parts := strings.Split(value, ".")
	if len(parts) != 3 {
		return ScopedID{}, nil, malformedBearer("bearer token must have exactly 3 parts")
	}
	if parts[0] != prefix {
		return ScopedID{}, nil, malformedBearer("unexpected bearer token prefix")
	}
	entityID, err := decodeEntityID(parts[1])
	if err != nil {
		return ScopedID{}, nil, malformedBearer("invalid bearer token identifier")
	}
	secret, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return ScopedID{}, nil, malformedBearer("invalid bearer token secret encoding")
	}
	if len(secret) != BearerSecretLength {
		return ScopedID{}, nil, malformedBearer("bearer token secret must decode to exactly 32 bytes")
	}
	return ScopedIDOf(tenantID, entityID), secret, nil
}

func malformedBearer(msg string) error {
	return dErrors.Wrap(sentinel.ErrInvalidInput, dErrors.CodeInvalidCredentials, msg)
}
