// Package tenantcrypt encrypts symmetric secrets per tenant. Each
// tenant gets its own AES key derived from a single master key, so a
// leaked per-tenant ciphertext plus key compromises one tenant only,
// and token signing keys can be derived without storing them.
package tenantcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/hkdf"

	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
)

const keyLength = 32

// Encryptor derives per-tenant AES-256-GCM keys from a master key.
type Encryptor struct {
	master []byte
}

// New builds an Encryptor from a 32-byte master key.
func New(masterKey []byte) (*Encryptor, error) {
	if len(masterKey) != keyLength {
		return nil, dErrors.New(dErrors.CodeBadRequest, "master key must be exactly 32 bytes")
	}
	master := make([]byte, keyLength)
	copy(master, masterKey)
	return &Encryptor{master: master}, nil
}

// DeriveKey returns the tenant's symmetric key. A nil tenant yields the
// global-scope key. Derivation is deterministic, so signing keys never
// need to be stored.
func (e *Encryptor) DeriveKey(tenantID *id.TenantID) ([]byte, error) {
	salt := []byte("global")
	if tenantID != nil {
		salt = []byte(tenantID.String())
	}
	key := make([]byte, keyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, e.master, salt, []byte("keystone/tenant-secret")), key); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not derive tenant key")
	}
	return key, nil
}

// Encrypt seals plaintext under the tenant's key and returns
// base64(nonce || ciphertext).
func (e *Encryptor) Encrypt(tenantID *id.TenantID, plaintext []byte) (string, error) {
	aead, err := e.aead(tenantID)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate nonce")
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value sealed by Encrypt for the same tenant. A value
// sealed for another tenant fails authentication.
func (e *Encryptor) Decrypt(tenantID *id.TenantID, encoded string) ([]byte, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "malformed encrypted secret")
	}
	aead, err := e.aead(tenantID)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "encrypted secret too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "could not decrypt secret for tenant")
	}
	return plaintext, nil
}

func (e *Encryptor) aead(tenantID *id.TenantID) (cipher.AEAD, error) {
	key, err := e.DeriveKey(tenantID)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not build cipher")
	}
	return cipher.NewGCM(block)
}
