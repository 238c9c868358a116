package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"math/big"

	dErrors "keystone/pkg/domain-errors"
)

// Well-known generation alphabets.
const (
	AlphabetDigits       = "0123456789"
	AlphabetAlphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Generate draws a fresh random value from the alphabet, hashes it with
// the default strategy, and returns both. The plain value is handed to
// the caller exactly once and never stored unencoded. Every call draws
// fresh entropy; nothing is shared between generations.
func (r *Registry) Generate(alphabet string, length int) (Password, string, error) {
	if len(alphabet) < 2 {
		return nil, "", dErrors.New(dErrors.CodeBadRequest, "generation alphabet needs at least 2 characters")
	}
	if length < 1 {
		return nil, "", dErrors.New(dErrors.CodeBadRequest, "generation length must be positive")
	}
	max := big.NewInt(int64(len(alphabet)))
	plain := make([]byte, length)
	for i := range plain {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "could not draw random value")
		}
		plain[i] = alphabet[idx.Int64()]
	}
	password, err := r.Hash(string(plain))
	if err != nil {
		return nil, "", err
	}
	return password, string(plain), nil
}

// GenerateURLSafeBytes draws length random bytes, base64-encodes them
// as the plain value, and hashes that value with the default strategy.
// Used for bearer secrets (API keys, refresh tokens).
func (r *Registry) GenerateURLSafeBytes(length int) (Password, string, error) {
	if length < 1 {
		return nil, "", dErrors.New(dErrors.CodeBadRequest, "generation length must be positive")
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate secret")
	}
	plain := base64.RawURLEncoding.EncodeToString(buf)
	password, err := r.Hash(plain)
	if err != nil {
		return nil, "", err
	}
	return password, plain, nil
}
