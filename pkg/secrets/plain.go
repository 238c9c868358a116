package secrets

import (
	"crypto/subtle"
	"encoding/base64"

	dErrors "keystone/pkg/domain-errors"
)

// PlainKey is the registry key of the reversible test strategy.
const PlainKey = "plain"

// PlainStrategy keeps the raw secret base64-encoded in the payload. It
// exists for test fixtures and local development only; never register
// it as the default strategy in production configuration.
type PlainStrategy struct{}

func NewPlainStrategy() *PlainStrategy { return &PlainStrategy{} }

func (s *PlainStrategy) Key() string { return PlainKey }

func (s *PlainStrategy) Hash(plain string) (Password, error) {
	if plain == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "secret cannot be empty")
	}
	return &plainPassword{raw: []byte(plain)}, nil
}

func (s *PlainStrategy) Decode(payload string) (Password, error) {
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "malformed plain payload")
	}
	return &plainPassword{raw: raw}, nil
}

type plainPassword struct {
	raw []byte
}

func (p *plainPassword) StrategyKey() string { return PlainKey }

func (p *plainPassword) Encode() string {
	return encode(PlainKey, base64.RawURLEncoding.EncodeToString(p.raw))
}

func (p *plainPassword) Matches(plain string) bool {
	return subtle.ConstantTimeCompare(p.raw, []byte(plain)) == 1
}
