package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	dErrors "keystone/pkg/domain-errors"
)

// PBKDF2Key is the registry key of the PBKDF2 strategy.
const PBKDF2Key = "pbkdf2"

const (
	pbkdf2Algorithm  = "sha256"
	pbkdf2SaltLength = 16
	pbkdf2KeyLength  = 32
)

// DefaultPBKDF2Iterations follows the current OWASP recommendation for
// PBKDF2-HMAC-SHA256.
const DefaultPBKDF2Iterations = 600_000

// PBKDF2Strategy derives a salted key from the plain secret. Payload
// format: "<iterations>:<algorithm>:<base64 salt>:<base64 digest>".
type PBKDF2Strategy struct {
	iterations int
}

// NewPBKDF2Strategy builds the strategy; iterations <= 0 selects the
// default work factor.
func NewPBKDF2Strategy(iterations int) *PBKDF2Strategy {
	if iterations <= 0 {
		iterations = DefaultPBKDF2Iterations
	}
	return &PBKDF2Strategy{iterations: iterations}
}

func (s *PBKDF2Strategy) Key() string { return PBKDF2Key }

func (s *PBKDF2Strategy) Hash(plain string) (Password, error) {
	if plain == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "secret cannot be empty")
	}
	salt := make([]byte, pbkdf2SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate salt")
	}
	digest := pbkdf2.Key([]byte(plain), salt, s.iterations, pbkdf2KeyLength, sha256.New)
	return &pbkdf2Password{iterations: s.iterations, salt: salt, digest: digest}, nil
}

func (s *PBKDF2Strategy) Decode(payload string) (Password, error) {
	parts := strings.Split(payload, ":")
	if len(parts) != 4 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "malformed pbkdf2 payload")
	}
	iterations, err := strconv.Atoi(parts[0])
	if err != nil || iterations <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid pbkdf2 iteration count")
	}
	if parts[1] != pbkdf2Algorithm {
		return nil, dErrors.New(dErrors.CodeStrategyNotSupported, "unsupported pbkdf2 digest algorithm: "+parts[1])
	}
	salt, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid pbkdf2 salt encoding")
	}
	digest, err := base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid pbkdf2 digest encoding")
	}
	return &pbkdf2Password{iterations: iterations, salt: salt, digest: digest}, nil
}

type pbkdf2Password struct {
	iterations int
	salt       []byte
	digest     []byte
}

func (p *pbkdf2Password) StrategyKey() string { return PBKDF2Key }

func (p *pbkdf2Password) Encode() string {
	payload := fmt.Sprintf("%d:%s:%s:%s",
		p.iterations,
		pbkdf2Algorithm,
		base64.RawURLEncoding.EncodeToString(p.salt),
		base64.RawURLEncoding.EncodeToString(p.digest),
	)
	return encode(PBKDF2Key, payload)
}

func (p *pbkdf2Password) Matches(plain string) bool {
	candidate := pbkdf2.Key([]byte(plain), p.salt, p.iterations, len(p.digest), sha256.New)
	return subtle.ConstantTimeCompare(candidate, p.digest) == 1
}
