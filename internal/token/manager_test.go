package token

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"keystone/internal/sentinel"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/requestcontext"
)

type ManagerSuite struct {
	suite.Suite
	manager *Manager
	secret  []byte
	ctx     context.Context
	now     time.Time
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.manager = NewManager(NewInMemoryBlacklist())
	s.secret = []byte("0123456789abcdef0123456789abcdef")
	s.now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithNow(context.Background(), s.now)
}

func (s *ManagerSuite) TestCreateAndValidate() {
	claims := Claims{Roles: []string{"admin"}}
	claims.Subject = "user-1"

	signed, err := s.manager.Create(s.ctx, claims, s.secret, Options{Issuer: "keystone"})
	s.Require().NoError(err)

	parsed, err := s.manager.Validate(s.ctx, signed, s.secret, Options{Issuer: "keystone"})
	s.Require().NoError(err)
	s.Equal("user-1", parsed.Subject)
	s.Equal([]string{"admin"}, parsed.Roles)
	s.True(parsed.ExpiresAt.Equal(s.now.Add(DefaultTTL)))
}

func (s *ManagerSuite) TestWrongSecretRejected() {
	signed, err := s.manager.Create(s.ctx, Claims{}, s.secret, Options{})
	s.Require().NoError(err)

	_, err = s.manager.Validate(s.ctx, signed, []byte("another-secret-another-secret!!!"), Options{})
	s.Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
}

func (s *ManagerSuite) TestExpiredTokenRejected() {
	signed, err := s.manager.Create(s.ctx, Claims{}, s.secret, Options{TTL: time.Minute})
	s.Require().NoError(err)

	later := requestcontext.WithNow(context.Background(), s.now.Add(2*time.Minute))
	_, err = s.manager.Validate(later, signed, s.secret, Options{})
	s.ErrorIs(err, sentinel.ErrExpired)
}

func (s *ManagerSuite) TestIssuerMismatchRejected() {
	signed, err := s.manager.Create(s.ctx, Claims{}, s.secret, Options{Issuer: "keystone"})
	s.Require().NoError(err)

	_, err = s.manager.Validate(s.ctx, signed, s.secret, Options{Issuer: "someone-else"})
	s.Error(err)
}

func (s *ManagerSuite) TestTypeMismatchRejected() {
	signed, err := s.manager.Create(s.ctx, Claims{}, s.secret, Options{Type: "REFRESH"})
	s.Require().NoError(err)

	_, err = s.manager.Validate(s.ctx, signed, s.secret, Options{})
	s.Error(err)

	_, err = s.manager.Validate(s.ctx, signed, s.secret, Options{Type: "REFRESH"})
	s.NoError(err)
}

func (s *ManagerSuite) TestOneTimeUse() {
	signed, err := s.manager.Create(s.ctx, Claims{}, s.secret, Options{OneTimeUse: true})
	s.Require().NoError(err)

	// First validation consumes the token.
	claims, err := s.manager.Validate(s.ctx, signed, s.secret, Options{Consume: true})
	s.Require().NoError(err)
	s.NotEmpty(claims.ID)

	// Second validation finds the token ID blacklisted.
	_, err = s.manager.Validate(s.ctx, signed, s.secret, Options{Consume: true})
	s.ErrorIs(err, sentinel.ErrBlacklisted)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
}

func (s *ManagerSuite) TestConsumeRequiresTokenID() {
	signed, err := s.manager.Create(s.ctx, Claims{}, s.secret, Options{})
	s.Require().NoError(err)

	_, err = s.manager.Validate(s.ctx, signed, s.secret, Options{Consume: true})
	s.Error(err)
}

func (s *ManagerSuite) TestHMACSigningMethodEnforced() {
	// Tokens signed with "none" must never pass.
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{})
	unsigned.Header["typ"] = "JWT"
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	s.Require().NoError(err)

	_, err = s.manager.Validate(s.ctx, raw, s.secret, Options{})
	s.Error(err)
}
