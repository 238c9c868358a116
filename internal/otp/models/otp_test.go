package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"keystone/internal/sentinel"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/secrets"
)

type OTPSuite struct {
	suite.Suite
	registry *secrets.Registry
	now      time.Time
	tenantID id.TenantID
}

func TestOTPSuite(t *testing.T) {
	suite.Run(t, new(OTPSuite))
}

func (s *OTPSuite) SetupTest() {
	registry, err := secrets.NewRegistry(secrets.PlainKey, secrets.NewPlainStrategy())
	s.Require().NoError(err)
	s.registry = registry
	s.now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.tenantID = id.TenantID(uuid.New())
}

func (s *OTPSuite) create(code string, opts ...Option) *OneTimePassword {
	password, err := s.registry.Hash(code)
	s.Require().NoError(err)
	otp, err := New(id.NewScopedID(&s.tenantID), password, "issuer", s.now, opts...)
	s.Require().NoError(err)
	return otp
}

func (s *OTPSuite) TestAttemptBudget() {
	otp := s.create("123456", WithMaximumAttempts(3))

	wrongGuesses := []string{"000000", "111111", "222222"}
	for i, guess := range wrongGuesses {
		err := otp.Validate(s.registry, guess, "user", s.now)
		s.Require().ErrorIs(err, sentinel.ErrIncorrectSecret)
		s.Equal(i+1, otp.AttemptCount)
	}

	// The budget is spent: even the correct code is rejected without
	// consuming another attempt.
	err := otp.Validate(s.registry, "123456", "user", s.now)
	s.Require().ErrorIs(err, sentinel.ErrAttemptsExhausted)
	s.Equal(3, otp.AttemptCount)
	s.False(otp.Succeeded)
}

func (s *OTPSuite) TestTerminalSuccess() {
	otp := s.create("424242")

	s.Require().NoError(otp.Validate(s.registry, "424242", "user", s.now))
	s.True(otp.Succeeded)
	s.Equal(1, otp.AttemptCount)

	for _, guess := range []string{"424242", "999999"} {
		err := otp.Validate(s.registry, guess, "user", s.now)
		s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
		s.Equal(1, otp.AttemptCount)
	}
}

func (s *OTPSuite) TestExpiryPrecedesExhaustion() {
	otp := s.create("123456",
		WithExpiry(s.now.Add(time.Minute)),
		WithMaximumAttempts(3),
	)

	s.Require().ErrorIs(otp.Validate(s.registry, "000000", "user", s.now), sentinel.ErrIncorrectSecret)
	s.Require().ErrorIs(otp.Validate(s.registry, "111111", "user", s.now), sentinel.ErrIncorrectSecret)
	s.Equal(2, otp.AttemptCount)

	// Past expiry the failure is Expired, not AttemptsExhausted, and no
	// attempt is consumed.
	err := otp.Validate(s.registry, "123456", "user", s.now.Add(2*time.Minute))
	s.Require().ErrorIs(err, sentinel.ErrExpired)
	s.Equal(2, otp.AttemptCount)
}

func (s *OTPSuite) TestExpiryBoundaryIsInclusive() {
	expiry := s.now.Add(time.Minute)
	otp := s.create("123456", WithExpiry(expiry))

	err := otp.Validate(s.registry, "123456", "user", expiry)
	s.ErrorIs(err, sentinel.ErrExpired)
}

func (s *OTPSuite) TestValidationErrorsMapToInvalidCredentials() {
	otp := s.create("123456", WithMaximumAttempts(1))

	err := otp.Validate(s.registry, "000000", "user", s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))

	err = otp.Validate(s.registry, "123456", "user", s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
}

func (s *OTPSuite) TestCreationGuards() {
	password, err := s.registry.Hash("123456")
	s.Require().NoError(err)

	_, err = New(id.NewScopedID(nil), password, "issuer", s.now, WithMaximumAttempts(0))
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = New(id.NewScopedID(nil), password, "issuer", s.now, WithExpiry(s.now.Add(-time.Second)))
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *OTPSuite) TestDeleteBlocksValidation() {
	otp := s.create("123456")
	s.Require().NoError(otp.Delete("admin", s.now))
	s.True(otp.Root().Deleted)

	err := otp.Validate(s.registry, "123456", "user", s.now)
	s.ErrorIs(err, sentinel.ErrDeleted)

	// Idempotent: deleting again raises nothing.
	before := len(otp.Root().PendingEvents())
	s.Require().NoError(otp.Delete("admin", s.now))
	s.Len(otp.Root().PendingEvents(), before)
}

func (s *OTPSuite) TestReplayRebuildsState() {
	otp := s.create("123456", WithMaximumAttempts(3), WithAttributes(map[string]string{"channel": "sms"}))
	s.Require().ErrorIs(otp.Validate(s.registry, "000000", "user", s.now), sentinel.ErrIncorrectSecret)
	s.Require().NoError(otp.Validate(s.registry, "123456", "user", s.now))

	rebuilt := Blank()
	s.Require().NoError(replayHistory(s.T(), rebuilt, otp))

	s.Equal(otp.AttemptCount, rebuilt.AttemptCount)
	s.True(rebuilt.Succeeded)
	s.Equal(otp.Secret, rebuilt.Secret)
	s.Equal("sms", rebuilt.Attributes["channel"])
	s.Equal(otp.OTPID.StreamKey(), rebuilt.OTPID.StreamKey())
}
