package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"keystone/internal/eventstore"
	"keystone/internal/otp/models"
	"keystone/internal/platform/audit"
	"keystone/internal/sentinel"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/requestcontext"
	"keystone/pkg/secrets"
)

type recordingPublisher struct {
	entries []audit.Entry
}

func (r *recordingPublisher) Emit(_ context.Context, entry audit.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

type ServiceSuite struct {
	suite.Suite
	store     *eventstore.InMemoryStore
	repo      *eventstore.Repository[*models.OneTimePassword]
	publisher *recordingPublisher
	service   *Service
	ctx       context.Context
	now       time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	registry, err := secrets.NewRegistry(secrets.PlainKey, secrets.NewPlainStrategy())
	s.Require().NoError(err)

	s.store = eventstore.NewInMemoryStore()
	s.repo = eventstore.NewRepository(s.store, models.DecodeEvent, models.Blank)
	s.publisher = &recordingPublisher{}
	s.service = New(s.repo, registry, WithAuditPublisher(s.publisher))

	s.now = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	s.ctx = requestcontext.WithNow(requestcontext.WithActor(context.Background(), "alice"), s.now)
}

func (s *ServiceSuite) TestCreateReturnsPlainCodeOnce() {
	otp, plain, err := s.service.Create(s.ctx, CreateRequest{})
	s.Require().NoError(err)
	s.Require().NotNil(otp)

	s.Len(plain, DefaultCodeLength)
	for _, r := range plain {
		s.True(r >= '0' && r <= '9', "code must be digits, got %q", plain)
	}
	s.True(strings.HasPrefix(otp.Secret, secrets.PlainKey+secrets.Separator))
	s.NotEqual(plain, otp.Secret)

	s.Require().NotNil(otp.ExpiresOn)
	s.Equal(s.now.Add(DefaultTTL), *otp.ExpiresOn)
	s.Empty(otp.Root().PendingEvents())
	s.Require().Len(s.publisher.entries, 1)
	s.Equal(otp.ID, s.publisher.entries[0].StreamKey)
}

func (s *ServiceSuite) TestCreateRejectsMalformedRequest() {
	_, _, err := s.service.Create(s.ctx, CreateRequest{TenantID: "not-a-uuid"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestValidateCorrectCode() {
	otp, plain, err := s.service.Create(s.ctx, CreateRequest{})
	s.Require().NoError(err)

	s.Require().NoError(s.service.Validate(s.ctx, otp.ID, plain))

	err = s.service.Validate(s.ctx, otp.ID, plain)
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
}

func (s *ServiceSuite) TestFailedAttemptIsPersisted() {
	otp, _, err := s.service.Create(s.ctx, CreateRequest{})
	s.Require().NoError(err)

	err = s.service.Validate(s.ctx, otp.ID, "wrong0")
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrIncorrectSecret)

	reloaded, err := s.repo.Load(s.ctx, otp.ID)
	s.Require().NoError(err)
	s.Equal(1, reloaded.AttemptCount)
}

func (s *ServiceSuite) TestAttemptBudgetSurvivesReloads() {
	otp, plain, err := s.service.Create(s.ctx, CreateRequest{})
	s.Require().NoError(err)

	for range DefaultMaximumAttempts {
		err := s.service.Validate(s.ctx, otp.ID, "wrong0")
		s.Require().ErrorIs(err, sentinel.ErrIncorrectSecret)
	}

	err = s.service.Validate(s.ctx, otp.ID, plain)
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrAttemptsExhausted)
}

func (s *ServiceSuite) TestValidateUnknownCode() {
	err := s.service.Validate(s.ctx, "missing-stream", "123456")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestExpiredCodeRejected() {
	otp, plain, err := s.service.Create(s.ctx, CreateRequest{})
	s.Require().NoError(err)

	later := requestcontext.WithNow(s.ctx, s.now.Add(DefaultTTL))
	err = s.service.Validate(later, otp.ID, plain)
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrExpired)
}

func (s *ServiceSuite) TestIssuancePolicyOverride() {
	registry, err := secrets.NewRegistry(secrets.PlainKey, secrets.NewPlainStrategy())
	s.Require().NoError(err)
	service := New(s.repo, registry, WithIssuancePolicy(8, time.Minute, 1))

	otp, plain, err := service.Create(s.ctx, CreateRequest{})
	s.Require().NoError(err)
	s.Len(plain, 8)
	s.Equal(s.now.Add(time.Minute), *otp.ExpiresOn)

	s.Require().ErrorIs(service.Validate(s.ctx, otp.ID, "wrong000"), sentinel.ErrIncorrectSecret)
	err = service.Validate(s.ctx, otp.ID, plain)
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrAttemptsExhausted)
}

func (s *ServiceSuite) TestDeleteRetiresCode() {
	otp, plain, err := s.service.Create(s.ctx, CreateRequest{})
	s.Require().NoError(err)

	s.Require().NoError(s.service.Delete(s.ctx, otp.ID))

	err = s.service.Validate(s.ctx, otp.ID, plain)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	s.NoError(s.service.Delete(s.ctx, otp.ID))
}
