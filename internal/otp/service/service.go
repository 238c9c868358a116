// Package service orchestrates one-time password issuance and
// validation over the event store.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"keystone/internal/eventstore"
	otpmetrics "keystone/internal/otp/metrics"
	"keystone/internal/otp/models"
	"keystone/internal/platform/audit"
	"keystone/internal/sentinel"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	es "keystone/pkg/eventsourcing"
	"keystone/pkg/requestcontext"
	"keystone/pkg/secrets"
	"keystone/pkg/validation"
)

// Issuance defaults, overridable per service instance.
const (
	DefaultCodeLength      = 6
	DefaultTTL             = 5 * time.Minute
	DefaultMaximumAttempts = 3
)

type Repository interface {
	Load(ctx context.Context, streamKey string, opts ...eventstore.LoadOption) (*models.OneTimePassword, error)
	Save(ctx context.Context, otp *models.OneTimePassword) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

// Service issues and validates one-time passwords.
type Service struct {
	repo            Repository
	registry        *secrets.Registry
	logger          *slog.Logger
	auditPublisher  AuditPublisher
	metrics         *otpmetrics.Metrics
	codeLength      int
	ttl             time.Duration
	maximumAttempts int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m *otpmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithIssuancePolicy overrides the default code length, lifetime, and
// attempt budget for newly issued codes.
func WithIssuancePolicy(codeLength int, ttl time.Duration, maximumAttempts int) Option {
	return func(s *Service) {
		s.codeLength = codeLength
		s.ttl = ttl
		s.maximumAttempts = maximumAttempts
	}
}

func New(repo Repository, registry *secrets.Registry, opts ...Option) *Service {
	s := &Service{
		repo:            repo,
		registry:        registry,
		codeLength:      DefaultCodeLength,
		ttl:             DefaultTTL,
		maximumAttempts: DefaultMaximumAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest carries the parameters for issuing a code.
type CreateRequest struct {
	TenantID   string            `validate:"omitempty,uuid"`
	UserID     string            `validate:"omitempty,uuid"`
	Attributes map[string]string `validate:"-"`
}

// Create issues a fresh code. The plain code is returned exactly once;
// only its hash is stored.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.OneTimePassword, string, error) {
	if err := validation.Validate(req); err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeValidation, "invalid one-time password request")
	}

	tenantID, err := optionalTenantID(req.TenantID)
	if err != nil {
		return nil, "", err
	}

	password, plain, err := s.registry.Generate(secrets.AlphabetDigits, s.codeLength)
	if err != nil {
		return nil, "", err
	}

	now := requestcontext.Now(ctx)
	options := []models.Option{
		models.WithExpiry(now.Add(s.ttl)),
		models.WithMaximumAttempts(s.maximumAttempts),
	}
	if req.UserID != "" {
		userID, err := id.ParseUserID(req.UserID)
		if err != nil {
			return nil, "", err
		}
		options = append(options, models.WithUserID(userID))
	}
	if len(req.Attributes) > 0 {
		options = append(options, models.WithAttributes(req.Attributes))
	}

	otp, err := models.New(id.NewScopedID(tenantID), password, requestcontext.Actor(ctx), now, options...)
	if err != nil {
		return nil, "", err
	}

	committed := otp.Root().PendingEvents()
	if err := s.repo.Save(ctx, otp); err != nil {
		return nil, "", err
	}
	s.emitCommitted(ctx, committed)
	s.incrementIssued()
	s.log(ctx, "one-time password issued", "stream_key", otp.ID, "expires_on", otp.ExpiresOn)

	return otp, plain, nil
}

// Validate runs one validation attempt against the stored code. A wrong
// guess is persisted before the failure is reported, so the consumed
// attempt survives the request.
func (s *Service) Validate(ctx context.Context, streamKey, code string) error {
	start := time.Now()
	defer s.observeValidation(start)

	otp, err := s.repo.Load(ctx, streamKey)
	if err != nil {
		s.incrementValidation("not_found")
		return err
	}

	validationErr := otp.Validate(s.registry, code, requestcontext.Actor(ctx), requestcontext.Now(ctx))

	if pending := otp.Root().PendingEvents(); len(pending) > 0 {
		committed := pending
		if err := s.repo.Save(ctx, otp); err != nil {
			return err
		}
		s.emitCommitted(ctx, committed)
	}

	s.incrementValidation(outcomeLabel(validationErr))
	if validationErr != nil {
		s.log(ctx, "one-time password validation failed", "stream_key", streamKey, "outcome", outcomeLabel(validationErr))
		return validationErr
	}

	s.log(ctx, "one-time password validated", "stream_key", streamKey)
	return nil
}

// Delete retires a code before its natural expiry.
func (s *Service) Delete(ctx context.Context, streamKey string) error {
	otp, err := s.repo.Load(ctx, streamKey)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil
		}
		return err
	}
	if err := otp.Delete(requestcontext.Actor(ctx), requestcontext.Now(ctx)); err != nil {
		return err
	}
	committed := otp.Root().PendingEvents()
	if err := s.repo.Save(ctx, otp); err != nil {
		return err
	}
	s.emitCommitted(ctx, committed)
	return nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return "already_used"
	case errors.Is(err, sentinel.ErrExpired):
		return "expired"
	case errors.Is(err, sentinel.ErrAttemptsExhausted):
		return "exhausted"
	case errors.Is(err, sentinel.ErrIncorrectSecret):
		return "incorrect"
	default:
		return "error"
	}
}

func optionalTenantID(raw string) (*id.TenantID, error) {
	if raw == "" {
		return nil, nil
	}
	tenantID, err := id.ParseTenantID(raw)
	if err != nil {
		return nil, err
	}
	return &tenantID, nil
}

func (s *Service) emitCommitted(ctx context.Context, envelopes []es.Envelope) {
	if s.auditPublisher == nil {
		return
	}
	for _, env := range envelopes {
		_ = s.auditPublisher.Emit(ctx, audit.Entry{
			StreamKey:  env.StreamKey,
			EventType:  env.Type,
			Version:    env.Version,
			ActorID:    env.ActorID,
			OccurredOn: env.OccurredOn,
		})
	}
}

func (s *Service) log(ctx context.Context, msg string, attributes ...any) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, msg, attributes...)
	}
}

func (s *Service) incrementIssued() {
	if s.metrics != nil {
		s.metrics.IncrementIssued()
	}
}

func (s *Service) incrementValidation(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementValidation(outcome)
	}
}

func (s *Service) observeValidation(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveValidation(start)
	}
}
