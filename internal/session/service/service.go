// Package service orchestrates session sign-in, refresh token
// rotation, and sign-out over the event store.
package service

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"keystone/internal/eventstore"
	"keystone/internal/platform/audit"
	"keystone/internal/session/device"
	sessionmetrics "keystone/internal/session/metrics"
	"keystone/internal/session/models"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	es "keystone/pkg/eventsourcing"
	"keystone/pkg/requestcontext"
	"keystone/pkg/secrets"
	"keystone/pkg/validation"
)

type Repository interface {
	Load(ctx context.Context, streamKey string, opts ...eventstore.LoadOption) (*models.Session, error)
	Save(ctx context.Context, session *models.Session) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

// Service manages the session lifecycle.
type Service struct {
	repo           Repository
	registry       *secrets.Registry
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *sessionmetrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m *sessionmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(repo Repository, registry *secrets.Registry, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		registry: registry,
		tracer:   otel.Tracer("keystone/session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignInRequest carries the parameters for starting a session.
type SignInRequest struct {
	TenantID   string            `validate:"omitempty,uuid"`
	UserID     string            `validate:"required,uuid"`
	Persistent bool              `validate:"-"`
	UserAgent  string            `validate:"-"`
	Attributes map[string]string `validate:"-"`
}

// SignIn starts a session. For persistent sessions the returned refresh
// token is the only copy of the secret; it cannot be recovered later.
// Non-persistent sessions return an empty token.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*models.Session, string, error) {
	ctx, span := s.tracer.Start(ctx, "session.sign_in",
		trace.WithAttributes(attribute.Bool("session.persistent", req.Persistent)))
	defer span.End()

	if err := validation.Validate(req); err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeValidation, "invalid sign-in request")
	}

	tenantID, err := optionalTenantID(req.TenantID)
	if err != nil {
		return nil, "", err
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		return nil, "", err
	}

	sessionID := id.NewScopedID(tenantID)
	options := make([]models.Option, 0, 3)
	if len(req.Attributes) > 0 {
		options = append(options, models.WithAttributes(req.Attributes))
	}
	if req.UserAgent != "" {
		options = append(options, models.WithDeviceName(device.DisplayName(req.UserAgent)))
	}

	var refreshToken string
	if req.Persistent {
		password, token, err := s.mintRefreshToken(sessionID)
		if err != nil {
			return nil, "", err
		}
		options = append(options, models.WithSecret(password))
		refreshToken = token
	}

	session, err := models.New(sessionID, userID, requestcontext.Actor(ctx), requestcontext.Now(ctx), options...)
	if err != nil {
		return nil, "", err
	}

	committed := session.Root().PendingEvents()
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, "", err
	}
	s.emitCommitted(ctx, committed)
	s.incrementSignIn(req.Persistent)
	s.log(ctx, "session started", "stream_key", session.ID, "user_id", session.UserID, "persistent", req.Persistent)

	return session, refreshToken, nil
}

// Renew rotates the refresh token. The presented token is consumed
// whether or not rotation succeeds; on success the returned token is
// the only valid one from that point on.
func (s *Service) Renew(ctx context.Context, tenantID *id.TenantID, presented string) (*models.Session, string, error) {
	ctx, span := s.tracer.Start(ctx, "session.renew")
	defer span.End()

	start := time.Now()
	defer s.observeRenew(start)

	token, err := models.ParseRefreshToken(tenantID, presented)
	if err != nil {
		s.incrementRenewal("malformed")
		return nil, "", err
	}

	session, err := s.repo.Load(ctx, token.ID.StreamKey())
	if err != nil {
		s.incrementRenewal("not_found")
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, "", dErrors.New(dErrors.CodeInvalidCredentials, "invalid refresh token")
		}
		return nil, "", err
	}

	newPassword, newToken, err := s.mintRefreshToken(session.SessionID)
	if err != nil {
		return nil, "", err
	}

	presentedSecret := base64.RawURLEncoding.EncodeToString(token.Secret)
	if err := session.Renew(s.registry, presentedSecret, newPassword, requestcontext.Actor(ctx), requestcontext.Now(ctx)); err != nil {
		s.incrementRenewal("denied")
		return nil, "", err
	}

	committed := session.Root().PendingEvents()
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, "", err
	}
	s.emitCommitted(ctx, committed)
	s.incrementRenewal("success")
	s.log(ctx, "session renewed", "stream_key", session.ID)

	return session, newToken, nil
}

// SignOut deactivates the session. Signing out an unknown session is
// not an error.
func (s *Service) SignOut(ctx context.Context, streamKey string) error {
	session, err := s.repo.Load(ctx, streamKey)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil
		}
		return err
	}
	if err := session.SignOut(requestcontext.Actor(ctx), requestcontext.Now(ctx)); err != nil {
		return err
	}
	committed := session.Root().PendingEvents()
	if err := s.repo.Save(ctx, session); err != nil {
		return err
	}
	s.emitCommitted(ctx, committed)
	s.incrementSignOut()
	s.log(ctx, "session signed out", "stream_key", streamKey)
	return nil
}

// Delete removes the session record entirely.
func (s *Service) Delete(ctx context.Context, streamKey string) error {
	session, err := s.repo.Load(ctx, streamKey)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil
		}
		return err
	}
	if err := session.Delete(requestcontext.Actor(ctx), requestcontext.Now(ctx)); err != nil {
		return err
	}
	committed := session.Root().PendingEvents()
	if err := s.repo.Save(ctx, session); err != nil {
		return err
	}
	s.emitCommitted(ctx, committed)
	return nil
}

// mintRefreshToken draws a fresh secret, returning both the hash for
// storage and the encoded bearer form for the caller.
func (s *Service) mintRefreshToken(sessionID id.ScopedID) (secrets.Password, string, error) {
	password, plain, err := s.registry.GenerateURLSafeBytes(id.BearerSecretLength)
	if err != nil {
		return nil, "", err
	}
	rawSecret, err := base64.RawURLEncoding.DecodeString(plain)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "could not decode generated secret")
	}
	token, err := models.NewRefreshToken(sessionID, rawSecret)
	if err != nil {
		return nil, "", err
	}
	return password, token.Encode(), nil
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

func (s *Service) incrementSignIn(persistent bool) {
	if s.metrics != nil {
		s.metrics.IncrementSignIn(persistent)
	}
}

func (s *Service) incrementRenewal(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementRenewal(outcome)
	}
}

func (s *Service) incrementSignOut() {
	if s.metrics != nil {
		s.metrics.IncrementSignOut()
	}
}

func (s *Service) observeRenew(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveRenew(start)
	}
}
