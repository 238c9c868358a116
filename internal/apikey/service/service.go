// Package service orchestrates API key lifecycle and authentication
// over the event store.
package service

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	apikeymetrics "keystone/internal/apikey/metrics"
	"keystone/internal/apikey/models"
	"keystone/internal/eventstore"
	"keystone/internal/platform/audit"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	es "keystone/pkg/eventsourcing"
	"keystone/pkg/requestcontext"
	"keystone/pkg/secrets"
	"keystone/pkg/validation"
)

type Repository interface {
	Load(ctx context.Context, streamKey string, opts ...eventstore.LoadOption) (*models.APIKey, error)
	Save(ctx context.Context, key *models.APIKey) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

// Service manages API keys and authenticates their bearer form.
type Service struct {
	repo           Repository
	registry       *secrets.Registry
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *apikeymetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m *apikeymetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(repo Repository, registry *secrets.Registry, opts ...Option) *Service {
	s := &Service{repo: repo, registry: registry}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest carries the parameters for minting a key.
type CreateRequest struct {
	TenantID   string            `validate:"omitempty,uuid"`
	Name       string            `validate:"required,notblank,max=128"`
	ExpiresOn  *time.Time        `validate:"-"`
	Roles      []string          `validate:"-"`
	Attributes map[string]string `validate:"-"`
}

// Create mints a key and returns its bearer form. The bearer value is
// the only copy of the secret; it cannot be recovered later.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.APIKey, string, error) {
	if err := validation.Validate(req); err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeValidation, "invalid API key request")
	}

	tenantID, err := optionalTenantID(req.TenantID)
	if err != nil {
		return nil, "", err
	}

	password, plain, err := s.registry.GenerateURLSafeBytes(id.BearerSecretLength)
	if err != nil {
		return nil, "", err
	}
	rawSecret, err := base64.RawURLEncoding.DecodeString(plain)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "could not decode generated secret")
	}

	keyID := id.NewScopedID(tenantID)
	bearer, err := models.NewXAPIKey(keyID, rawSecret)
	if err != nil {
		return nil, "", err
	}

	options := make([]models.Option, 0, 3)
	if req.ExpiresOn != nil {
		options = append(options, models.WithExpiry(*req.ExpiresOn))
	}
	if len(req.Roles) > 0 {
		roles := make([]id.ScopedID, 0, len(req.Roles))
		for _, roleKey := range req.Roles {
			role, err := id.ParseStreamKey(roleKey)
			if err != nil {
				return nil, "", err
			}
			roles = append(roles, role)
		}
		options = append(options, models.WithRoles(roles...))
	}
	if len(req.Attributes) > 0 {
		options = append(options, models.WithAttributes(req.Attributes))
	}

	key, err := models.New(keyID, password, req.Name, requestcontext.Actor(ctx), requestcontext.Now(ctx), options...)
	if err != nil {
		return nil, "", err
	}

	committed := key.Root().PendingEvents()
	if err := s.repo.Save(ctx, key); err != nil {
		return nil, "", err
	}
	s.emitCommitted(ctx, committed)
	s.incrementCreated()
	s.log(ctx, "API key created", "stream_key", key.ID, "name", key.Name)

	return key, bearer.Encode(), nil
}

// Authenticate resolves a bearer value to its key and verifies the
// secret. Success stamps the key's last-authenticated time.
func (s *Service) Authenticate(ctx context.Context, tenantID *id.TenantID, bearer string) (*models.APIKey, error) {
	start := time.Now()
	defer s.observeAuthenticate(start)

	parsed, err := models.ParseXAPIKey(tenantID, bearer)
	if err != nil {
		s.incrementAuthentication("malformed")
		return nil, err
	}

	key, err := s.repo.Load(ctx, parsed.ID.StreamKey())
	if err != nil {
		s.incrementAuthentication("not_found")
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeInvalidCredentials, "invalid API key")
		}
		return nil, err
	}

	presented := base64.RawURLEncoding.EncodeToString(parsed.Secret)
	if err := key.Authenticate(s.registry, presented, requestcontext.Actor(ctx), requestcontext.Now(ctx)); err != nil {
		s.incrementAuthentication("denied")
		return nil, err
	}

	committed := key.Root().PendingEvents()
	if err := s.repo.Save(ctx, key); err != nil {
		return nil, err
	}
	s.emitCommitted(ctx, committed)
	s.incrementAuthentication("success")

	return key, nil
}

// AddRole grants a role to the key.
func (s *Service) AddRole(ctx context.Context, streamKey, roleKey string) (*models.APIKey, error) {
	role, err := id.ParseStreamKey(roleKey)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, streamKey, func(key *models.APIKey, actorID string, now time.Time) error {
		return key.AddRole(role, actorID, now)
	})
}

// RemoveRole revokes a role from the key.
func (s *Service) RemoveRole(ctx context.Context, streamKey, roleKey string) (*models.APIKey, error) {
	role, err := id.ParseStreamKey(roleKey)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, streamKey, func(key *models.APIKey, actorID string, now time.Time) error {
		return key.RemoveRole(role, actorID, now)
	})
}

// SetExpiresOn shortens the key's lifetime.
func (s *Service) SetExpiresOn(ctx context.Context, streamKey string, expiresOn time.Time) (*models.APIKey, error) {
	return s.mutate(ctx, streamKey, func(key *models.APIKey, actorID string, now time.Time) error {
		return key.SetExpiresOn(expiresOn, actorID, now)
	})
}

// Rename changes the key's display name.
func (s *Service) Rename(ctx context.Context, streamKey, name string) (*models.APIKey, error) {
	return s.mutate(ctx, streamKey, func(key *models.APIKey, actorID string, now time.Time) error {
		return key.Rename(name, actorID, now)
	})
}

// SetAttribute upserts a custom attribute on the key.
func (s *Service) SetAttribute(ctx context.Context, streamKey, attrKey, attrValue string) (*models.APIKey, error) {
	return s.mutate(ctx, streamKey, func(key *models.APIKey, actorID string, now time.Time) error {
		return key.SetAttribute(attrKey, attrValue, actorID, now)
	})
}

// Delete revokes the key permanently.
func (s *Service) Delete(ctx context.Context, streamKey string) error {
	_, err := s.mutate(ctx, streamKey, func(key *models.APIKey, actorID string, now time.Time) error {
		return key.Delete(actorID, now)
	})
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil
	}
	return err
}

func (s *Service) mutate(ctx context.Context, streamKey string, fn func(key *models.APIKey, actorID string, now time.Time) error) (*models.APIKey, error) {
	key, err := s.repo.Load(ctx, streamKey)
	if err != nil {
		return nil, err
	}
	if err := fn(key, requestcontext.Actor(ctx), requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	committed := key.Root().PendingEvents()
	if err := s.repo.Save(ctx, key); err != nil {
		return nil, err
	}
	s.emitCommitted(ctx, committed)
	return key, nil
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

func (s *Service) incrementCreated() {
	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}
}

func (s *Service) incrementAuthentication(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementAuthentication(outcome)
	}
}

func (s *Service) observeAuthenticate(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveAuthenticate(start)
	}
}
