package token

import (
	"context"
	"time"

	id "keystone/pkg/domain"
)

// KeySource derives the signing key for a tenant scope. The encryption
// layer implements it so every tenant signs with its own key and a
// token from one tenant can never validate under another.
type KeySource interface {
	DeriveKey(tenantID *id.TenantID) ([]byte, error)
}

// Issuer binds the manager to a key source and fixed issuance policy.
type Issuer struct {
	manager *Manager
	keys    KeySource
	issuer  string
	ttl     time.Duration
}

func NewIssuer(manager *Manager, keys KeySource, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{manager: manager, keys: keys, issuer: issuer, ttl: ttl}
}

// Issue signs a token for subject in the given tenant scope.
func (i *Issuer) Issue(ctx context.Context, tenantID *id.TenantID, subject string, roles []string, oneTimeUse bool) (string, error) {
	secret, err := i.keys.DeriveKey(tenantID)
	if err != nil {
		return "", err
	}
	claims := Claims{Roles: roles}
	claims.Subject = subject
	if tenantID != nil {
		claims.TenantID = tenantID.String()
	}
	return i.manager.Create(ctx, claims, secret, Options{
		Issuer:     i.issuer,
		TTL:        i.ttl,
		OneTimeUse: oneTimeUse,
	})
}

// Check validates a token within the given tenant scope. When consume
// is set a one-time-use token is spent by this call.
func (i *Issuer) Check(ctx context.Context, tenantID *id.TenantID, tokenString string, consume bool) (*Claims, error) {
	secret, err := i.keys.DeriveKey(tenantID)
	if err != nil {
		return nil, err
	}
	return i.manager.Validate(ctx, tokenString, secret, Options{
		Issuer:  i.issuer,
		Consume: consume,
	})
}
