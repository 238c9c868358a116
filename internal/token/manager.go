package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"keystone/internal/sentinel"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/requestcontext"
)

//go:generate mockgen -source=blacklist.go -destination=mocks/blacklist_mock.go -package=mocks Blacklist

// DefaultTTL applies when Options names no lifetime.
const DefaultTTL = time.Hour

// Claims carries the subject claims of an issued token alongside the
// registered claim set.
type Claims struct {
	TenantID string            `json:"tenant_id,omitempty"`
	Roles    []string          `json:"roles,omitempty"`
	Custom   map[string]string `json:"custom,omitempty"`
	jwt.RegisteredClaims
}

// Options describes how a token is issued or what a validation must
// enforce. All fields have safe defaults.
type Options struct {
	Audience      string
	Issuer        string
	Type          string            // "typ" header, default "JWT"
	SigningMethod jwt.SigningMethod // default HS256

	// Issuance window overrides; zero values default to now / now+TTL.
	IssuedAt  *time.Time
	NotBefore *time.Time
	ExpiresAt *time.Time
	TTL       time.Duration

	// OneTimeUse mints a random token-id claim at creation.
	OneTimeUse bool
	// Consume blacklists the token-id after a successful validation,
	// with an expiry equal to the token's own, so the token can never
	// validate twice.
	Consume bool
}

func (o Options) withDefaults() Options {
	if o.Type == "" {
		o.Type = "JWT"
	}
	if o.SigningMethod == nil {
		o.SigningMethod = jwt.SigningMethodHS256
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	return o
}

// Manager issues and validates signed tokens. The manager is stateless;
// single-use semantics live entirely in the Blacklist collaborator.
type Manager struct {
	blacklist Blacklist
}

func NewManager(blacklist Blacklist) *Manager {
	return &Manager{blacklist: blacklist}
}

// Create builds a signed token. Issued-at and not-before default to the
// request time; expiration defaults to now+TTL. A random token-id claim
// is minted when one-time-use semantics are requested.
func (m *Manager) Create(ctx context.Context, claims Claims, secret []byte, opts Options) (string, error) {
	opts = opts.withDefaults()
	now := requestcontext.Now(ctx)

	if claims.IssuedAt == nil {
		at := now
		if opts.IssuedAt != nil {
			at = *opts.IssuedAt
		}
		claims.IssuedAt = jwt.NewNumericDate(at)
	}
	if claims.NotBefore == nil {
		at := now
		if opts.NotBefore != nil {
			at = *opts.NotBefore
		}
		claims.NotBefore = jwt.NewNumericDate(at)
	}
	if claims.ExpiresAt == nil {
		at := now.Add(opts.TTL)
		if opts.ExpiresAt != nil {
			at = *opts.ExpiresAt
		}
		claims.ExpiresAt = jwt.NewNumericDate(at)
	}
	if opts.Audience != "" && len(claims.Audience) == 0 {
		claims.Audience = jwt.ClaimStrings{opts.Audience}
	}
	if opts.Issuer != "" && claims.Issuer == "" {
		claims.Issuer = opts.Issuer
	}
	if opts.OneTimeUse && claims.ID == "" {
		jti, err := newTokenID()
		if err != nil {
			return "", err
		}
		claims.ID = jti
	}

	newToken := jwt.NewWithClaims(opts.SigningMethod, claims)
	newToken.Header["typ"] = opts.Type
	signed, err := newToken.SignedString(secret)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not sign token")
	}
	return signed, nil
}

// Validate verifies signature, lifetime and the audience/issuer/type
// constraints in opts. A token carrying a token-id claim is checked
// against the blacklist; with Consume set, acceptance also blacklists
// the id for the token's own lifetime, so a second validation of the
// same token fails even though JWTs are stateless.
func (m *Manager) Validate(ctx context.Context, tokenString string, secret []byte, opts Options) (*Claims, error) {
	opts = opts.withDefaults()
	if tokenString == "" {
		return nil, invalidToken("empty token")
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{opts.SigningMethod.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return requestcontext.Now(ctx) }),
	}
	if opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(opts.Audience))
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}

	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.Wrap(sentinel.ErrExpired, dErrors.CodeInvalidCredentials, "token expired")
		}
		return nil, invalidToken("invalid token")
	}
	if !parsed.Valid {
		return nil, invalidToken("invalid token")
	}
	if typ, _ := parsed.Header["typ"].(string); typ != opts.Type {
		return nil, invalidToken("unexpected token type")
	}

	if claims.ID == "" {
		if opts.Consume {
			return nil, invalidToken("token carries no token ID to consume")
		}
		return claims, nil
	}

	hits, err := m.blacklist.IsBlacklisted(ctx, []string{claims.ID})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not check token blacklist")
	}
	if len(hits) > 0 {
		return nil, dErrors.Wrap(sentinel.ErrBlacklisted, dErrors.CodeInvalidCredentials, "token has been consumed")
	}
	if opts.Consume {
		expiresOn := requestcontext.Now(ctx).Add(opts.TTL)
		if claims.ExpiresAt != nil {
			expiresOn = claims.ExpiresAt.Time
		}
		if err := m.blacklist.Blacklist(ctx, []string{claims.ID}, expiresOn); err != nil {
			// A lost race with a concurrent consumer means the token was
			// already used; report it exactly like a blacklist hit.
			if errors.Is(err, sentinel.ErrBlacklisted) {
				return nil, dErrors.Wrap(sentinel.ErrBlacklisted, dErrors.CodeInvalidCredentials, "token has been consumed")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not consume token")
		}
	}
	return claims, nil
}

func newTokenID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate token ID")
	}
	return hex.EncodeToString(buf), nil
}

func invalidToken(msg string) error {
	return dErrors.Wrap(sentinel.ErrInvalidInput, dErrors.CodeInvalidCredentials, msg)
}
