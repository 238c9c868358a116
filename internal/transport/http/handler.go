package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apikeymodels "keystone/internal/apikey/models"
	apikeyservice "keystone/internal/apikey/service"
	otpmodels "keystone/internal/otp/models"
	otpservice "keystone/internal/otp/service"
	sessionmodels "keystone/internal/session/models"
	sessionservice "keystone/internal/session/service"
	"keystone/internal/token"
	id "keystone/pkg/domain"
	"keystone/pkg/httputil"
	"keystone/pkg/requestcontext"
)

// OTPService defines the one-time password operations used by the
// transport layer. Returns domain objects, not HTTP response DTOs.
type OTPService interface {
	Create(ctx context.Context, req otpservice.CreateRequest) (*otpmodels.OneTimePassword, string, error)
	Validate(ctx context.Context, streamKey, code string) error
	Delete(ctx context.Context, streamKey string) error
}

type APIKeyService interface {
	Create(ctx context.Context, req apikeyservice.CreateRequest) (*apikeymodels.APIKey, string, error)
	Authenticate(ctx context.Context, tenantID *id.TenantID, bearer string) (*apikeymodels.APIKey, error)
	AddRole(ctx context.Context, streamKey, roleKey string) (*apikeymodels.APIKey, error)
	RemoveRole(ctx context.Context, streamKey, roleKey string) (*apikeymodels.APIKey, error)
	SetExpiresOn(ctx context.Context, streamKey string, expiresOn time.Time) (*apikeymodels.APIKey, error)
	Rename(ctx context.Context, streamKey, name string) (*apikeymodels.APIKey, error)
	Delete(ctx context.Context, streamKey string) error
}

type SessionService interface {
	SignIn(ctx context.Context, req sessionservice.SignInRequest) (*sessionmodels.Session, string, error)
	Renew(ctx context.Context, tenantID *id.TenantID, presented string) (*sessionmodels.Session, string, error)
	SignOut(ctx context.Context, streamKey string) error
}

type PasswordService interface {
	Hash(ctx context.Context, plain string) (string, error)
	Verify(ctx context.Context, encoded, plain string) (bool, error)
}

type TokenIssuer interface {
	Issue(ctx context.Context, tenantID *id.TenantID, subject string, roles []string, oneTimeUse bool) (string, error)
	Check(ctx context.Context, tenantID *id.TenantID, tokenString string, consume bool) (*token.Claims, error)
}

// Handler is the thin HTTP layer. It delegates to domain services
// without embedding business logic.
type Handler struct {
	otp       OTPService
	apiKeys   APIKeyService
	sessions  SessionService
	tokens    TokenIssuer
	passwords PasswordService
	logger    *slog.Logger
}

func NewHandler(otp OTPService, apiKeys APIKeyService, sessions SessionService, tokens TokenIssuer, passwords PasswordService, logger *slog.Logger) *Handler {
	return &Handler{otp: otp, apiKeys: apiKeys, sessions: sessions, tokens: tokens, passwords: passwords, logger: logger}
}

func tenantScope(ctx context.Context) *id.TenantID {
	if tenantID, ok := requestcontext.Tenant(ctx); ok {
		return &tenantID
	}
	return nil
}

func scopeString(tenantID *id.TenantID) string {
	if tenantID == nil {
		return ""
	}
	return tenantID.String()
}

// --- one-time passwords ---

type createOTPRequest struct {
	UserID     string            `json:"user_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type createOTPResponse struct {
	Key       string     `json:"key"`
	Code      string     `json:"code"`
	ExpiresOn *time.Time `json:"expires_on,omitempty"`
}

func (h *Handler) handleCreateOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[createOTPRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	otp, code, err := h.otp.Create(ctx, otpservice.CreateRequest{
		TenantID:   scopeString(tenantScope(ctx)),
		UserID:     req.UserID,
		Attributes: req.Attributes,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "create one-time password failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, &createOTPResponse{
		Key:       otp.ID,
		Code:      code,
		ExpiresOn: otp.ExpiresOn,
	})
}

type validateOTPRequest struct {
	Code string `json:"code"`
}

func (h *Handler) handleValidateOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	key := chi.URLParam(r, "key")

	req, ok := httputil.DecodeJSON[validateOTPRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.otp.Validate(ctx, key, req.Code); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "validated"})
}

func (h *Handler) handleDeleteOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.otp.Delete(ctx, chi.URLParam(r, "key")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- API keys ---

type createAPIKeyRequest struct {
	Name       string            `json:"name"`
	ExpiresOn  *time.Time        `json:"expires_on,omitempty"`
	Roles      []string          `json:"roles,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type apiKeyResponse struct {
	Key       string     `json:"key"`
	Name      string     `json:"name"`
	ExpiresOn *time.Time `json:"expires_on,omitempty"`
	Roles     []string   `json:"roles,omitempty"`
}

type createAPIKeyResponse struct {
	apiKeyResponse
	Bearer string `json:"bearer"`
}

func toAPIKeyResponse(key *apikeymodels.APIKey) apiKeyResponse {
	roles := make([]string, 0, len(key.Roles))
	for roleKey := range key.Roles {
		roles = append(roles, roleKey)
	}
	return apiKeyResponse{
		Key:       key.ID,
		Name:      key.Name,
		ExpiresOn: key.ExpiresOn,
		Roles:     roles,
	}
}

func (h *Handler) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[createAPIKeyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	key, bearer, err := h.apiKeys.Create(ctx, apikeyservice.CreateRequest{
		TenantID:   scopeString(tenantScope(ctx)),
		Name:       req.Name,
		ExpiresOn:  req.ExpiresOn,
		Roles:      req.Roles,
		Attributes: req.Attributes,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "create API key failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, &createAPIKeyResponse{
		apiKeyResponse: toAPIKeyResponse(key),
		Bearer:         bearer,
	})
}

type authenticateAPIKeyRequest struct {
	Bearer string `json:"bearer"`
}

func (h *Handler) handleAuthenticateAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[authenticateAPIKeyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	key, err := h.apiKeys.Authenticate(ctx, tenantScope(ctx), req.Bearer)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toAPIKeyResponse(key))
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) handleAddAPIKeyRole(w http.ResponseWriter, r *http.Request) {
	h.mutateAPIKey(w, r, func(ctx context.Context, key string, req *roleRequest) (*apikeymodels.APIKey, error) {
		return h.apiKeys.AddRole(ctx, key, req.Role)
	})
}

func (h *Handler) handleRemoveAPIKeyRole(w http.ResponseWriter, r *http.Request) {
	h.mutateAPIKey(w, r, func(ctx context.Context, key string, req *roleRequest) (*apikeymodels.APIKey, error) {
		return h.apiKeys.RemoveRole(ctx, key, req.Role)
	})
}

func (h *Handler) mutateAPIKey(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, key string, req *roleRequest) (*apikeymodels.APIKey, error)) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	key := chi.URLParam(r, "key")

	req, ok := httputil.DecodeJSON[roleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	updated, err := fn(ctx, key, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toAPIKeyResponse(updated))
}

type setExpiryRequest struct {
	ExpiresOn time.Time `json:"expires_on"`
}

func (h *Handler) handleSetAPIKeyExpiry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	key := chi.URLParam(r, "key")

	req, ok := httputil.DecodeJSON[setExpiryRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	updated, err := h.apiKeys.SetExpiresOn(ctx, key, req.ExpiresOn)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toAPIKeyResponse(updated))
}

type renameRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleRenameAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	key := chi.URLParam(r, "key")

	req, ok := httputil.DecodeJSON[renameRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	updated, err := h.apiKeys.Rename(ctx, key, req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toAPIKeyResponse(updated))
}

func (h *Handler) handleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	if err := h.apiKeys.Delete(r.Context(), chi.URLParam(r, "key")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- sessions ---

type signInRequest struct {
	UserID     string            `json:"user_id"`
	Persistent bool              `json:"persistent,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type sessionResponse struct {
	Key          string            `json:"key"`
	UserID       string            `json:"user_id"`
	Active       bool              `json:"active"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	RefreshToken string            `json:"refresh_token,omitempty"`
}

func toSessionResponse(session *sessionmodels.Session, refreshToken string) *sessionResponse {
	return &sessionResponse{
		Key:          session.ID,
		UserID:       session.UserID.String(),
		Active:       session.Active,
		Attributes:   session.Attributes,
		RefreshToken: refreshToken,
	}
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[signInRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	session, refreshToken, err := h.sessions.SignIn(ctx, sessionservice.SignInRequest{
		TenantID:   scopeString(tenantScope(ctx)),
		UserID:     req.UserID,
		Persistent: req.Persistent,
		UserAgent:  r.UserAgent(),
		Attributes: req.Attributes,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "sign-in failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toSessionResponse(session, refreshToken))
}

type renewRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) handleRenewSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[renewRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	session, refreshToken, err := h.sessions.Renew(ctx, tenantScope(ctx), req.RefreshToken)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toSessionResponse(session, refreshToken))
}

// --- passwords ---

type hashPasswordRequest struct {
	Password string `json:"password"`
}

func (h *Handler) handleHashPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[hashPasswordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	encoded, err := h.passwords.Hash(ctx, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"encoded": encoded})
}

type verifyPasswordRequest struct {
	Password string `json:"password"`
	Encoded  string `json:"encoded"`
}

func (h *Handler) handleVerifyPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[verifyPasswordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	valid, err := h.passwords.Verify(ctx, req.Encoded, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

// --- tokens ---

type issueTokenRequest struct {
	Subject    string   `json:"subject"`
	Roles      []string `json:"roles,omitempty"`
	OneTimeUse bool     `json:"one_time_use,omitempty"`
}

func (h *Handler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[issueTokenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	signed, err := h.tokens.Issue(ctx, tenantScope(ctx), req.Subject, req.Roles, req.OneTimeUse)
	if err != nil {
		h.logger.ErrorContext(ctx, "issue token failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"token": signed})
}

type validateTokenRequest struct {
	Token   string `json:"token"`
	Consume bool   `json:"consume,omitempty"`
}

type validateTokenResponse struct {
	Subject string   `json:"subject"`
	Roles   []string `json:"roles,omitempty"`
}

func (h *Handler) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[validateTokenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	claims, err := h.tokens.Check(ctx, tenantScope(ctx), req.Token, req.Consume)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &validateTokenResponse{
		Subject: claims.Subject,
		Roles:   claims.Roles,
	})
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.SignOut(r.Context(), chi.URLParam(r, "key")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
