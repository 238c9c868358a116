package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires all public endpoints with middleware.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(Recovery(logger))
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Timeout(30 * time.Second))
	r.Use(TenantScope)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/otp", func(r chi.Router) {
		r.Post("/", h.handleCreateOTP)
		r.Post("/{key}/validate", h.handleValidateOTP)
		r.Delete("/{key}", h.handleDeleteOTP)
	})

	r.Route("/apikeys", func(r chi.Router) {
		r.Post("/", h.handleCreateAPIKey)
		r.Post("/authenticate", h.handleAuthenticateAPIKey)
		r.Post("/{key}/roles", h.handleAddAPIKeyRole)
		r.Delete("/{key}/roles", h.handleRemoveAPIKeyRole)
		r.Put("/{key}/expiry", h.handleSetAPIKeyExpiry)
		r.Put("/{key}/name", h.handleRenameAPIKey)
		r.Delete("/{key}", h.handleDeleteAPIKey)
	})

	r.Route("/passwords", func(r chi.Router) {
		r.Post("/", h.handleHashPassword)
		r.Post("/verify", h.handleVerifyPassword)
	})

	r.Route("/tokens", func(r chi.Router) {
		r.Post("/", h.handleIssueToken)
		r.Post("/validate", h.handleValidateToken)
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.handleSignIn)
		r.Post("/renew", h.handleRenewSession)
		r.Post("/{key}/sign-out", h.handleSignOut)
	})

	return r
}
