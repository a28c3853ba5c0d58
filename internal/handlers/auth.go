package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linklite/apiserver/internal/services"
	"go.uber.org/zap"
)

// AuthHandler provides registration, login and current-user endpoints.
type AuthHandler struct {
	authService *services.AuthService
	logger      *zap.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(authService *services.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, logger: logger}
}

// AuthRouter registers auth routes on the given router. The credential
// endpoints share limiter; a nil limiter disables throttling.
func AuthRouter(r chi.Router, authService *services.AuthService, authn *Authenticator, limiter *RateLimiter, logger *zap.Logger) {
	handler := NewAuthHandler(authService, logger)

	r.With(limiter.Middleware).Post("/register", handler.Register)
	r.With(limiter.Middleware).Post("/login", handler.Login)
	r.With(authn.RequireAuth).Get("/me", handler.Me)
}

// Register creates a new account and returns it with a token.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	res, err := h.authService.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Login verifies credentials and returns a token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	res, err := h.authService.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Me returns the authenticated caller.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

// Authenticator resolves bearer tokens into request identities.
type Authenticator struct {
	resolver *services.IdentityResolver
	logger   *zap.Logger
}

func NewAuthenticator(resolver *services.IdentityResolver, logger *zap.Logger) *Authenticator {
	return &Authenticator{resolver: resolver, logger: logger}
}

// RequireAuth rejects requests without a valid token.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.resolver.Resolve(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			if errors.Is(err, services.ErrMissingToken) || errors.Is(err, services.ErrInvalidToken) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			writeServiceError(w, r, a.logger, err)
			return
		}

		ctx := withIdentity(r.Context(), &identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth attaches the caller when a valid token is present and lets
// everyone else through anonymously.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.resolver.ResolveOptional(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			writeServiceError(w, r, a.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}
