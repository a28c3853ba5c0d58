package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/linklite/apiserver/internal/services"
	"go.uber.org/zap"
)

// UserHandler serves profile endpoints.
type UserHandler struct {
	userService *services.UserService
	logger      *zap.Logger
}

func NewUserHandler(userService *services.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{userService: userService, logger: logger}
}

// UserRouter registers profile routes on the given router.
func UserRouter(r chi.Router, userService *services.UserService, authn *Authenticator, logger *zap.Logger) {
	handler := NewUserHandler(userService, logger)

	r.With(authn.RequireAuth).Put("/me", handler.UpdateMe)
	r.With(authn.OptionalAuth).Get("/{userID}", handler.Get)
}

// Get returns a public profile. The email is included only for its owner.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "userID")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	profile, err := h.userService.Profile(r.Context(), userID.String(), IdentityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// UpdateMe edits the caller's own profile.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req services.UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.userService.UpdateProfile(r.Context(), identity.ID, req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
