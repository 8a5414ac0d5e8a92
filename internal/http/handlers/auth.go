package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/auth"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/http/respond"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/middleware"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models/dto"
)

// Middleware wraps a handler.
type Middleware = func(http.Handler) http.Handler

// AuthHandler owns login, refresh and the current-identity endpoint.
type AuthHandler struct {
	svc *auth.Service
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(svc *auth.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Register attaches auth routes. limit guards the credential endpoints and requireAuth guards /auth/me.
func (h *AuthHandler) Register(r chi.Router, limit func(route string) Middleware, requireAuth Middleware) {
	r.With(limit("/auth/login")).Post("/auth/login", h.handleLogin)
	r.With(limit("/auth/refresh")).Post("/auth/refresh", h.handleRefresh)
	r.With(requireAuth).Get("/auth/me", h.handleMe)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		respond.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	pair, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "login successful", dto.LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Role:         pair.Identity.Role,
		SubjectID:    pair.Identity.ID,
		Profile:      pair.Identity.Profile(),
	})
}

func (h *AuthHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if err := respond.Decode(r, &req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		respond.Error(w, http.StatusBadRequest, "refreshToken is required")
		return
	}
	access, err := h.svc.RefreshAccess(r.Context(), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		writeTokenError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "token refreshed", dto.RefreshResponse{AccessToken: access})
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respond.JSON(w, http.StatusOK, "ok", dto.MeResponse{
		SubjectID: claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time,
	})
}
