package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xiaozining525-dotcom/bk/internal/middleware"
	"github.com/xiaozining525-dotcom/bk/internal/models"
	"go.uber.org/zap"
)

// AuthService is the interface that wraps methods for credential handling
type AuthService interface {
	// Method IsSetup reports whether the first admin exists.
	IsSetup(ctx context.Context) (bool, error)
	// Method Register creates the first admin.
	//
	// "ip" parameter is the caller address used for captcha verification.
	//
	// If an admin already exists, models.ErrSetupCompleted will be returned.
	Register(ctx context.Context, req *models.RegisterRequest, ip string) error
	// Method Login verifies credentials and opens a session.
	//
	// "ip" parameter is the caller address used for rate limiting.
	//
	// If the address is locked out, models.ErrTooManyAttempts will be returned together with nil.
	Login(ctx context.Context, req *models.LoginRequest, ip string) (*models.LoginResponse, error)
	// Method Logout removes a session.
	Logout(ctx context.Context, token string) error
}

// AuthHandler handles HTTP requests for registration and sessions
type AuthHandler struct {
	BaseHandler
	service AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(svc AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		BaseHandler: BaseHandler{logger: logger},
		service:     svc,
	}
}

// RegisterRoutes registers all auth handler routes
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/setup-check", h.SetupCheck)
	r.Post("/api/register", h.Register)
	r.Post("/api/auth", h.Login)
	r.With(middleware.RequireAuth).Delete("/api/auth", h.Logout)
}

// SetupCheck handles GET /api/setup-check
// @Summary Check whether the blog has an admin
// @Tags auth
// @Produce json
// @Success 200 {object} models.Envelope{data=models.SetupStatus}
// @Failure 500 {object} models.Envelope
// @Router /api/setup-check [get]
func (h *AuthHandler) SetupCheck(w http.ResponseWriter, r *http.Request) {
	setup, err := h.service.IsSetup(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "failed to check setup")
		return
	}

	h.respondJSON(w, http.StatusOK, models.SetupStatus{IsSetup: setup})
}

// Register handles POST /api/register
// @Summary Register the first admin
// @Description Only allowed while no users exist
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.RegisterRequest true "Credentials"
// @Success 200 {object} models.Envelope
// @Failure 400 {object} models.Envelope
// @Failure 403 {object} models.Envelope
// @Router /api/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.Register(r.Context(), &req, middleware.ClientIP(r)); err != nil {
		h.respondServiceError(w, err, "failed to register")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Registration successful"})
}

// Login handles POST /api/auth
// @Summary Log in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Credentials"
// @Success 200 {object} models.Envelope{data=models.LoginResponse}
// @Failure 400 {object} models.Envelope
// @Failure 401 {object} models.Envelope
// @Failure 429 {object} models.Envelope
// @Router /api/auth [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.Login(r.Context(), &req, middleware.ClientIP(r))
	if err != nil {
		h.respondServiceError(w, err, "failed to log in")
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// Logout handles DELETE /api/auth
// @Summary Log out
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Envelope
// @Failure 401 {object} models.Envelope
// @Router /api/auth [delete]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), middleware.BearerToken(r)); err != nil {
		h.respondServiceError(w, err, "failed to log out")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]bool{"loggedOut": true})
}
