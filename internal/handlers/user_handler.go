package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xiaozining525-dotcom/bk/internal/middleware"
	"github.com/xiaozining525-dotcom/bk/internal/models"
	"go.uber.org/zap"
)

// UserService is the interface that wraps methods for user management
type UserService interface {
	// Method ListUsers returns every user profile.
	ListUsers(ctx context.Context, caller *models.User) ([]models.UserProfile, error)
	// Method CreateUser adds an editor with the requested permissions.
	//
	// If the username is taken, models.ErrConflict will be returned.
	CreateUser(ctx context.Context, caller *models.User, req *models.CreateUserRequest) error
	// Method UpdatePermissions replaces the permissions of a user.
	UpdatePermissions(ctx context.Context, caller *models.User, req *models.UpdatePermissionsRequest) error
	// Method DeleteUser removes a user.
	//
	// Deleting yourself or the last admin returns models.ErrPermissionDenied.
	DeleteUser(ctx context.Context, caller *models.User, username string) error
}

// UserHandler handles HTTP requests for user management
type UserHandler struct {
	BaseHandler
	service UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(svc UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		BaseHandler: BaseHandler{logger: logger},
		service:     svc,
	}
}

// RegisterRoutes registers all user handler routes
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/users", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Patch("/", h.UpdatePermissions)
		r.Delete("/", h.Delete)
	})
}

// List handles GET /api/users
// @Summary List users
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Envelope{data=[]models.UserProfile}
// @Failure 401 {object} models.Envelope
// @Failure 403 {object} models.Envelope
// @Router /api/users [get]
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetUser(r.Context())

	users, err := h.service.ListUsers(r.Context(), caller)
	if err != nil {
		h.respondServiceError(w, err, "failed to list users")
		return
	}

	h.respondJSON(w, http.StatusOK, users)
}

// Create handles POST /api/users
// @Summary Create an editor
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateUserRequest true "New user"
// @Success 200 {object} models.Envelope
// @Failure 400 {object} models.Envelope
// @Failure 403 {object} models.Envelope
// @Router /api/users [post]
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetUser(r.Context())

	var req models.CreateUserRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.CreateUser(r.Context(), caller, &req); err != nil {
		h.respondServiceError(w, err, "failed to create user")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// UpdatePermissions handles PATCH /api/users
// @Summary Replace the permissions of a user
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.UpdatePermissionsRequest true "Permissions"
// @Success 200 {object} models.Envelope
// @Failure 400 {object} models.Envelope
// @Failure 403 {object} models.Envelope
// @Failure 404 {object} models.Envelope
// @Router /api/users [patch]
func (h *UserHandler) UpdatePermissions(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetUser(r.Context())

	var req models.UpdatePermissionsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.UpdatePermissions(r.Context(), caller, &req); err != nil {
		h.respondServiceError(w, err, "failed to update permissions")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Delete handles DELETE /api/users
// @Summary Delete a user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param username query string true "Username"
// @Success 200 {object} models.Envelope
// @Failure 400 {object} models.Envelope
// @Failure 403 {object} models.Envelope
// @Failure 404 {object} models.Envelope
// @Router /api/users [delete]
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetUser(r.Context())

	if err := h.service.DeleteUser(r.Context(), caller, r.URL.Query().Get("username")); err != nil {
		h.respondServiceError(w, err, "failed to delete user")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
