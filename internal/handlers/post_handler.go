package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/xiaozining525-dotcom/bk/internal/middleware"
	"github.com/xiaozining525-dotcom/bk/internal/models"
	"go.uber.org/zap"
)

// List cache lifetimes for anonymous readers, in seconds
const (
	homeListCacheSeconds     = 60
	filteredListCacheSeconds = 30
)

// PostService is the interface that wraps methods for post business logic
type PostService interface {
	// Method Save creates or replaces a post and returns its id.
	//
	// "caller" is the authenticated user, updates require the admin role.
	Save(ctx context.Context, caller *models.User, post *models.Post) (string, error)
	// Method Get returns a post and counts the view.
	//
	// Drafts requested by an anonymous caller (nil) return models.ErrForbidden.
	Get(ctx context.Context, caller *models.User, id string) (*models.Post, error)
	// Method List returns a filtered page of post metadata.
	List(ctx context.Context, caller *models.User, query models.PostListQuery) (*models.PostList, error)
	// Method Delete removes a post. Only admins may delete.
	Delete(ctx context.Context, caller *models.User, id string) error
}

// PostHandler handles HTTP requests for posts
type PostHandler struct {
	BaseHandler
	service PostService
}

// NewPostHandler creates a new post handler
func NewPostHandler(svc PostService, logger *zap.Logger) *PostHandler {
	return &PostHandler{
		BaseHandler: BaseHandler{logger: logger},
		service:     svc,
	}
}

// RegisterRoutes registers all post handler routes
func (h *PostHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/posts", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/", h.Save)
		r.Delete("/", h.Delete)
	})
}

// Get handles GET /api/posts
// @Summary Get a post or list posts
// @Description With id returns a single post and counts the view, otherwise returns a page of post metadata. Drafts are only visible to authenticated users.
// @Tags posts
// @Produce json
// @Param id query string false "Post ID"
// @Param page query int false "Page number, default: 1"
// @Param limit query int false "Page size, default: 10, max: 100"
// @Param search query string false "Case-insensitive search in title and excerpt"
// @Param category query string false "Exact category"
// @Param tag query string false "Tag"
// @Success 200 {object} models.Envelope{data=models.PostList}
// @Failure 403 {object} models.Envelope
// @Failure 404 {object} models.Envelope
// @Router /api/posts [get]
func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetUser(r.Context())
	q := r.URL.Query()

	if id := q.Get("id"); id != "" {
		post, err := h.service.Get(r.Context(), caller, id)
		if err != nil {
			h.respondServiceError(w, err, "failed to get post")
			return
		}
		setCache(w, 0)
		h.respondJSON(w, http.StatusOK, post)
		return
	}

	query := models.PostListQuery{
		Page:     queryInt(q.Get("page")),
		Limit:    queryInt(q.Get("limit")),
		Search:   q.Get("search"),
		Category: q.Get("category"),
		Tag:      q.Get("tag"),
	}

	list, err := h.service.List(r.Context(), caller, query)
	if err != nil {
		h.respondServiceError(w, err, "failed to list posts")
		return
	}

	switch {
	case caller != nil:
		setCache(w, 0)
	case list.Page == 1 && !query.HasFilters():
		setCache(w, homeListCacheSeconds)
	default:
		setCache(w, filteredListCacheSeconds)
	}
	h.respondJSON(w, http.StatusOK, list)
}

// Save handles POST /api/posts
// @Summary Create or update a post
// @Description Creating requires manage_contents, updating an existing post requires the admin role
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.Post true "Post"
// @Success 200 {object} models.Envelope{data=models.SavePostResponse}
// @Failure 400 {object} models.Envelope
// @Failure 401 {object} models.Envelope
// @Failure 403 {object} models.Envelope
// @Failure 413 {object} models.Envelope
// @Router /api/posts [post]
func (h *PostHandler) Save(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetUser(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var post models.Post
	if !h.decodeJSON(w, r, &post) {
		return
	}

	id, err := h.service.Save(r.Context(), caller, &post)
	if err != nil {
		h.respondServiceError(w, err, "failed to save post")
		return
	}

	h.respondJSON(w, http.StatusOK, models.SavePostResponse{ID: id})
}

// Delete handles DELETE /api/posts
// @Summary Delete a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id query string true "Post ID"
// @Success 200 {object} models.Envelope
// @Failure 400 {object} models.Envelope
// @Failure 401 {object} models.Envelope
// @Failure 403 {object} models.Envelope
// @Router /api/posts [delete]
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetUser(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := h.service.Delete(r.Context(), caller, r.URL.Query().Get("id")); err != nil {
		h.respondServiceError(w, err, "failed to delete post")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// queryInt parses a query parameter, returning 0 when absent or malformed
func queryInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
