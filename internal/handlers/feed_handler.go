package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/xiaozining525-dotcom/bk/internal/models"
	"go.uber.org/zap"
)

// FeedService is the interface that wraps methods for rendered XML documents
type FeedService interface {
	// Method Feed returns the RSS document for base.
	Feed(ctx context.Context, base string) (*models.Document, error)
	// Method Sitemap returns the sitemap document for base.
	Sitemap(ctx context.Context, base string) (*models.Document, error)
}

// FeedHandler serves the RSS feed and sitemap
type FeedHandler struct {
	BaseHandler
	service FeedService
	siteURL string
}

// NewFeedHandler creates a new feed handler.
// An empty siteURL makes links relative to the requesting host.
func NewFeedHandler(svc FeedService, siteURL string, logger *zap.Logger) *FeedHandler {
	return &FeedHandler{
		BaseHandler: BaseHandler{logger: logger},
		service:     svc,
		siteURL:     strings.TrimRight(siteURL, "/"),
	}
}

// RegisterRoutes registers all feed handler routes
func (h *FeedHandler) RegisterRoutes(r chi.Router) {
	r.Get("/feed.xml", h.Feed)
	r.Get("/sitemap.xml", h.Sitemap)
}

// Feed handles GET /feed.xml
// @Summary RSS feed
// @Description The 20 most recent published posts
// @Tags feed
// @Produce xml
// @Success 200 {string} string "RSS 2.0 document"
// @Success 304 {string} string "Not modified"
// @Router /feed.xml [get]
func (h *FeedHandler) Feed(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Feed(r.Context(), h.baseURL(r))
	if err != nil {
		h.respondServiceError(w, err, "failed to build feed")
		return
	}
	h.writeDocument(w, r, doc)
}

// Sitemap handles GET /sitemap.xml
// @Summary Sitemap
// @Description Home, about and every published post
// @Tags feed
// @Produce xml
// @Success 200 {string} string "Sitemap document"
// @Success 304 {string} string "Not modified"
// @Router /sitemap.xml [get]
func (h *FeedHandler) Sitemap(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Sitemap(r.Context(), h.baseURL(r))
	if err != nil {
		h.respondServiceError(w, err, "failed to build sitemap")
		return
	}
	h.writeDocument(w, r, doc)
}

func (h *FeedHandler) writeDocument(w http.ResponseWriter, r *http.Request, doc *models.Document) {
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(doc.MaxAge.Seconds())))
	w.Header().Set("ETag", doc.ETag)

	if etagMatches(r.Header.Get("If-None-Match"), doc.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Body); err != nil {
		h.logger.Debug("failed to write document", zap.Error(err))
	}
}

// baseURL returns the configured site URL or the scheme and host of the request
func (h *FeedHandler) baseURL(r *http.Request) string {
	if h.siteURL != "" {
		return h.siteURL
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + r.Host
}

// etagMatches reports whether an If-None-Match header lists etag
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
