package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xiaozining525-dotcom/bk/internal/models"
	"go.uber.org/zap"
)

// configCacheSeconds is how long clients may cache the public configuration
const configCacheSeconds = 3600

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// SiteHandler serves public site configuration and liveness
type SiteHandler struct {
	BaseHandler
	config models.SiteConfig
	checks map[string]HealthCheck
}

// NewSiteHandler creates a new site handler
func NewSiteHandler(config models.SiteConfig, checks map[string]HealthCheck, logger *zap.Logger) *SiteHandler {
	return &SiteHandler{
		BaseHandler: BaseHandler{logger: logger},
		config:      config,
		checks:      checks,
	}
}

// RegisterRoutes registers all site handler routes
func (h *SiteHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/config", h.GetConfig)
	r.Get("/healthz", h.Health)
}

// GetConfig handles GET /api/config
// @Summary Get site configuration
// @Description Background media, avatar and whether captcha is required
// @Tags site
// @Produce json
// @Success 200 {object} models.Envelope{data=models.SiteConfig}
// @Router /api/config [get]
func (h *SiteHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	setCache(w, configCacheSeconds)
	h.respondJSON(w, http.StatusOK, h.config)
}

// Health handles GET /healthz
// @Summary Liveness check
// @Tags site
// @Produce json
// @Success 200 {object} models.Envelope
// @Failure 503 {object} models.Envelope
// @Router /healthz [get]
func (h *SiteHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			status[name] = "down"
			healthy = false
			continue
		}
		status[name] = "up"
	}

	if !healthy {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		h.encode(w, models.Envelope{Success: false, Data: status, Error: "Service unavailable"})
		return
	}
	h.respondJSON(w, http.StatusOK, status)
}
