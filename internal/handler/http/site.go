package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/siterank/internal/domain"
	"github.com/utafrali/siterank/internal/service"
	apperrors "github.com/utafrali/siterank/pkg/errors"
	"github.com/utafrali/siterank/pkg/httputil"
	"github.com/utafrali/siterank/pkg/pagination"
	"github.com/utafrali/siterank/pkg/validator"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// SiteHandler handles HTTP requests for site catalog endpoints.
type SiteHandler struct {
	sites  *service.SiteService
	stats  *service.StatsService
	logger *slog.Logger
}

// NewSiteHandler creates a new site HTTP handler.
func NewSiteHandler(sites *service.SiteService, stats *service.StatsService, logger *slog.Logger) *SiteHandler {
	return &SiteHandler{
		sites:  sites,
		stats:  stats,
		logger: logger,
	}
}

// --- Request DTOs ---

// AddSiteRequest is the JSON request body for adding a site. Required fields
// are checked by the service after trimming so the error names every gap.
type AddSiteRequest struct {
	Name        string     `json:"name" validate:"max=255"`
	Link        string     `json:"link" validate:"max=2048"`
	Description string     `json:"description"`
	Theme       string     `json:"theme" validate:"max=255"`
	Developer   string     `json:"developer" validate:"max=255"`
	DeliveredAt *time.Time `json:"delivered_at"`
}

// UpdateSiteRequest is the JSON request body for a partial site update.
type UpdateSiteRequest struct {
	Name        *string    `json:"name" validate:"omitempty,max=255"`
	Link        *string    `json:"link" validate:"omitempty,max=2048"`
	Description *string    `json:"description"`
	Theme       *string    `json:"theme" validate:"omitempty,max=255"`
	Developer   *string    `json:"developer" validate:"omitempty,max=255"`
	DeliveredAt *time.Time `json:"delivered_at"`
}

// --- Handlers ---

// ListSites handles GET /api/v1/sites
func (h *SiteHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	result, err := h.sites.ListSites(r.Context(), pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// GetSite handles GET /api/v1/sites/{id}
func (h *SiteHandler) GetSite(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	details, err := h.sites.GetSiteDetails(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: details})
}

// FilterByTheme handles GET /api/v1/sites/theme/{theme}
func (h *SiteHandler) FilterByTheme(w http.ResponseWriter, r *http.Request) {
	theme := chi.URLParam(r, "theme")
	result, err := h.stats.FilterSitesByTheme(r.Context(), theme)
	h.writeFilterResult(w, r, result, err, fmt.Sprintf("no sites found for theme %q", theme))
}

// FilterByDeveloper handles GET /api/v1/sites/developer/{developer}
func (h *SiteHandler) FilterByDeveloper(w http.ResponseWriter, r *http.Request) {
	developer := chi.URLParam(r, "developer")
	result, err := h.stats.FilterSitesByDeveloper(r.Context(), developer)
	h.writeFilterResult(w, r, result, err, fmt.Sprintf("no sites found for developer %q", developer))
}

func (h *SiteHandler) writeFilterResult(w http.ResponseWriter, r *http.Request, result *domain.SiteFilterResult, err error, noMatch string) {
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if result.NoMatch {
		httputil.WriteError(w, r, apperrors.NotFoundMessage(noMatch), h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result.Sites})
}

// AddSite handles POST /api/v1/sites
func (h *SiteHandler) AddSite(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req AddSiteRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	site, err := h.sites.AddSite(r.Context(), &service.AddSiteInput{
		Name:        req.Name,
		Link:        req.Link,
		Description: req.Description,
		Theme:       req.Theme,
		Developer:   req.Developer,
		DeliveredAt: req.DeliveredAt,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: site})
}

// UpdateSite handles PUT /api/v1/sites/{id}
func (h *SiteHandler) UpdateSite(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req UpdateSiteRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	site, err := h.sites.UpdateSite(r.Context(), id.String(), domain.SitePatch{
		Name:        req.Name,
		Link:        req.Link,
		Description: req.Description,
		Theme:       req.Theme,
		Developer:   req.Developer,
		DeliveredAt: req.DeliveredAt,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: site})
}

// DeleteSite handles DELETE /api/v1/sites/{id}
func (h *SiteHandler) DeleteSite(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.sites.DeleteSite(r.Context(), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
