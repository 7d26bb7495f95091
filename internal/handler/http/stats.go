package http

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/utafrali/siterank/internal/domain"
	"github.com/utafrali/siterank/internal/export"
	"github.com/utafrali/siterank/internal/service"
	apperrors "github.com/utafrali/siterank/pkg/errors"
	"github.com/utafrali/siterank/pkg/httputil"
)

// StatsHandler serves the derived rating statistics and reports.
type StatsHandler struct {
	stats  *service.StatsService
	logger *slog.Logger
}

// NewStatsHandler creates a new statistics HTTP handler.
func NewStatsHandler(stats *service.StatsService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, logger: logger}
}

// RankedSites handles GET /api/v1/sites/ranked?sort=rating|reviewCount|name
func (h *StatsHandler) RankedSites(w http.ResponseWriter, r *http.Request) {
	key := domain.ParseSortKey(r.URL.Query().Get("sort"))
	sites, err := h.stats.SitesWithComputedStats(r.Context(), key)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: sites})
}

// TopThemes handles GET /api/v1/themes/top
func (h *StatsHandler) TopThemes(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.PerThemeStats(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: stats})
}

// TopDevelopers handles GET /api/v1/developers/top
func (h *StatsHandler) TopDevelopers(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.PerDeveloperStats(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: stats})
}

// Dashboard handles GET /api/v1/dashboard
func (h *StatsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.PerSiteStats(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: stats})
}

// Global handles GET /api/v1/stats
func (h *StatsHandler) Global(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GlobalStats(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: stats})
}

// HighRatingAuthors handles GET /api/v1/reports/high-rating-authors
func (h *StatsHandler) HighRatingAuthors(w http.ResponseWriter, r *http.Request) {
	threshold, err := thresholdParam(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	authors, err := h.stats.HighRatingAuthors(r.Context(), threshold)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: authors})
}

// HighRatingAuthorsCSV handles GET /api/v1/reports/high-rating-authors.csv
func (h *StatsHandler) HighRatingAuthorsCSV(w http.ResponseWriter, r *http.Request) {
	threshold, err := thresholdParam(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	rows, err := h.stats.HighRatingAuthorRows(r.Context(), threshold)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	// Render fully before writing headers so a failure can still become a 500.
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, rows); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="high-rating-authors.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func thresholdParam(r *http.Request) (float64, error) {
	raw := r.URL.Query().Get("threshold")
	if raw == "" {
		return domain.DefaultHighRatingThreshold, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperrors.InvalidInput("threshold must be a number")
	}
	return v, nil
}
