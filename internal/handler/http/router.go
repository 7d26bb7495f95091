package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/siterank/internal/domain"
	"github.com/utafrali/siterank/internal/service"
	"github.com/utafrali/siterank/pkg/health"
	"github.com/utafrali/siterank/pkg/middleware"
)

// ServiceName labels metrics and spans emitted by the HTTP layer.
const ServiceName = "siterank"

// RouterDeps collects what NewRouter wires into the route table.
type RouterDeps struct {
	Sites   *service.SiteService
	Reviews *service.ReviewService
	Stats   *service.StatsService

	Tokens middleware.TokenValidator
	Health *health.Handler

	// Limiter throttles write endpoints. Nil disables rate limiting.
	Limiter middleware.Limiter

	CORS              middleware.CORSConfig
	PprofAllowedCIDRs []string
	Logger            *slog.Logger
}

// NewRouter creates a chi router with all siterank routes registered.
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(deps.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))

	// Health check endpoints
	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})
	middleware.RegisterPprof(r, deps.PprofAllowedCIDRs, logger)

	siteHandler := NewSiteHandler(deps.Sites, deps.Stats, logger)
	reviewHandler := NewReviewHandler(deps.Reviews, logger)
	statsHandler := NewStatsHandler(deps.Stats, logger)

	authenticated := middleware.Auth(deps.Tokens)
	throttle := func(next http.Handler) http.Handler { return next }
	if deps.Limiter != nil {
		throttle = middleware.RateLimit(deps.Limiter, logger)
	}

	r.Route("/api/v1/sites", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Get("/", siteHandler.ListSites)
		r.Get("/ranked", statsHandler.RankedSites)
		r.Get("/theme/{theme}", siteHandler.FilterByTheme)
		r.Get("/developer/{developer}", siteHandler.FilterByDeveloper)
		r.Get("/{id}", siteHandler.GetSite)

		r.Group(func(r chi.Router) {
			r.Use(authenticated)
			r.Use(middleware.RequireRole(domain.RoleAdmin))
			r.Use(throttle)

			r.Post("/", siteHandler.AddSite)
			r.Put("/{id}", siteHandler.UpdateSite)
			r.Delete("/{id}", siteHandler.DeleteSite)
		})

		// Reviews are written by regular users only; authorship is enforced by the service.
		r.Group(func(r chi.Router) {
			r.Use(authenticated)
			r.Use(middleware.RequireRole(domain.RoleUser))
			r.Use(throttle)

			r.Post("/{id}/reviews", reviewHandler.AddReview)
			r.Put("/{id}/reviews/{reviewId}", reviewHandler.UpdateReview)
		})
	})

	r.Get("/api/v1/themes/top", statsHandler.TopThemes)
	r.Get("/api/v1/developers/top", statsHandler.TopDevelopers)

	r.Group(func(r chi.Router) {
		r.Use(authenticated)
		r.Use(middleware.RequireRole(domain.RoleAdmin))

		r.Get("/api/v1/dashboard", statsHandler.Dashboard)
		r.Get("/api/v1/stats", statsHandler.Global)
		r.Get("/api/v1/reports/high-rating-authors", statsHandler.HighRatingAuthors)
		r.Get("/api/v1/reports/high-rating-authors.csv", statsHandler.HighRatingAuthorsCSV)
	})

	return r
}
