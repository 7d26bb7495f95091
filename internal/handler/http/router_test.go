package http

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/siterank/internal/auth"
	"github.com/utafrali/siterank/internal/domain"
	"github.com/utafrali/siterank/internal/event"
	"github.com/utafrali/siterank/internal/repository"
	"github.com/utafrali/siterank/internal/repository/memory"
	"github.com/utafrali/siterank/internal/service"
	"github.com/utafrali/siterank/pkg/health"
	"github.com/utafrali/siterank/pkg/middleware"
)

const testSecret = "router-test-secret-that-is-long-enough"

type testServer struct {
	handler http.Handler
	store   *memory.Store
	jwt     *auth.JWTManager
}

func newTestServer(t *testing.T, limiter middleware.Limiter) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	producer := event.NewProducer(nil, logger)
	jwtManager := auth.NewJWTManager(testSecret, time.Minute)

	h := NewRouter(RouterDeps{
		Sites:             service.NewSiteService(store.Sites(), store.Reviews(), producer, logger),
		Reviews:           service.NewReviewService(store.Sites(), store.Reviews(), producer, logger),
		Stats:             service.NewStatsService(store.Sites(), store.Reviews(), store.Users(), logger),
		Tokens:            jwtManager.Validator(),
		Health:            health.NewHandler(),
		Limiter:           limiter,
		CORS:              middleware.DefaultCORSConfig(),
		PprofAllowedCIDRs: []string{"127.0.0.0/8"},
		Logger:            logger,
	})
	return &testServer{handler: h, store: store, jwt: jwtManager}
}

func (s *testServer) token(t *testing.T, username, role string) string {
	t.Helper()
	tok, err := s.jwt.GenerateAccessToken("id-"+username, username, role)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "10.1.2.3:5555"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &v))
	return v
}

func (s *testServer) addSite(t *testing.T, name, theme, developer string) domain.Site {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/sites", s.token(t, "root", domain.RoleAdmin), map[string]any{
		"name": name, "link": "https://" + strings.ToLower(name) + ".example", "theme": theme, "developer": developer,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeData[domain.Site](t, rec)
}

func (s *testServer) addReview(t *testing.T, siteID, author string, rating float64) domain.Review {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/sites/"+siteID+"/reviews", s.token(t, author, domain.RoleUser),
		map[string]any{"rating": rating, "comment": "ok"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeData[domain.Review](t, rec)
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/live", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/ready", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/metrics", "", nil).Code)
}

func TestAddSite_Gate(t *testing.T) {
	s := newTestServer(t, nil)
	body := map[string]any{"name": "Bakery", "link": "https://bakery.example", "theme": "Food", "developer": "Ana"}

	rec := s.do(t, http.MethodPost, "/api/v1/sites", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/sites", s.token(t, "bob", domain.RoleUser), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/sites", s.token(t, "root", domain.RoleAdmin), body)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Bakery", decodeData[domain.Site](t, rec).Name)
}

func TestAddSite_DuplicateKeyConflict(t *testing.T) {
	s := newTestServer(t, nil)
	s.addSite(t, "Bakery", "Food", "Ana")

	rec := s.do(t, http.MethodPost, "/api/v1/sites", s.token(t, "root", domain.RoleAdmin), map[string]any{
		"name": "Bakery", "link": "https://bakery.example", "theme": "Other", "developer": "Ben",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", decode(t, rec).Error.Code)
}

func TestAddSite_MissingFields(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/v1/sites", s.token(t, "root", domain.RoleAdmin), map[string]any{
		"name": "  ", "link": "https://x.example",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	msg := decode(t, rec).Error.Message
	assert.Contains(t, msg, "name")
	assert.Contains(t, msg, "theme")
	assert.Contains(t, msg, "developer")
}

func TestAddSite_RejectsNonJSON(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sites", strings.NewReader("name=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.token(t, "root", domain.RoleAdmin))
	rec := httptest.NewRecorder()

	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestUpdateAndDeleteSite(t *testing.T) {
	s := newTestServer(t, nil)
	site := s.addSite(t, "Bakery", "Food", "Ana")
	admin := s.token(t, "root", domain.RoleAdmin)

	rec := s.do(t, http.MethodPut, "/api/v1/sites/"+site.ID, admin, map[string]any{"theme": "Retail"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeData[domain.Site](t, rec)
	assert.Equal(t, "Retail", updated.Theme)
	assert.Equal(t, "Bakery", updated.Name)

	rec = s.do(t, http.MethodDelete, "/api/v1/sites/"+site.ID, admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/sites/"+site.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSite_InvalidID(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/sites/not-a-uuid", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", decode(t, rec).Error.Code)
}

func TestGetSite_WithReviews(t *testing.T) {
	s := newTestServer(t, nil)
	site := s.addSite(t, "Bakery", "Food", "Ana")
	s.addReview(t, site.ID, "bob", 4)

	rec := s.do(t, http.MethodGet, "/api/v1/sites/"+site.ID, "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	details := decodeData[domain.SiteDetails](t, rec)
	assert.Equal(t, site.ID, details.Site.ID)
	require.Len(t, details.Reviews, 1)
	assert.Equal(t, "bob", details.Reviews[0].Author)
}

func TestListSites_Paginated(t *testing.T) {
	s := newTestServer(t, nil)
	admin := s.token(t, "root", domain.RoleAdmin)
	for i, name := range []string{"Alpha", "Beta", "Gamma"} {
		rec := s.do(t, http.MethodPost, "/api/v1/sites", admin, map[string]any{
			"name": name, "link": "https://" + name + ".example", "theme": "Food", "developer": "Ana",
			"delivered_at": time.Date(2024, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC),
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	// Newest delivery first: Gamma, Beta | Alpha.
	rec := s.do(t, http.MethodGet, "/api/v1/sites?page=2&per_page=2", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Data       []domain.Site `json:"data"`
		TotalCount int           `json:"total_count"`
		HasPrev    bool          `json:"has_prev"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 3, page.TotalCount)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Alpha", page.Data[0].Name)
	assert.True(t, page.HasPrev)
}

func TestAddReview(t *testing.T) {
	s := newTestServer(t, nil)
	site := s.addSite(t, "Bakery", "Food", "Ana")

	review := s.addReview(t, site.ID, "bob", 4.5)
	assert.Equal(t, "bob", review.Author)
	assert.Equal(t, site.ID, review.SiteID)

	t.Run("anonymous", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/sites/"+site.ID+"/reviews", "", map[string]any{"rating": 3})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rating out of range", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/sites/"+site.ID+"/reviews", s.token(t, "bob", domain.RoleUser),
			map[string]any{"rating": 6})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_ERROR", decode(t, rec).Error.Code)
	})

	t.Run("unknown site", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/sites/550e8400-e29b-41d4-a716-446655440000/reviews",
			s.token(t, "bob", domain.RoleUser), map[string]any{"rating": 3})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUpdateReview_AuthorOnly(t *testing.T) {
	s := newTestServer(t, nil)
	site := s.addSite(t, "Bakery", "Food", "Ana")
	review := s.addReview(t, site.ID, "bob", 2)
	path := "/api/v1/sites/" + site.ID + "/reviews/" + review.ID

	rec := s.do(t, http.MethodPut, path, s.token(t, "carol", domain.RoleUser), map[string]any{"rating": 5})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPut, path, s.token(t, "root", domain.RoleAdmin), map[string]any{"rating": 5})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPut, path, s.token(t, "bob", domain.RoleUser), map[string]any{"rating": 5, "comment": "better"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeData[domain.Review](t, rec)
	assert.InDelta(t, 5.0, updated.Rating, 1e-9)
	assert.Equal(t, "better", updated.Comment)
}

func TestReviewRoutes_AdminForbidden(t *testing.T) {
	s := newTestServer(t, nil)
	site := s.addSite(t, "Bakery", "Food", "Ana")
	review := s.addReview(t, site.ID, "bob", 3)
	admin := s.token(t, "root", domain.RoleAdmin)

	rec := s.do(t, http.MethodPost, "/api/v1/sites/"+site.ID+"/reviews", admin, map[string]any{"rating": 5})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/sites/"+site.ID+"/reviews/"+review.ID, admin, map[string]any{"rating": 5})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	reviews, err := s.store.Reviews().List(t.Context(), repository.ReviewFilter{})
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, "bob", reviews[0].Author)
	assert.InDelta(t, 3.0, reviews[0].Rating, 1e-9)
}

func TestUpdateReview_WrongSite(t *testing.T) {
	s := newTestServer(t, nil)
	site := s.addSite(t, "Bakery", "Food", "Ana")
	other := s.addSite(t, "Forge", "Tech", "Ben")
	review := s.addReview(t, site.ID, "bob", 2)

	rec := s.do(t, http.MethodPut, "/api/v1/sites/"+other.ID+"/reviews/"+review.ID,
		s.token(t, "bob", domain.RoleUser), map[string]any{"rating": 5})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFilterByTheme(t *testing.T) {
	s := newTestServer(t, nil)
	s.addSite(t, "Bakery", "Food", "Ana")
	s.addSite(t, "Forge", "Tech", "Ben")

	rec := s.do(t, http.MethodGet, "/api/v1/sites/theme/food", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sites := decodeData[[]domain.Site](t, rec)
	require.Len(t, sites, 1)
	assert.Equal(t, "Bakery", sites[0].Name)

	rec = s.do(t, http.MethodGet, "/api/v1/sites/theme/Travel", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode(t, rec).Error.Message, "Travel")
}

func TestFilterByDeveloper(t *testing.T) {
	s := newTestServer(t, nil)
	s.addSite(t, "Bakery", "Food", "Ana")

	rec := s.do(t, http.MethodGet, "/api/v1/sites/developer/ANA", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]domain.Site](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/api/v1/sites/developer/Nobody", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRankedSites(t *testing.T) {
	s := newTestServer(t, nil)
	a := s.addSite(t, "Alpha", "Food", "Ana")
	b := s.addSite(t, "Beta", "Food", "Ana")
	s.addReview(t, a.ID, "bob", 2)
	s.addReview(t, b.ID, "bob", 5)
	s.addReview(t, b.ID, "carol", 4)

	rec := s.do(t, http.MethodGet, "/api/v1/sites/ranked?sort=rating", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ranked := decodeData[[]domain.SiteWithStats](t, rec)
	require.Len(t, ranked, 2)
	assert.Equal(t, "Beta", ranked[0].Name)
	assert.InDelta(t, 4.5, ranked[0].Rating, 1e-9)
	assert.Equal(t, 2, ranked[0].ReviewCount)
}

func TestTopThemesAndDevelopers(t *testing.T) {
	s := newTestServer(t, nil)
	a := s.addSite(t, "Alpha", "Food", "Ana")
	b := s.addSite(t, "Beta", "Tech", "Ben")
	s.addReview(t, a.ID, "bob", 3)
	s.addReview(t, b.ID, "bob", 5)

	rec := s.do(t, http.MethodGet, "/api/v1/themes/top", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	themes := decodeData[[]domain.GroupStat](t, rec)
	require.Len(t, themes, 2)
	assert.Equal(t, "Tech", themes[0].Key)

	rec = s.do(t, http.MethodGet, "/api/v1/developers/top", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	devs := decodeData[[]domain.GroupStat](t, rec)
	require.Len(t, devs, 2)
	assert.Equal(t, "Ben", devs[0].Key)
}

func TestAdminReports_Gate(t *testing.T) {
	s := newTestServer(t, nil)
	user := s.token(t, "bob", domain.RoleUser)

	for _, path := range []string{
		"/api/v1/dashboard",
		"/api/v1/stats",
		"/api/v1/reports/high-rating-authors",
		"/api/v1/reports/high-rating-authors.csv",
	} {
		assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, path, "", nil).Code, path)
		assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, path, user, nil).Code, path)
	}
}

func TestDashboardAndGlobalStats(t *testing.T) {
	s := newTestServer(t, nil)
	admin := s.token(t, "root", domain.RoleAdmin)
	a := s.addSite(t, "Alpha", "Food", "Ana")
	s.addSite(t, "Beta", "Food", "Ana")
	s.addReview(t, a.ID, "bob", 4)
	s.addReview(t, a.ID, "carol", 2)

	rec := s.do(t, http.MethodGet, "/api/v1/dashboard", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dashboard := decodeData[[]domain.SiteStat](t, rec)
	require.Len(t, dashboard, 2)
	assert.Equal(t, "Alpha", dashboard[0].SiteName)
	assert.InDelta(t, 3.0, dashboard[0].AverageRating, 1e-9)

	rec = s.do(t, http.MethodGet, "/api/v1/stats", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	global := decodeData[domain.GlobalStats](t, rec)
	assert.Equal(t, 1, global.SitesReviewed)
	assert.Equal(t, 2, global.DistinctAuthors)
	assert.Equal(t, 2, global.TotalReviews)
	assert.InDelta(t, 3.0, global.AverageRating, 1e-9)
}

func TestHighRatingAuthors(t *testing.T) {
	s := newTestServer(t, nil)
	admin := s.token(t, "root", domain.RoleAdmin)
	registered := time.Date(2023, 5, 17, 9, 30, 0, 0, time.UTC)
	s.store.PutUser(domain.User{ID: "u1", Username: "bob", Email: "bob@example.com", CreatedAt: registered})
	s.store.PutUser(domain.User{ID: "u2", Username: "carol", Email: "carol@example.com", CreatedAt: registered})
	site := s.addSite(t, "Alpha", "Food", "Ana")
	s.addReview(t, site.ID, "bob", 4.2)
	s.addReview(t, site.ID, "carol", 4.1)

	rec := s.do(t, http.MethodGet, "/api/v1/reports/high-rating-authors", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	authors := decodeData[[]domain.HighRatingAuthor](t, rec)
	require.Len(t, authors, 1)
	assert.Equal(t, "bob", authors[0].Username)

	rec = s.do(t, http.MethodGet, "/api/v1/reports/high-rating-authors.csv?threshold=4", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"name", "email", "registration date"},
		{"bob", "bob@example.com", "2023-05-17"},
		{"carol", "carol@example.com", "2023-05-17"},
	}, rows)
}

func TestHighRatingAuthors_InvalidThreshold(t *testing.T) {
	s := newTestServer(t, nil)
	admin := s.token(t, "root", domain.RoleAdmin)

	for _, q := range []string{"abc", "0.5", "7"} {
		rec := s.do(t, http.MethodGet, "/api/v1/reports/high-rating-authors?threshold="+q, admin, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestWriteEndpoints_RateLimited(t *testing.T) {
	limiter := middleware.NewLocalLimiter(1, 1, time.Minute)
	t.Cleanup(limiter.Close)
	s := newTestServer(t, limiter)
	admin := s.token(t, "root", domain.RoleAdmin)

	first := s.do(t, http.MethodPost, "/api/v1/sites", admin, map[string]any{
		"name": "Alpha", "link": "https://alpha.example", "theme": "Food", "developer": "Ana",
	})
	second := s.do(t, http.MethodPost, "/api/v1/sites", admin, map[string]any{
		"name": "Beta", "link": "https://beta.example", "theme": "Food", "developer": "Ana",
	})

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// Reads are not throttled.
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/sites", "", nil).Code)
}
