package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func requestCount(service, method, path, status string) float64 {
	return testutil.ToFloat64(httpRequestsTotal.With(prometheus.Labels{
		"service": service, "method": method, "path": path, "status": status,
	}))
}

func TestPrometheusMetrics_LabelsByRoutePattern(t *testing.T) {
	const svc = "metrics-route-test"
	r := chi.NewRouter()
	r.Use(PrometheusMetrics(svc))
	r.Get("/api/v1/sites/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("{}"))
	})

	for _, id := range []string{"a", "b", "missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/sites/"+id, nil))
	}

	assert.Equal(t, 2.0, requestCount(svc, http.MethodGet, "/api/v1/sites/{id}", "200"))
	assert.Equal(t, 1.0, requestCount(svc, http.MethodGet, "/api/v1/sites/{id}", "404"))
	assert.Equal(t, 0.0, testutil.ToFloat64(httpRequestsInFlight.WithLabelValues(svc)))
}

func TestPrometheusMetrics_Unmatched(t *testing.T) {
	const svc = "metrics-unmatched-test"
	r := chi.NewRouter()
	r.Use(PrometheusMetrics(svc))
	r.Get("/api/v1/sites", func(http.ResponseWriter, *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, 1.0, requestCount(svc, http.MethodGet, "unmatched", "404"))
}

func TestPrometheusMetrics_CountsInFlight(t *testing.T) {
	const svc = "metrics-inflight-test"
	var during float64
	h := PrometheusMetrics(svc)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		during = testutil.ToFloat64(httpRequestsInFlight.WithLabelValues(svc))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, 1.0, during)
	assert.Equal(t, 0.0, testutil.ToFloat64(httpRequestsInFlight.WithLabelValues(svc)))
}
