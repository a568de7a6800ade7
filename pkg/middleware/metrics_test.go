package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMetricsRouter(t *testing.T, status int) (*HTTPMetrics, *chi.Mux) {
	t.Helper()
	m := NewHTTPMetrics(prometheus.NewRegistry(), "auth")
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/auth/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	return m, r
}

func TestHTTPMetrics_CountsByRoutePattern(t *testing.T) {
	m, r := newMetricsRouter(t, http.StatusOK)

	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/users/"+id, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	got := testutil.ToFloat64(m.total.WithLabelValues(http.MethodGet, "/auth/users/{id}", "200"))
	assert.Equal(t, float64(3), got)
	assert.Equal(t, 1, testutil.CollectAndCount(m.total))
}

func TestHTTPMetrics_CapturesStatus(t *testing.T) {
	m, r := newMetricsRouter(t, http.StatusForbidden)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/auth/users/9", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.total.WithLabelValues(http.MethodGet, "/auth/users/{id}", "403")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestHTTPMetrics_InFlightReturnsToZero(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry(), "auth")
	var during float64
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = testutil.ToFloat64(m.inFlight)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, float64(1), during)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.inFlight))
}

func TestHTTPMetrics_UnmatchedRoute(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry(), "auth")
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.total.WithLabelValues(http.MethodGet, "unmatched", "200")))
}
