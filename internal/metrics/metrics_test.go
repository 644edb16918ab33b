package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/organizations/{orgID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/organizations/"+id, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/organizations/{orgID}", "418")))
}

func TestCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.InvitationEvent("created")
	m.InvitationsExpired(3)
	m.InvitationsExpired(0)
	m.AuditFailure()
	m.RateLimited("auth")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvitationEventsTotal.WithLabelValues("created")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.InvitationEventsTotal.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditFailuresTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitedTotal.WithLabelValues("auth")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.InvitationEvent("created")
	m.AuditFailure()
	m.RateLimited("auth")
	m.RegisterGaugeFunc("x", "x", func() float64 { return 1 })

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerExposesGaugeFunc(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RegisterGaugeFunc("settings_cache_entries", "entries", func() float64 { return 7 })

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tenantkit_settings_cache_entries 7")
}
