package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covidboard/covidboard/internal/observability"
	"github.com/covidboard/covidboard/jobs"
)

func TestRouterHealthz(t *testing.T) {
	ready := false
	router := NewRouter(RouterParams{Config: &Config{}, Ready: func() bool { return ready }})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	ready = true
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))
}

func TestRouterServesStaticAssets(t *testing.T) {
	router := NewRouter(RouterParams{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/css/dashboard.css", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/css"))
}

func TestRouterMetricsAndJobs(t *testing.T) {
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{Metrics: metrics, JobHandler: jobs.NewHandler(nil, nil)})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `covidboard_http_requests_total{code="200",route="/jobs/health"} 1`)
}
