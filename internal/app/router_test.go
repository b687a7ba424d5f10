package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/access"
	"github.com/odyssey-erp/odyssey-stock/internal/observability"
	"github.com/odyssey-erp/odyssey-stock/jobs"
)

func newTestRouter(t *testing.T) (http.Handler, *access.TokenParser) {
	t.Helper()
	parser, err := access.NewTokenParser("0123456789abcdef", "odyssey")
	require.NoError(t, err)
	logger := slog.New(slog.DiscardHandler)
	return NewRouter(RouterParams{
		Logger:     logger,
		Config:     &Config{AppRequestTimeout: time.Second, RateLimitPerMinute: 1000},
		Access:     access.Middleware{Parser: parser, Logger: logger},
		JobHandler: jobs.NewHandler(nil, logger),
		Metrics:    observability.NewMetrics(),
	}), parser
}

func TestHealthzIsPublic(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestJobsRequireElevatedToken(t *testing.T) {
	router, parser := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	staff, err := parser.Issue(access.Principal{ID: 7, Role: access.RoleSalesStaff, WarehouseScope: []int64{1}}, time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/jobs/health", nil)
	req.Header.Set("Authorization", "Bearer "+staff)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)

	admin, err := parser.Issue(access.Principal{ID: 1, Role: access.RoleAdmin}, time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/jobs/health", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Equal(t, jobs.QueueDefault, body["queue"])
}

func TestUnknownRouteIsProblem(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}
