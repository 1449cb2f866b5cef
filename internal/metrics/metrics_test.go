package metrics

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withGlobal(t *testing.T) *Metrics {
	t.Helper()

	m := New()
	SetGlobal(m)
	t.Cleanup(func() { SetGlobal(nil) })
	return m
}

func TestGlobalMetrics(t *testing.T) {
	assert.Nil(t, Global())

	m := withGlobal(t)
	assert.Same(t, m, Global())
}

func TestHelpersWithoutGlobal(t *testing.T) {
	// Must not panic when metrics are disabled
	IncEmailsSent("log")
	IncEmailsFailed("log")
	RunStarted()
	RunFinished("all_sent", 1)
	ObserveGeneration("ok", 1)
	IncRateLimitExceeded("global")
}

func TestEmailCounters(t *testing.T) {
	m := withGlobal(t)

	IncEmailsSent("resend")
	IncEmailsSent("resend")
	IncEmailsFailed("resend")
	IncEmailsSent("smtp")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmailsSentTotal.WithLabelValues("resend")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsFailedTotal.WithLabelValues("resend")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsSentTotal.WithLabelValues("smtp")))
}

func TestRunLifecycle(t *testing.T) {
	m := withGlobal(t)

	RunStarted()
	RunStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DispatchRunsActive))

	RunFinished("partial_failure", 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchRunsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchRunsTotal.WithLabelValues("partial_failure")))
}

func TestRateLimitAndGeneration(t *testing.T) {
	m := withGlobal(t)

	IncRateLimitExceeded("owner")
	ObserveGeneration("error", 0.5)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitExceededTotal.WithLabelValues("owner")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationRequestsTotal.WithLabelValues("error")))
}

func TestHandler(t *testing.T) {
	m := withGlobal(t)
	IncEmailsSent("sandbox")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `clientdesk_emails_sent_total{provider="sandbox"} 1`)
}

func TestHTTPMiddleware(t *testing.T) {
	m := withGlobal(t)

	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Get("/api/v1/clients/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	for _, path := range []string{"/api/v1/clients/a", "/api/v1/clients/b", "/ok"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("GET", "/api/v1/clients/{id}", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("GET", "/ok", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.APIErrorsTotal.WithLabelValues("not_found")))
}

func TestNormalizePathFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/runs/123e4567-e89b-12d3-a456-426614174000/cancel", nil)
	assert.Equal(t, "/runs/{id}/cancel", normalizePath(req))
}

func TestCategorizeStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{500, "server_error"},
		{502, "server_error"},
		{429, "rate_limited"},
		{401, "auth_error"},
		{403, "auth_error"},
		{404, "not_found"},
		{400, "bad_request"},
		{422, "bad_request"},
		{409, "client_error"},
		{200, "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, categorizeStatus(tt.status), "status %d", tt.status)
	}
}

func TestCollector(t *testing.T) {
	m := New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewCollector(m, func() int64 { return 4096 }, time.Hour, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.StorageUsedBytes) == 4096
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.UptimeSeconds), 0.0)
}
