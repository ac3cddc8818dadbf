package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elskow/crm-auth/internal/api"
	"github.com/elskow/crm-auth/internal/config"
)

func TestMiddleware(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now), WithRandom(never))
	policy := config.RateLimitPolicy{Window: time.Minute, MaxRequests: 2}

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	login := Middleware(l, "login", policy, ClientIP, zap.NewNop())(ok)
	reset := Middleware(l, "reset", policy, nil, zap.NewNop())(ok)

	call := func(h http.Handler, remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := call(login, "10.0.0.1:5000")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	// Same host, different source port.
	rec = call(login, "10.0.0.1:5001")
	assert.Equal(t, http.StatusOK, rec.Code)

	clock.Advance(20 * time.Second)
	rec = call(login, "10.0.0.1:5002")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "40", rec.Header().Get("Retry-After"))

	var body api.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "rate_limited", body.Error.Kind)
	assert.EqualValues(t, 40, body.Error.Details["retry_after_seconds"])

	assert.Equal(t, http.StatusOK, call(login, "10.0.0.2:5000").Code)
	assert.Equal(t, http.StatusOK, call(reset, "10.0.0.1:5000").Code)

	clock.Advance(40 * time.Second)
	assert.Equal(t, http.StatusOK, call(login, "10.0.0.1:5003").Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		want   string
	}{
		{"ipv4 with port", "192.168.1.10:1234", "192.168.1.10"},
		{"ipv6 with port", "[::1]:8080", "::1"},
		{"no port", "192.168.1.10", "192.168.1.10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
