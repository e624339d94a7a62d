package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JonMunkholm/intake/internal/config"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(r.RemoteAddr))
})

func TestAPIKeyAuth(t *testing.T) {
	cfg := config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1", "k2"}}
	h := APIKeyAuth(cfg, "/healthz")(ok)

	tests := []struct {
		name string
		path string
		key  string
		want int
	}{
		{"missing key", "/api/staging", "", http.StatusUnauthorized},
		{"wrong key", "/api/staging", "nope", http.StatusForbidden},
		{"second key", "/api/staging", "k2", http.StatusOK},
		{"open path", "/healthz", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.key != "" {
				req.Header.Set(APIKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	t.Run("bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/staging", nil)
		req.Header.Set("Authorization", "Bearer k1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		req.Header.Set("Authorization", "Basic k1")
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		rec := httptest.NewRecorder()
		APIKeyAuth(config.SecurityConfig{})(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/staging", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestTrustedRealIP(t *testing.T) {
	h := TrustedRealIP([]string{"10.0.0.0/8", "192.168.1.5", "bogus"})(ok)

	tests := []struct {
		name   string
		remote string
		header string
		value  string
		want   string
	}{
		{"trusted proxy real ip", "10.1.2.3:5555", "X-Real-IP", "203.0.113.7", "203.0.113.7"},
		{"trusted single address forwarded", "192.168.1.5:80", "X-Forwarded-For", "198.51.100.2, 10.0.0.1", "198.51.100.2"},
		{"untrusted client spoofing", "203.0.113.9:4000", "X-Real-IP", "1.1.1.1", "203.0.113.9:4000"},
		{"garbage header ignored", "10.1.2.3:5555", "X-Real-IP", "not-an-ip", "10.1.2.3:5555"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			req.Header.Set(tt.header, tt.value)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "buckets are per ip")

	now = now.Add(30 * time.Second)
	assert.True(t, rl.Allow("a"), "one token refills every 30s")

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, rl.Sweep())
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	h := rl.Middleware(ok)

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/staging", nil)
		req.RemoteAddr = "198.51.100.4:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do().Code)
	rec := do()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE001")
}

func TestLoggerCapturesStatus(t *testing.T) {
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hi"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "hi", rec.Body.String())
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, levelFor(http.StatusOK))
	assert.Equal(t, slog.LevelWarn, levelFor(http.StatusConflict))
	assert.Equal(t, slog.LevelError, levelFor(http.StatusServiceUnavailable))
}
