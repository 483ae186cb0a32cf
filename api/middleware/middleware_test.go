package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/partsfetch/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextKeyAPIKey))
	})
	return r
}

func do(r http.Handler, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	r := newEngine(Auth([]string{"key-one", "key-two"}))

	tests := []struct {
		name     string
		headers  map[string]string
		wantCode int
		wantBody string
	}{
		{"missing", nil, http.StatusUnauthorized, "missing API key"},
		{"invalid", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized, "invalid API key"},
		{"header", map[string]string{"X-API-Key": "key-one"}, http.StatusOK, "key-one"},
		{"bearer", map[string]string{"Authorization": "Bearer key-two"}, http.StatusOK, "key-two"},
		{"basic is ignored", map[string]string{"Authorization": "Basic key-two"}, http.StatusUnauthorized, "missing API key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.headers)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestAuth_NoKeysIsOpen(t *testing.T) {
	w := do(newEngine(Auth([]string{""})), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit(t *testing.T) {
	r := newEngine(RateLimit(config.RateLimitConfig{RequestsPerSecond: 0.01, Burst: 2}))

	assert.Equal(t, http.StatusOK, do(r, nil).Code)
	assert.Equal(t, http.StatusOK, do(r, nil).Code)

	w := do(r, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimit_PerIdentity(t *testing.T) {
	r := newEngine(Auth([]string{"a", "b"}), RateLimit(config.RateLimitConfig{RequestsPerSecond: 0.01, Burst: 1}))

	assert.Equal(t, http.StatusOK, do(r, map[string]string{"X-API-Key": "a"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, map[string]string{"X-API-Key": "a"}).Code)
	assert.Equal(t, http.StatusOK, do(r, map[string]string{"X-API-Key": "b"}).Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	r := newEngine(RateLimit(config.RateLimitConfig{}))
	for i := 0; i < 20; i++ {
		require.Equal(t, http.StatusOK, do(r, nil).Code)
	}
}

func TestLimiterSet_Sweep(t *testing.T) {
	set := &limiterSet{limiters: map[string]*limiterEntry{}, rps: 1, burst: 1}
	now := time.Now()
	set.get("old", now.Add(-2*time.Hour))
	set.get("new", now)

	set.sweep(now.Add(-time.Hour))

	assert.NotContains(t, set.limiters, "old")
	assert.Contains(t, set.limiters, "new")
}

func TestRequestID(t *testing.T) {
	r := newEngine(RequestID())

	w := do(r, nil)
	_, err := uuid.Parse(w.Header().Get(HeaderRequestID))
	assert.NoError(t, err)

	w = do(r, map[string]string{HeaderRequestID: "caller-id-1"})
	assert.Equal(t, "caller-id-1", w.Header().Get(HeaderRequestID))

	w = do(r, map[string]string{HeaderRequestID: strings.Repeat("x", 500)})
	_, err = uuid.Parse(w.Header().Get(HeaderRequestID))
	assert.NoError(t, err)
}
