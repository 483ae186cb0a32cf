package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/partsfetch/api/handler"
	"github.com/use-agent/partsfetch/classify"
	"github.com/use-agent/partsfetch/config"
	"github.com/use-agent/partsfetch/engine"
	"github.com/use-agent/partsfetch/metrics"
	"github.com/use-agent/partsfetch/proxy"
	"github.com/use-agent/partsfetch/sample"
)

type pageEngine struct{ html string }

func (pageEngine) Name() string { return config.TransportSession }

func (e pageEngine) Fetch(_ context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	return &engine.FetchResult{HTML: e.html, StatusCode: 200, FinalURL: req.URL}, nil
}

func newTestRouter(t *testing.T, auth bool) (*gin.Engine, *prometheus.Registry) {
	t.Helper()
	strategies, err := config.ParseStrategies("s:session:direct:static:0s")
	require.NoError(t, err)

	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: gin.TestMode},
		Auth:      config.AuthConfig{Enabled: auth, APIKeys: []string{"secret-key"}},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
		Target: config.TargetConfig{
			BaseURL:    "https://partsouq.com",
			SearchPath: "/en/search/all?q=%s",
			SiteMarker: "partsouq",
		},
		Classifier: config.ClassifierConfig{
			MinContentBytes:  1024,
			ChallengeMarkers: config.DefaultChallengeMarkers,
			BlockMarkers:     config.DefaultBlockMarkers,
		},
		Fetch: config.FetchConfig{
			MaxConcurrent: 1,
			MaxAttempts:   3,
			HTTPTimeout:   time.Second,
			Strategies:    strategies,
		},
		Sample: config.SampleConfig{Length: 50, DebugLength: 200, Mode: sample.ModeRaw},
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, reg)

	cls, err := classify.New(cfg.Classifier, cfg.Target)
	require.NoError(t, err)
	pool, err := proxy.NewPool(cfg.Proxy)
	require.NoError(t, err)
	limiter := engine.NewLimiter(cfg.Fetch.MaxConcurrent, m)

	page := "<html><title>Partsouq</title><body>" + strings.Repeat("x", 2048) + "</body></html>"
	d := &handler.Deps{
		Config:     cfg,
		Dispatcher: engine.NewDispatcher(cfg.Fetch, []engine.Engine{pageEngine{html: page}}, cls, pool, limiter, m),
		Classifier: cls,
		Limiter:    limiter,
		Proxies:    pool,
		Sampler:    sample.New(),
		StartTime:  time.Now(),
	}
	return NewRouter(d, m), reg
}

func get(r http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicRoutesSkipAuth(t *testing.T) {
	r, _ := newTestRouter(t, true)

	for _, path := range []string{"/", "/health", "/metrics"} {
		w := get(r, path, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"), path)
	}
}

func TestRouter_ProtectedRoutesNeedKey(t *testing.T) {
	r, _ := newTestRouter(t, true)

	w := get(r, "/scrape/1HGCM82633A004352", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(r, "/scrape/1HGCM82633A004352", map[string]string{"X-API-Key": "secret-key"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
}

func TestRouter_Aliases(t *testing.T) {
	r, _ := newTestRouter(t, false)

	for _, path := range []string{"/scrape/", "/scrape-simple/", "/scrape-advanced/"} {
		w := get(r, path+"1HGCM82633A004352", nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Contains(t, w.Body.String(), `"identifier":"1HGCM82633A004352"`, path)
	}
}

func TestRouter_MetricsAfterScrape(t *testing.T) {
	r, _ := newTestRouter(t, false)

	get(r, "/scrape/1HGCM82633A004352", nil)
	w := get(r, "/metrics", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `partsfetch_attempts_total{outcome="success",strategy="s"} 1`)
	assert.Contains(t, w.Body.String(), `partsfetch_requests_total{outcome="success"} 1`)
}
