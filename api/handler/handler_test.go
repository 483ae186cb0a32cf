package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/partsfetch/classify"
	"github.com/use-agent/partsfetch/config"
	"github.com/use-agent/partsfetch/engine"
	"github.com/use-agent/partsfetch/models"
	"github.com/use-agent/partsfetch/proxy"
	"github.com/use-agent/partsfetch/sample"
)

const testVIN = "1HGCM82633A004352"

func init() {
	gin.SetMode(gin.TestMode)
}

// stubEngine answers every fetch with the same page or error.
type stubEngine struct {
	name     string
	html     string
	finalURL string
	cookies  []*http.Cookie
	err      error

	mu   sync.Mutex
	reqs []*engine.FetchRequest
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) Fetch(_ context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	final := s.finalURL
	if final == "" {
		final = req.URL
	}
	return &engine.FetchResult{HTML: s.html, StatusCode: 200, FinalURL: final, Cookies: s.cookies}, nil
}

func catalogPage() string {
	return `<html><head><title>Partsouq - ` + testVIN + `</title></head><body>` +
		`<p>Honda Accord catalog for ` + testVIN + `</p>` +
		`<a href="/en/catalog/genuine/vehicle?c=Honda">Honda Accord</a>` +
		strings.Repeat(" ", 25*1024) + `</body></html>`
}

const challengeHTML = `<html><head><title>Just a moment...</title></head><body>Checking your browser</body></html>`

func newDeps(t *testing.T, table string, engines ...engine.Engine) *Deps {
	t.Helper()
	strategies, err := config.ParseStrategies(table)
	require.NoError(t, err)

	cfg := &config.Config{
		Target: config.TargetConfig{
			BaseURL:         "https://partsouq.com",
			SearchPath:      "/en/search/all?q=%s",
			SiteMarker:      "partsouq",
			CatalogSelector: `a[href*="/catalog/genuine/"]`,
		},
		Classifier: config.ClassifierConfig{
			MinContentBytes:  20480,
			ChallengeMarkers: config.DefaultChallengeMarkers,
			BlockMarkers:     config.DefaultBlockMarkers,
		},
		Fetch: config.FetchConfig{
			MaxConcurrent:  2,
			MaxAttempts:    5,
			HTTPTimeout:    time.Second,
			BrowserTimeout: time.Second,
			APITimeout:     time.Second,
			UserAgents:     []string{"test-agent"},
			Strategies:     strategies,
		},
		Sample: config.SampleConfig{Length: 100, DebugLength: 1000, Mode: sample.ModeRaw},
	}

	cls, err := classify.New(cfg.Classifier, cfg.Target)
	require.NoError(t, err)
	pool, err := proxy.NewPool(cfg.Proxy)
	require.NoError(t, err)
	limiter := engine.NewLimiter(cfg.Fetch.MaxConcurrent, nil)

	return &Deps{
		Config:     cfg,
		Dispatcher: engine.NewDispatcher(cfg.Fetch, engines, cls, pool, limiter, nil),
		Classifier: cls,
		Limiter:    limiter,
		Proxies:    pool,
		Sampler:    sample.New(),
		StartTime:  time.Now(),
	}
}

func serve(h gin.HandlerFunc, method, pattern, target string, body any) *httptest.ResponseRecorder {
	r := gin.New()
	r.Handle(method, pattern, h)

	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestScrapeVIN_Success(t *testing.T) {
	sess := &stubEngine{
		name:     "session",
		html:     catalogPage(),
		finalURL: "https://partsouq.com/en/catalog/genuine/vehicle?c=Honda&ssd=$ABC$",
	}
	d := newDeps(t, "s:session:direct:static:0s", sess)

	w := serve(ScrapeVIN(d), http.MethodGet, "/scrape/:vin", "/scrape/"+strings.ToLower(testVIN), nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.ScrapeResponse](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, testVIN, resp.Identifier)
	assert.Equal(t, "https://partsouq.com/en/search/all?q="+testVIN, resp.URL)
	assert.Equal(t, "s", resp.Strategy)
	assert.Equal(t, "session", resp.Transport)
	assert.Equal(t, "$ABC$", resp.SSDParam)
	assert.Nil(t, resp.Error)

	require.NotNil(t, resp.Analysis)
	assert.True(t, resp.Analysis.HasSiteMarker)
	assert.True(t, resp.Analysis.HasIdentifier)
	assert.True(t, resp.Analysis.HasCatalog)
	assert.False(t, resp.Analysis.HasChallenge)

	assert.NotEmpty(t, resp.SampleContent)
	assert.LessOrEqual(t, len([]rune(resp.SampleContent)), 100)

	require.Len(t, resp.Attempts, 1)
	assert.Equal(t, "success", resp.Attempts[0].Outcome)
}

func TestScrapeVIN_FailureIsStill200(t *testing.T) {
	sess := &stubEngine{name: "session", html: challengeHTML}
	httpEng := &stubEngine{name: "http", err: &engine.StatusError{StatusCode: 403, URL: "https://partsouq.com/", Body: "Access denied"}}
	d := newDeps(t, "s:session:direct:static:0s,h:http:direct:static:0s,b:browser:direct:render:1s", sess, httpEng)

	w := serve(ScrapeVIN(d), http.MethodGet, "/scrape/:vin", "/scrape/"+testVIN, nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.ScrapeResponse](t, w)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.ErrCodeUpstreamStatus, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "all 2 strategies failed")
	assert.Equal(t, 403, resp.StatusCode)

	require.Len(t, resp.Attempts, 3)
	assert.Equal(t, "blocked", resp.Attempts[0].Outcome)
	assert.Contains(t, resp.Attempts[0].Reason, "challenge page")
	assert.Equal(t, "error", resp.Attempts[1].Outcome)
	assert.Equal(t, "skipped", resp.Attempts[2].Outcome)
	assert.Equal(t, "transport browser unavailable", resp.Attempts[2].Reason)
}

func TestScrapeVIN_InvalidInput(t *testing.T) {
	d := newDeps(t, "s:session:direct:static:0s", &stubEngine{name: "session"})

	tests := []struct {
		name   string
		target string
	}{
		{"short vin", "/scrape/ABC123"},
		{"forbidden letters", "/scrape/1HGCM82633A00435O"},
		{"bad sample mode", "/scrape/" + testVIN + "?sample=pdf"},
		{"bad render flag", "/scrape/" + testVIN + "?render=maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(ScrapeVIN(d), http.MethodGet, "/scrape/:vin", tt.target, nil)
			require.Equal(t, http.StatusBadRequest, w.Code)
			resp := decode[models.ErrorResponse](t, w)
			assert.Equal(t, models.ErrCodeInvalidInput, resp.Error.Code)
		})
	}
}

func TestScrapeVIN_RenderFilter(t *testing.T) {
	sess := &stubEngine{name: "session", html: catalogPage()}
	browser := &stubEngine{name: "browser", html: catalogPage()}
	d := newDeps(t, "s:session:direct:static:0s,b:browser:direct:render:1s", sess, browser)

	w := serve(ScrapeVIN(d), http.MethodGet, "/scrape/:vin", "/scrape/"+testVIN+"?render=true", nil)
	resp := decode[models.ScrapeResponse](t, w)

	assert.True(t, resp.Success)
	assert.Equal(t, "b", resp.Strategy)
	assert.Empty(t, sess.reqs)
}

func TestScrapeURL(t *testing.T) {
	sess := &stubEngine{name: "session", html: catalogPage()}
	d := newDeps(t, "s:session:direct:static:0s", sess)

	w := serve(ScrapeURL(d), http.MethodPost, "/scrape-url", "/scrape-url",
		map[string]any{"url": "https://partsouq.com/en/catalog/genuine/vehicle?c=Honda", "sample": "text"})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.ScrapeResponse](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "https://partsouq.com/en/catalog/genuine/vehicle?c=Honda", resp.URL)
	assert.Contains(t, resp.SampleContent, "Honda")
}

func TestScrapeURL_Invalid(t *testing.T) {
	d := newDeps(t, "s:session:direct:static:0s", &stubEngine{name: "session"})

	for _, body := range []map[string]any{
		{},
		{"url": "not a url"},
		{"url": "ftp://partsouq.com/"},
	} {
		w := serve(ScrapeURL(d), http.MethodPost, "/scrape-url", "/scrape-url", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, fmt.Sprint(body))
	}
}

func TestTestSite(t *testing.T) {
	sess := &stubEngine{name: "session", html: catalogPage()}
	d := newDeps(t, "s:session:direct:static:0s", sess)

	w := serve(TestSite(d), http.MethodGet, "/test-site", "/test-site", nil)
	resp := decode[models.ScrapeResponse](t, w)

	assert.True(t, resp.Success)
	assert.Equal(t, "https://partsouq.com/", resp.URL)
}

func TestDebugScrape(t *testing.T) {
	sess := &stubEngine{name: "session", html: challengeHTML}
	browser := &stubEngine{name: "browser", html: catalogPage()}
	d := newDeps(t, "s:session:direct:static:0s,b:browser:direct:render:1s", sess, browser)

	t.Run("named strategy", func(t *testing.T) {
		w := serve(DebugScrape(d), http.MethodGet, "/debug-scrape/:vin", "/debug-scrape/"+testVIN+"?strategy=b", nil)
		resp := decode[models.ScrapeResponse](t, w)
		assert.True(t, resp.Success)
		assert.Equal(t, "b", resp.Strategy)
		assert.Greater(t, len([]rune(resp.SampleContent)), 100)
	})

	t.Run("first runnable by default", func(t *testing.T) {
		w := serve(DebugScrape(d), http.MethodGet, "/debug-scrape/:vin", "/debug-scrape/"+testVIN, nil)
		resp := decode[models.ScrapeResponse](t, w)
		assert.False(t, resp.Success)
		assert.Equal(t, "s", resp.Strategy)
		require.NotNil(t, resp.Analysis)
		assert.True(t, resp.Analysis.HasChallenge)
		assert.Equal(t, models.ErrCodeBlocked, resp.Error.Code)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		w := serve(DebugScrape(d), http.MethodGet, "/debug-scrape/:vin", "/debug-scrape/"+testVIN+"?strategy=nope", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRootAndHealth(t *testing.T) {
	d := newDeps(t, "s:session:direct:static:0s,b:browser:direct:render:1s", &stubEngine{name: "session"})

	w := serve(Root(d), http.MethodGet, "/", "/", nil)
	root := decode[models.RootResponse](t, w)
	assert.Equal(t, "partsfetch", root.Name)
	assert.Equal(t, []string{"s", "b"}, root.Strategies)
	assert.False(t, root.ProxyConfigured)
	assert.False(t, root.APIKeyConfigured)

	w = serve(Health(d), http.MethodGet, "/health", "/health", nil)
	health := decode[models.HealthResponse](t, w)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 2, health.Limiter.Capacity)
	assert.False(t, health.BrowserReady)
	assert.NotZero(t, health.Timestamp)
}

func TestTestProxy_NotConfigured(t *testing.T) {
	d := newDeps(t, "s:session:direct:static:0s", &stubEngine{name: "session"})

	w := serve(TestProxy(d), http.MethodGet, "/test-proxy", "/test-proxy", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[models.ProxyTestResponse](t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "not_configured", resp.ProxyStatus)
}

func TestTestProxy_Working(t *testing.T) {
	fakeProxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"origin":"203.0.113.7"}`)
	}))
	defer fakeProxy.Close()

	d := newDeps(t, "s:session:direct:static:0s", &stubEngine{name: "session"})
	pool, err := proxy.NewPool(config.ProxyConfig{
		Endpoints: []string{strings.Replace(fakeProxy.URL, "http://", "http://user:s3cr3t@", 1)},
	})
	require.NoError(t, err)
	d.Proxies = pool
	d.Config.Proxy.CheckURL = "http://ip-echo.invalid/ip"

	w := serve(TestProxy(d), http.MethodGet, "/test-proxy", "/test-proxy", nil)
	resp := decode[models.ProxyTestResponse](t, w)

	assert.True(t, resp.Success)
	assert.Equal(t, "working", resp.ProxyStatus)
	assert.Equal(t, "203.0.113.7", resp.IPAddress)
	assert.NotContains(t, w.Body.String(), "s3cr3t")
}

func TestQuota(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		d := newDeps(t, "s:session:direct:static:0s", &stubEngine{name: "session"})
		w := serve(Quota(d), http.MethodGet, "/quota", "/quota", nil)
		resp := decode[models.QuotaResponse](t, w)
		assert.False(t, resp.Success)
		assert.Equal(t, models.ErrCodeNotConfigured, resp.Error.Code)
	})

	t.Run("usage", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"max_api_credit":1000,"used_api_credit":250,"max_concurrency":5,"current_concurrency":1}`)
		}))
		defer srv.Close()

		d := newDeps(t, "s:session:direct:static:0s", &stubEngine{name: "session"})
		d.API = engine.NewAPIEngine(srv.URL, "key", "")

		w := serve(Quota(d), http.MethodGet, "/quota", "/quota", nil)
		resp := decode[models.QuotaResponse](t, w)
		assert.True(t, resp.Success)
		assert.Equal(t, int64(750), resp.RemainingAPICredit)
	})

	t.Run("upstream error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		d := newDeps(t, "s:session:direct:static:0s", &stubEngine{name: "session"})
		d.API = engine.NewAPIEngine(srv.URL, "bad", "")

		w := serve(Quota(d), http.MethodGet, "/quota", "/quota", nil)
		resp := decode[models.QuotaResponse](t, w)
		assert.False(t, resp.Success)
		assert.Equal(t, models.ErrCodeUpstreamStatus, resp.Error.Code)
	})
}

func TestSolver(t *testing.T) {
	expires := time.Unix(1893456000, 0)
	browser := &stubEngine{
		name:    "browser",
		html:    catalogPage(),
		cookies: []*http.Cookie{{Name: "cf_clearance", Value: "abc", Domain: ".partsouq.com", Path: "/", Expires: expires}},
	}
	sess := &stubEngine{name: "session", html: catalogPage()}
	d := newDeps(t, "s:session:direct:static:0s,b:browser:direct:render:1s", sess, browser)

	w := serve(Solver(d), http.MethodPost, "/v1", "/v1", map[string]any{
		"cmd":        "request.get",
		"url":        "https://partsouq.com/en/",
		"maxTimeout": 30000,
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.SolverResponse](t, w)
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Solution)
	assert.Equal(t, "https://partsouq.com/en/", resp.Solution.URL)
	assert.Equal(t, "test-agent", resp.Solution.UserAgent)
	require.Len(t, resp.Solution.Cookies, 1)
	assert.Equal(t, float64(expires.Unix()), resp.Solution.Cookies[0].Expires)
	assert.GreaterOrEqual(t, resp.EndTimestamp, resp.StartTimestamp)

	assert.Empty(t, sess.reqs)
	require.Len(t, browser.reqs, 1)
	assert.Equal(t, 30*time.Second, browser.reqs[0].Timeout)
}

func TestSolver_Errors(t *testing.T) {
	browser := &stubEngine{name: "browser", err: errors.New("navigation failed")}
	d := newDeps(t, "b:browser:direct:render:1s", browser)

	w := serve(Solver(d), http.MethodPost, "/v1", "/v1", map[string]any{"cmd": "sessions.create", "url": "https://partsouq.com/"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(Solver(d), http.MethodPost, "/v1", "/v1", map[string]any{"cmd": "request.get", "url": "https://partsouq.com/"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[models.SolverResponse](t, w)
	assert.Equal(t, "error", resp.Status)
	assert.Nil(t, resp.Solution)
	assert.Contains(t, resp.Message, "navigation failed")
}

func TestQuick(t *testing.T) {
	sess := &stubEngine{
		name:     "session",
		html:     catalogPage(),
		finalURL: "https://partsouq.com/en/catalog/genuine/vehicle?c=Honda&ssd=$XYZ$",
	}
	d := newDeps(t, "s:session:direct:static:0s", sess)

	w := serve(Quick(d), http.MethodPost, "/quick", "/quick", map[string]any{"url": "https://partsouq.com/en/search/all?q=" + testVIN})
	resp := decode[models.QuickResponse](t, w)

	assert.True(t, resp.Success)
	assert.True(t, resp.HasSSD)
	assert.Equal(t, "$XYZ$", resp.SSDParam)
	assert.Equal(t, quickTimeout, sess.reqs[0].Timeout)

	w = serve(Quick(d), http.MethodPost, "/quick", "/quick", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		outcome classify.Outcome
		want    string
	}{
		{classify.Blocked{Reason: classify.ReasonChallenge}, models.ErrCodeBlocked},
		{classify.TransportError{Class: classify.ErrTimeout}, models.ErrCodeTimeout},
		{classify.TransportError{Class: classify.ErrNetwork}, models.ErrCodeNetwork},
		{classify.TransportError{Class: classify.ErrUpstreamStatus}, models.ErrCodeUpstreamStatus},
		{classify.TransportError{Class: classify.ErrBrowser}, models.ErrCodeBrowser},
		{classify.TransportError{Class: classify.ErrConfig}, models.ErrCodeNotConfigured},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, errorCode(tt.outcome))
		})
	}
}

func TestSolver_AnyURL(t *testing.T) {
	// A small third-party page with no vendor branding is still solved.
	page := `<html><head><title>Example Domain</title></head><body><p>Example Domain</p></body></html>`
	browser := &stubEngine{name: "browser", html: page}
	d := newDeps(t, "b:browser:direct:render:1s", browser)

	w := serve(Solver(d), http.MethodPost, "/v1", "/v1", map[string]any{
		"cmd": "request.get",
		"url": "https://example.com/",
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.SolverResponse](t, w)
	assert.Equal(t, "ok", resp.Status, resp.Message)
	require.NotNil(t, resp.Solution)
	assert.Equal(t, page, resp.Solution.Response)

	require.Len(t, browser.reqs, 1)
	assert.False(t, browser.reqs[0].Settle)
}

func TestSolver_ChallengeStillFails(t *testing.T) {
	browser := &stubEngine{name: "browser", html: challengeHTML}
	d := newDeps(t, "b:browser:direct:render:1s", browser)

	w := serve(Solver(d), http.MethodPost, "/v1", "/v1", map[string]any{
		"cmd": "request.get",
		"url": "https://example.com/",
	})
	resp := decode[models.SolverResponse](t, w)
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Message, "challenge page")
}

func TestQuick_AnyURL(t *testing.T) {
	sess := &stubEngine{name: "session", html: `<html><body>ok</body></html>`}
	d := newDeps(t, "s:session:direct:static:0s", sess)

	w := serve(Quick(d), http.MethodPost, "/quick", "/quick", map[string]any{"url": "https://example.com/?ssd=XYZ"})
	resp := decode[models.QuickResponse](t, w)

	assert.True(t, resp.Success)
	assert.True(t, resp.HasSSD)
	assert.Equal(t, "XYZ", resp.SSDParam)
}

func TestScrapeURL_VendorHostKeepsFullVerdict(t *testing.T) {
	sess := &stubEngine{name: "session", html: `<html><body>partsouq</body></html>`}
	d := newDeps(t, "s:session:direct:static:0s", sess)

	w := serve(ScrapeURL(d), http.MethodPost, "/scrape-url", "/scrape-url", map[string]any{"url": "https://www.partsouq.com/en/"})
	resp := decode[models.ScrapeResponse](t, w)

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.ErrCodeBlocked, resp.Error.Code)
	require.Len(t, sess.reqs, 1)
	assert.True(t, sess.reqs[0].Settle)
}
