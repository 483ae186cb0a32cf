package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/partsfetch/engine"
	"github.com/use-agent/partsfetch/models"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Fetch runs one browser attempt. It satisfies engine.BrowserFetchFunc.
//
// The attempt gets a fresh incognito context, routed through req.Proxy when
// set, and is torn down before Fetch returns.
func (s *Scraper) Fetch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	if !s.Ready() {
		return nil, models.NewScrapeError(models.ErrCodeBrowser, "browser not started", nil)
	}
	s.activePages.Add(1)
	defer s.activePages.Add(-1)

	// ── 1. Incognito context + page ──────────────────────────────────
	create := proto.TargetCreateBrowserContext{DisposeOnDetach: true}
	if req.Proxy != nil {
		create.ProxyServer = req.Proxy.ServerAddr()
	}
	bc, err := create.Call(s.browser)
	if err != nil {
		return nil, categorizeError(err, "failed to create browser context")
	}
	defer func() {
		err := proto.TargetDisposeBrowserContext{BrowserContextID: bc.BrowserContextID}.Call(s.browser)
		if err != nil {
			slog.Debug("dispose browser context failed", "error", err)
		}
	}()

	page, err := s.browser.Page(proto.TargetCreateTarget{
		URL:              "about:blank",
		BrowserContextID: bc.BrowserContextID,
	})
	if err != nil {
		return nil, categorizeError(err, "failed to open page")
	}
	defer func() { _ = page.Close() }()

	p := page.Context(ctx)

	// ── 2. Stealth ───────────────────────────────────────────────────
	if _, err := p.EvalOnNewDocument(stealth.JS); err != nil {
		return nil, categorizeError(err, "failed to inject stealth script")
	}
	if _, err := p.EvalOnNewDocument(shimJS); err != nil {
		return nil, categorizeError(err, "failed to inject shim script")
	}

	// ── 3. Identity: UA, viewport, headers ───────────────────────────
	if err := s.applyIdentity(p, req); err != nil {
		return nil, categorizeError(err, "failed to configure page")
	}

	// ── 4. Request interception ──────────────────────────────────────
	stop, err := intercept(ctx, page, s.blocked, req.Proxy)
	if err != nil {
		return nil, categorizeError(err, "failed to enable request interception")
	}
	defer stop()

	// ── 5. Navigate ──────────────────────────────────────────────────
	if err := p.Navigate(req.URL); err != nil {
		return nil, categorizeError(err, "navigation to target URL failed")
	}
	if err := p.WaitLoad(); err != nil {
		return nil, categorizeError(err, "page did not finish loading")
	}
	if err := sleepPage(p, req.Wait); err != nil {
		return nil, categorizeError(err, "wait after load interrupted")
	}

	// ── 6. Challenge wait ────────────────────────────────────────────
	html, err := p.HTML()
	if err != nil {
		return nil, categorizeError(err, "failed to extract page HTML")
	}
	html, err = waitChallenge(p, html, s.hasChallenge, s.cfg.ChallengeWait)
	if err != nil {
		return nil, categorizeError(err, "challenge wait interrupted")
	}

	// ── 7. Settle ────────────────────────────────────────────────────
	if req.Settle && (s.hasChallenge == nil || !s.hasChallenge(html)) {
		settle(p, s.catalogSelector, s.cfg.SettleTimeout)
		if current, err := p.HTML(); err == nil {
			html = current
		}
	}

	// ── 8. Collect ───────────────────────────────────────────────────
	result := &engine.FetchResult{
		HTML:       html,
		StatusCode: evalInt(p, navigationStatusJS),
		FinalURL:   req.URL,
	}
	if info, err := p.Info(); err == nil {
		result.FinalURL = info.URL
		result.Title = info.Title
	}
	if cookies, err := p.Cookies([]string{result.FinalURL}); err == nil {
		result.Cookies = toHTTPCookies(cookies)
	}

	slog.Debug("browser fetch complete",
		"url", req.URL,
		"finalURL", result.FinalURL,
		"status", result.StatusCode,
		"bytes", len(html),
	)

	// A challenge page keeps its content so the classifier reports it as
	// blocked; other error statuses become upstream status errors.
	if result.StatusCode >= 400 && (s.hasChallenge == nil || !s.hasChallenge(html)) {
		return nil, &engine.StatusError{StatusCode: result.StatusCode, URL: result.FinalURL, Body: html}
	}
	return result, nil
}

// applyIdentity sets the user agent, viewport and extra headers.
func (s *Scraper) applyIdentity(p *rod.Page, req *engine.FetchRequest) error {
	ua := req.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	err := proto.NetworkSetUserAgentOverride{
		UserAgent:      ua,
		AcceptLanguage: acceptLanguage,
		Platform:       "Win32",
	}.Call(p)
	if err != nil {
		return err
	}

	err = p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             1920,
		Height:            1080,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		return err
	}

	if err := (proto.NetworkEnable{}).Call(p); err != nil {
		return err
	}
	return proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(extraHeaders(req.Headers))}.Call(p)
}

// extraHeaders returns the headers sent with every request of the page,
// with caller headers taking precedence.
func extraHeaders(custom map[string]string) map[string]string {
	h := map[string]string{
		"Accept-Language":           acceptLanguage,
		"Referer":                   googleReferer,
		"Upgrade-Insecure-Requests": "1",
		"DNT":                       "1",
	}
	for k, v := range custom {
		h[k] = v
	}
	return h
}

// toHeadersMap converts a string map into the CDP NetworkHeaders format
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// toHTTPCookies converts CDP cookies to net/http cookies.
func toHTTPCookies(in []*proto.NetworkCookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HttpOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0).UTC()
		}
		out = append(out, hc)
	}
	return out
}

func evalInt(p *rod.Page, js string) int {
	res, err := p.Eval(js)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

// categorizeError wraps raw errors into typed ScrapeErrors so callers can
// tell timeouts from browser failures.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeBrowser, msg, err)
	}
}
