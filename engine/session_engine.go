package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

// SessionEngine imitates a human visit: it opens the site's home page to
// collect cookies, pauses, then requests the target with a same-origin
// referer. Each attempt gets its own cookie jar and client.
type SessionEngine struct {
	pauseMin time.Duration
	pauseMax time.Duration
	retries  int

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSessionEngine creates a SessionEngine with the given warm-up pause
// range.
func NewSessionEngine(pauseMin, pauseMax time.Duration) *SessionEngine {
	return &SessionEngine{
		pauseMin: pauseMin,
		pauseMax: pauseMax,
		retries:  3,
		sleep:    sleepCtx,
	}
}

func (e *SessionEngine) Name() string { return "session" }

func (e *SessionEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	client, err := e.newClient(req)
	if err != nil {
		return nil, err
	}

	// ── 1. Warm-up visit ─────────────────────────────────────────────
	if req.WarmupURL != "" && req.WarmupURL != req.URL {
		resp, err := client.R().SetContext(ctx).Get(req.WarmupURL)
		if err != nil {
			return nil, fmt.Errorf("session_engine: warm-up: %w", err)
		}
		slog.Debug("session warm-up done",
			"url", req.WarmupURL, "status", resp.StatusCode(), "cookies", len(resp.Cookies()),
		)

		// ── 2. Human-like pause ──────────────────────────────────────
		if err := e.sleep(ctx, e.pause()); err != nil {
			return nil, fmt.Errorf("session_engine: pause: %w", err)
		}
	}

	// ── 3. Target request ────────────────────────────────────────────
	r := client.R().SetContext(ctx)
	if req.WarmupURL != "" {
		r.SetHeader("Referer", req.WarmupURL).
			SetHeader("Sec-Fetch-Site", "same-origin")
	}
	r.SetHeaders(req.Headers)

	resp, err := r.Get(req.URL)
	if err != nil {
		return nil, fmt.Errorf("session_engine: do request: %w", err)
	}

	body := resp.String()
	finalURL := req.URL
	if raw := resp.RawResponse; raw != nil && raw.Request != nil {
		finalURL = raw.Request.URL.String()
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode(), URL: finalURL, Body: body}
	}

	return &FetchResult{
		HTML:       body,
		StatusCode: resp.StatusCode(),
		FinalURL:   finalURL,
		Title:      extractTitle(body),
		Cookies:    resp.Cookies(),
		Transport:  e.Name(),
	}, nil
}

// newClient builds the per-attempt client: cookie jar, proxy on the inner
// transport, Cloudflare-friendly TLS and headers, retries on 429 and 5xx.
func (e *SessionEngine) newClient(req *FetchRequest) (*resty.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("session_engine: cookie jar: %w", err)
	}

	inner := &http.Transport{}
	if req.Proxy != nil {
		inner.Proxy = http.ProxyURL(req.Proxy.URL())
	}

	client := resty.New().
		SetTransport(cloudflarebp.AddCloudFlareByPass(inner)).
		SetCookieJar(jar).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)).
		SetRetryCount(e.retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil || r == nil {
				return false
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})
	if req.Timeout > 0 {
		client.SetTimeout(req.Timeout)
	}

	h := http.Header{}
	setBrowserHeaders(h, req.UserAgent)
	for k := range h {
		client.SetHeader(k, h.Get(k))
	}
	return client, nil
}

func (e *SessionEngine) pause() time.Duration {
	if e.pauseMax <= e.pauseMin {
		return e.pauseMin
	}
	return e.pauseMin + rand.N(e.pauseMax-e.pauseMin)
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
