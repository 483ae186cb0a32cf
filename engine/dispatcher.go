package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/use-agent/partsfetch/classify"
	"github.com/use-agent/partsfetch/config"
	"github.com/use-agent/partsfetch/metrics"
	"github.com/use-agent/partsfetch/proxy"
	"github.com/use-agent/partsfetch/target"
)

// Dispatcher runs the fetch-and-classify loop: it walks the ordered
// strategy table, one attempt at a time, until an attempt is classified as
// a success or the table is exhausted. It keeps no state between requests.
type Dispatcher struct {
	cfg        config.FetchConfig
	strategies []Strategy
	engines    map[string]Engine
	classifier *classify.Classifier
	proxies    *proxy.Pool
	limiter    *Limiter
	metrics    *metrics.Metrics

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a Dispatcher. Engines are keyed by Name(); nil
// engines are ignored and strategies using them are skipped at run time.
func NewDispatcher(
	cfg config.FetchConfig,
	engines []Engine,
	classifier *classify.Classifier,
	proxies *proxy.Pool,
	limiter *Limiter,
	m *metrics.Metrics,
) *Dispatcher {
	byName := make(map[string]Engine, len(engines))
	for _, e := range engines {
		if e != nil {
			byName[e.Name()] = e
		}
	}
	return &Dispatcher{
		cfg:        cfg,
		strategies: cfg.Strategies,
		engines:    byName,
		classifier: classifier,
		proxies:    proxies,
		limiter:    limiter,
		metrics:    m,
		sleep:      sleepCtx,
	}
}

// Strategies returns the configured table in order.
func (d *Dispatcher) Strategies() []Strategy {
	return d.strategies
}

// Attempt is the record of one strategy attempt.
type Attempt struct {
	Strategy  string
	Transport string
	Proxy     string // redacted endpoint, empty when direct
	UserAgent string
	Outcome   classify.Outcome

	// Fields below are populated when the transport returned content.
	HTML       string
	StatusCode int
	FinalURL   string
	Title      string
	Cookies    []*http.Cookie

	PermitWait time.Duration
	Duration   time.Duration
}

// Report is the result of one Run.
type Report struct {
	Target   target.Target
	Attempts []Attempt
	Skipped  []Skipped

	// Final is the Success outcome when one attempt succeeded, otherwise
	// the outcome of the last attempt.
	Final classify.Outcome

	// Message is the success summary or the aggregated failure message.
	Message string

	Total      time.Duration
	PermitWait time.Duration
}

// Success reports whether any attempt succeeded.
func (r *Report) Success() bool {
	return r.Final != nil && r.Final.Kind() == classify.KindSuccess
}

// Last returns the attempt that produced Final, or nil when nothing ran.
func (r *Report) Last() *Attempt {
	if len(r.Attempts) == 0 {
		return nil
	}
	return &r.Attempts[len(r.Attempts)-1]
}

// Run fetches and classifies the target. It never returns an error: every
// failure is described by the report.
func (d *Dispatcher) Run(ctx context.Context, t target.Target, opts Options) *Report {
	start := time.Now()
	rep := &Report{Target: t}

	plan, skipped := d.Plan(opts)
	rep.Skipped = skipped
	if limit := d.cfg.MaxAttempts; limit > 0 && len(plan) > limit {
		plan = plan[:limit]
	}

	if len(plan) == 0 {
		rep.Final = classify.TransportError{
			Class: classify.ErrConfig,
			Err:   fmt.Errorf("no strategy available (%s)", describeSkipped(skipped)),
		}
		rep.Message = rep.Final.Message()
		rep.Total = time.Since(start)
		d.metrics.ObserveRequest(string(classify.KindError))
		return rep
	}

	proxied := 0
	for i, s := range plan {
		if i > 0 {
			if err := d.sleep(ctx, d.cfg.RetryDelay); err != nil {
				break
			}
		}

		proxyIndex := -1
		if s.Proxy && s.Transport != config.TransportAPI {
			proxyIndex = proxied
			proxied++
		}

		at := d.attempt(ctx, t, s, proxyIndex, opts)
		rep.Attempts = append(rep.Attempts, at)
		rep.PermitWait += at.PermitWait
		rep.Final = at.Outcome

		if at.Outcome.Kind() == classify.KindSuccess {
			break
		}
	}

	if rep.Final == nil {
		// Cancelled before the first attempt ran.
		rep.Final = classify.TransportError{Class: classify.ErrTimeout, Err: ctx.Err()}
	}

	if rep.Success() {
		rep.Message = rep.Final.Message()
	} else {
		rep.Message = aggregate(rep.Attempts)
	}
	rep.Total = time.Since(start)
	d.metrics.ObserveRequest(string(rep.Final.Kind()))

	slog.Info("fetch finished",
		"identifier", t.Identifier,
		"success", rep.Success(),
		"attempts", len(rep.Attempts),
		"total", rep.Total,
	)
	return rep
}

// attempt runs one strategy: pick proxy, acquire permit, fetch under the
// attempt timeout, release, classify.
func (d *Dispatcher) attempt(ctx context.Context, t target.Target, s Strategy, proxyIndex int, opts Options) Attempt {
	at := Attempt{Strategy: s.Name, Transport: s.Transport}
	eng := d.engines[s.Transport]

	req := &FetchRequest{
		URL:       t.URL,
		UseProxy:  s.Proxy,
		Render:    s.Render,
		Wait:      s.Wait,
		Timeout:   d.timeoutFor(s, opts),
		UserAgent: d.userAgent(),
		WarmupURL: t.Origin(),
		Settle:    t.Vendor,
	}
	at.UserAgent = req.UserAgent

	// ── 1. Proxy ─────────────────────────────────────────────────────
	if proxyIndex >= 0 {
		ep, ok := d.proxies.Pick(proxyIndex)
		if !ok {
			at.Outcome = classify.TransportError{Class: classify.ErrConfig, Err: errors.New("no proxy configured")}
			return at
		}
		req.Proxy = &ep
		at.Proxy = ep.Redacted()
	}

	// ── 2. Permit ────────────────────────────────────────────────────
	wait, err := d.limiter.Acquire(ctx)
	at.PermitWait = wait
	if err != nil {
		at.Outcome = classify.TransportError{Class: classify.ErrTimeout, Err: fmt.Errorf("waiting for fetch permit: %w", err)}
		return at
	}

	// ── 3. Fetch ─────────────────────────────────────────────────────
	start := time.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	res, err := eng.Fetch(fetchCtx, req)
	cancel()
	d.limiter.Release()
	at.Duration = time.Since(start)

	// ── 4. Classify ──────────────────────────────────────────────────
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			at.StatusCode = se.StatusCode
			at.FinalURL = se.URL
			at.HTML = se.Body
		}
		at.Outcome = classify.TransportError{Class: errorClass(err, s.Transport), Err: err}
	} else {
		at.HTML = res.HTML
		at.StatusCode = res.StatusCode
		at.FinalURL = res.FinalURL
		at.Title = res.Title
		at.Cookies = res.Cookies
		if at.FinalURL == "" {
			at.FinalURL = t.URL
		}
		if opts.ChallengeOnly {
			at.Outcome = d.classifier.ClassifyChallenge(res.HTML, at.FinalURL, t)
		} else {
			at.Outcome = d.classifier.Classify(res.HTML, at.FinalURL, t)
		}
	}

	d.metrics.ObserveAttempt(s.Name, string(at.Outcome.Kind()), at.Duration)
	slog.Info("attempt finished",
		"strategy", s.Name,
		"transport", s.Transport,
		"proxy", at.Proxy,
		"outcome", at.Outcome.Kind(),
		"detail", at.Outcome.Message(),
		"status", at.StatusCode,
		"bytes", len(at.HTML),
		"duration", at.Duration,
	)
	return at
}

func (d *Dispatcher) userAgent() string {
	if len(d.cfg.UserAgents) == 0 {
		return ""
	}
	return d.cfg.UserAgents[rand.IntN(len(d.cfg.UserAgents))]
}

// errorClass maps a transport error onto the outcome error classes.
func errorClass(err error, transport string) classify.ErrorClass {
	var se *StatusError
	var ne net.Error
	switch {
	case errors.As(err, &se):
		return classify.ErrUpstreamStatus
	case errors.Is(err, ErrNotConfigured):
		return classify.ErrConfig
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return classify.ErrTimeout
	case transport == config.TransportBrowser:
		return classify.ErrBrowser
	default:
		return classify.ErrNetwork
	}
}

// aggregate builds "all N strategies failed: name: reason; ...".
func aggregate(attempts []Attempt) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		parts = append(parts, a.Strategy+": "+a.Outcome.Message())
	}
	return fmt.Sprintf("all %d strategies failed: %s", len(attempts), strings.Join(parts, "; "))
}

func describeSkipped(skipped []Skipped) string {
	if len(skipped) == 0 {
		return "empty strategy table"
	}
	parts := make([]string, 0, len(skipped))
	for _, s := range skipped {
		parts = append(parts, s.Strategy+": "+s.Reason)
	}
	return strings.Join(parts, "; ")
}
