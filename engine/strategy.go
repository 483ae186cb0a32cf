package engine

import (
	"fmt"
	"slices"
	"time"

	"github.com/use-agent/partsfetch/config"
)

// Strategy is one row of the ordered strategy table.
type Strategy = config.StrategySpec

// Options narrows the strategy table for one request.
type Options struct {
	// Render keeps only rendering (true) or static (false) strategies.
	Render *bool

	// Proxy keeps only proxied (true) or direct (false) strategies.
	Proxy *bool

	// Strategy runs only the named strategy.
	Strategy string

	// Transports keeps only strategies using one of these transports.
	Transports []string

	// Timeout overrides every per-attempt timeout when positive.
	Timeout time.Duration

	// ChallengeOnly accepts any page without a challenge or block marker,
	// skipping the size, site marker and route checks.
	ChallengeOnly bool
}

// Skipped records a strategy that was left out of a run and why.
type Skipped struct {
	Strategy string
	Reason   string
}

// Plan returns the strategies a request will try, in table order, and the
// ones it filtered out. It does not apply the attempt cap.
func (d *Dispatcher) Plan(opts Options) ([]Strategy, []Skipped) {
	var plan []Strategy
	var skipped []Skipped

	for _, s := range d.strategies {
		if reason := d.exclude(s, opts); reason != "" {
			skipped = append(skipped, Skipped{Strategy: s.Name, Reason: reason})
			continue
		}
		plan = append(plan, s)
	}
	return plan, skipped
}

// exclude returns a non-empty reason when s must not run for opts.
func (d *Dispatcher) exclude(s Strategy, opts Options) string {
	switch {
	case opts.Strategy != "" && s.Name != opts.Strategy:
		return "not selected"
	case opts.Render != nil && s.Render != *opts.Render:
		return fmt.Sprintf("render=%t filtered out", s.Render)
	case opts.Proxy != nil && s.Proxy != *opts.Proxy:
		return fmt.Sprintf("proxy=%t filtered out", s.Proxy)
	case len(opts.Transports) > 0 && !slices.Contains(opts.Transports, s.Transport):
		return fmt.Sprintf("transport %s filtered out", s.Transport)
	}

	eng, ok := d.engines[s.Transport]
	if !ok || eng == nil {
		return fmt.Sprintf("transport %s unavailable", s.Transport)
	}
	if c, ok := eng.(interface{ Configured() bool }); ok && !c.Configured() {
		return fmt.Sprintf("transport %s not configured", s.Transport)
	}
	// API strategies use the provider's proxies, not ours.
	if s.Proxy && s.Transport != config.TransportAPI && d.proxies.Len() == 0 {
		return "no proxy configured"
	}
	return ""
}

// timeoutFor returns the wall-clock budget of one attempt.
func (d *Dispatcher) timeoutFor(s Strategy, opts Options) time.Duration {
	if opts.Timeout > 0 {
		return opts.Timeout
	}
	if s.Timeout > 0 {
		return s.Timeout
	}
	switch s.Transport {
	case config.TransportBrowser:
		return d.cfg.BrowserTimeout
	case config.TransportAPI:
		return d.cfg.APITimeout
	default:
		return d.cfg.HTTPTimeout
	}
}
