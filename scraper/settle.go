package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
)

// challengePoll is how often the challenge wait re-reads the page.
const challengePoll = time.Second

// sleepPage sleeps for d or until the page context is done.
func sleepPage(p *rod.Page, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-p.GetContext().Done():
		return p.GetContext().Err()
	}
}

// waitChallenge polls the page until hasChallenge no longer matches or limit
// has passed. It returns the last HTML read.
func waitChallenge(p *rod.Page, html string, hasChallenge ChallengeFunc, limit time.Duration) (string, error) {
	if hasChallenge == nil || limit <= 0 || !hasChallenge(html) {
		return html, nil
	}
	slog.Info("challenge detected, waiting for auto-resolve", "max", limit)

	deadline := time.Now().Add(limit)
	for time.Now().Before(deadline) {
		if err := sleepPage(p, challengePoll); err != nil {
			return html, err
		}
		current, err := p.HTML()
		if err != nil {
			// The challenge reloads the document; read again next tick.
			continue
		}
		html = current
		if !hasChallenge(html) {
			slog.Info("challenge resolved")
			return html, nil
		}
	}
	slog.Info("challenge still present after wait")
	return html, nil
}

// settle gives the catalog page a chance to render its links: wait for the
// selector up to timeout, then scroll half the page and pause briefly.
// Every step is best-effort.
func settle(p *rod.Page, selector string, timeout time.Duration) {
	if selector != "" && timeout > 0 {
		ctx, cancel := context.WithTimeout(p.GetContext(), timeout)
		err := p.Context(ctx).WaitElementsMoreThan(selector, 0)
		cancel()
		if err != nil {
			slog.Debug("catalog selector not found", "selector", selector, "error", err)
		}
	}

	if _, err := p.Eval(scrollHalfJS); err != nil {
		slog.Debug("scroll failed", "error", err)
		return
	}
	_ = sleepPage(p, time.Second)
}
