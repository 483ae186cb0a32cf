package scraper

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"github.com/use-agent/partsfetch/config"
	"github.com/use-agent/partsfetch/models"
)

// ChallengeFunc reports whether page content still carries a challenge
// marker. The classifier's HasChallenge satisfies it.
type ChallengeFunc func(content string) bool

// Scraper owns the headless browser. Every fetch runs in its own
// incognito context, so nothing leaks between attempts.
// It is safe for concurrent use.
type Scraper struct {
	browser         *rod.Browser
	cfg             config.BrowserConfig
	catalogSelector string
	hasChallenge    ChallengeFunc
	blocked         blockRules
	activePages     atomic.Int32
	startTime       time.Time
}

// New launches a headless browser configured from cfg. catalogSelector is
// the element waited for during the settle step; hasChallenge decides
// whether the extra challenge wait applies.
func New(cfg config.BrowserConfig, catalogSelector string, hasChallenge ChallengeFunc) (*Scraper, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}

	// ── Anti-automation flags ────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("window-size"), "1920,1080")
	l.Set(flags.Flag("lang"), "en-US")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowser, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowser, "failed to connect to browser", err)
	}

	return &Scraper{
		browser:         browser,
		cfg:             cfg,
		catalogSelector: catalogSelector,
		hasChallenge:    hasChallenge,
		blocked:         newBlockRules(cfg.BlockedResourceTypes, cfg.BlockAds),
		startTime:       time.Now(),
	}, nil
}

// Ready reports whether the browser is connected.
func (s *Scraper) Ready() bool {
	return s != nil && s.browser != nil
}

// ActivePages returns the number of pages currently open.
func (s *Scraper) ActivePages() int {
	if s == nil {
		return 0
	}
	return int(s.activePages.Load())
}

// Close kills the browser process. Call it on shutdown so no Chrome
// processes are left behind.
func (s *Scraper) Close() {
	if s == nil || s.browser == nil {
		return
	}
	slog.Info("scraper shutting down: closing browser",
		"uptime", time.Since(s.startTime).Round(time.Second))
	if err := s.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
	slog.Info("scraper shutdown complete")
}
