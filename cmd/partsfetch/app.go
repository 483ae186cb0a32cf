package main

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/use-agent/partsfetch/api/handler"
	"github.com/use-agent/partsfetch/classify"
	"github.com/use-agent/partsfetch/config"
	"github.com/use-agent/partsfetch/engine"
	"github.com/use-agent/partsfetch/metrics"
	"github.com/use-agent/partsfetch/proxy"
	"github.com/use-agent/partsfetch/sample"
	"github.com/use-agent/partsfetch/scraper"
)

// app holds the wired components shared by every command.
type app struct {
	deps    *handler.Deps
	metrics *metrics.Metrics
	scraper *scraper.Scraper
}

// buildApp wires config into transports, classifier, limiter and
// dispatcher. A browser that fails to launch is logged and left out; its
// strategies are then skipped.
func buildApp(cfg *config.Config, withBrowser bool) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg, reg)

	cls, err := classify.New(cfg.Classifier, cfg.Target)
	if err != nil {
		return nil, err
	}
	pool, err := proxy.NewPool(cfg.Proxy)
	if err != nil {
		return nil, err
	}
	limiter := engine.NewLimiter(cfg.Fetch.MaxConcurrent, m)

	apiEngine := engine.NewAPIEngine(cfg.ScrapeAPI.BaseURL, cfg.ScrapeAPI.APIKey, cfg.ScrapeAPI.Country)
	engines := []engine.Engine{
		engine.NewHTTPEngine(),
		engine.NewSessionEngine(cfg.Fetch.WarmupPauseMin, cfg.Fetch.WarmupPauseMax),
		apiEngine,
	}

	a := &app{metrics: m}
	if withBrowser {
		sc, err := scraper.New(cfg.Browser, cfg.Target.CatalogSelector, cls.HasChallenge)
		if err != nil {
			slog.Warn("browser unavailable, browser strategies will be skipped", "error", err)
		} else {
			a.scraper = sc
			// The callback keeps engine/ free of a scraper/ import.
			engines = append(engines, engine.NewBrowserEngine(sc.Fetch))
		}
	}

	dispatcher := engine.NewDispatcher(cfg.Fetch, engines, cls, pool, limiter, m)

	a.deps = &handler.Deps{
		Config:     cfg,
		Dispatcher: dispatcher,
		Classifier: cls,
		Limiter:    limiter,
		Proxies:    pool,
		Sampler:    sample.New(),
		API:        apiEngine,
		StartTime:  time.Now(),
	}
	if a.scraper != nil {
		a.deps.Browser = a.scraper
	}

	slog.Info("partsfetch wired",
		"strategies", len(cfg.Fetch.Strategies),
		"proxies", pool.Len(),
		"apiConfigured", apiEngine.Configured(),
		"browser", a.scraper != nil,
		"maxConcurrent", cfg.Fetch.MaxConcurrent,
	)
	return a, nil
}

// Close kills the browser, if one was launched.
func (a *app) Close() {
	a.scraper.Close()
}
