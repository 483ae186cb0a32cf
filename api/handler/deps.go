package handler

import (
	"time"

	"github.com/use-agent/partsfetch/classify"
	"github.com/use-agent/partsfetch/config"
	"github.com/use-agent/partsfetch/engine"
	"github.com/use-agent/partsfetch/proxy"
	"github.com/use-agent/partsfetch/sample"
)

// Version is reported by / , /health and /v1.
var Version = "0.1.0"

// BrowserStatus is the part of the browser transport the health check reads.
type BrowserStatus interface {
	Ready() bool
}

// Deps are the shared, read-only components every handler uses.
type Deps struct {
	Config     *config.Config
	Dispatcher *engine.Dispatcher
	Classifier *classify.Classifier
	Limiter    *engine.Limiter
	Proxies    *proxy.Pool
	Sampler    *sample.Sampler

	// API is the scraping-API transport, used directly by /quota. May be nil.
	API *engine.APIEngine

	// Browser may be nil when the browser transport is disabled.
	Browser BrowserStatus

	StartTime time.Time
}

func (d *Deps) browserReady() bool {
	return d.Browser != nil && d.Browser.Ready()
}

func (d *Deps) apiConfigured() bool {
	return d.API != nil && d.API.Configured()
}
