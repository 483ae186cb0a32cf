package api

import (
	"github.com/gin-gonic/gin"

	"github.com/use-agent/partsfetch/api/handler"
	"github.com/use-agent/partsfetch/api/middleware"
	"github.com/use-agent/partsfetch/metrics"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → RequestID → Logger
//	Fetch:   Auth (if enabled) → RateLimit
//
// /, /health and /metrics stay outside auth so monitoring probes always work.
func NewRouter(d *handler.Deps, m *metrics.Metrics) *gin.Engine {
	cfg := d.Config
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(gin.Logger())

	r.GET("/", handler.Root(d))
	r.GET("/health", handler.Health(d))
	r.GET("/metrics", gin.WrapH(m.Handler()))

	protected := r.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Fetch-and-classify
	scrape := handler.ScrapeVIN(d)
	protected.GET("/scrape/:vin", scrape)
	protected.GET("/scrape-simple/:vin", scrape)
	protected.GET("/scrape-advanced/:vin", scrape)
	protected.POST("/scrape-url", handler.ScrapeURL(d))
	protected.GET("/debug-scrape/:vin", handler.DebugScrape(d))
	protected.GET("/test-site", handler.TestSite(d))

	// Diagnostics
	protected.GET("/test-proxy", handler.TestProxy(d))
	protected.GET("/quota", handler.Quota(d))

	// Solver-compatible endpoints
	protected.POST("/v1", handler.Solver(d))
	protected.POST("/quick", handler.Quick(d))

	return r
}
