package handler

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/partsfetch/engine"
	"github.com/use-agent/partsfetch/models"
	"github.com/use-agent/partsfetch/target"
)

// detach keeps the fetch running when the client goes away; attempts are
// bounded by their own timeouts.
func detach(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

// sampleMode returns the requested excerpt mode or the configured default.
func (d *Deps) sampleMode(requested string) string {
	if requested != "" {
		return requested
	}
	return d.Config.Sample.Mode
}

// ScrapeVIN returns a handler for GET /scrape/:vin and its aliases.
//
// Flow:
//  1. Validate the VIN and query flags (400 on error).
//  2. Run the strategy table against the VIN search URL.
//  3. Return 200 with the verdict, signals and sample, success or not.
func ScrapeVIN(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q models.ScrapeQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			badRequest(c, err)
			return
		}
		t, err := target.ForVIN(d.Config.Target, c.Param("vin"))
		if err != nil {
			badRequest(c, err)
			return
		}

		rep := d.Dispatcher.Run(detach(c), t, engine.Options{Render: q.Render, Proxy: q.Proxy})
		c.JSON(http.StatusOK, d.Response(rep, d.sampleMode(q.Sample), d.Config.Sample.Length))
	}
}

// ScrapeURL returns a handler for POST /scrape-url.
func ScrapeURL(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ScrapeURLRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		t, err := target.ForURL(d.Config.Target, req.URL)
		if err != nil {
			badRequest(c, err)
			return
		}

		rep := d.Dispatcher.Run(detach(c), t, engine.Options{Render: req.Render, Proxy: req.Proxy})
		c.JSON(http.StatusOK, d.Response(rep, d.sampleMode(req.Sample), d.Config.Sample.Length))
	}
}

// TestSite returns a handler for GET /test-site: fetch-and-classify of the
// vendor home page, with the same query flags as /scrape.
func TestSite(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q models.ScrapeQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			badRequest(c, err)
			return
		}

		rep := d.Dispatcher.Run(detach(c), target.Home(d.Config.Target), engine.Options{Render: q.Render, Proxy: q.Proxy})
		c.JSON(http.StatusOK, d.Response(rep, d.sampleMode(q.Sample), d.Config.Sample.Length))
	}
}

// DebugScrape returns a handler for GET /debug-scrape/:vin. It runs one
// strategy (the named one, or the first runnable) and returns a longer
// sample.
func DebugScrape(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q models.DebugQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			badRequest(c, err)
			return
		}
		t, err := target.ForVIN(d.Config.Target, c.Param("vin"))
		if err != nil {
			badRequest(c, err)
			return
		}

		name := q.Strategy
		if name == "" {
			if plan, _ := d.Dispatcher.Plan(engine.Options{}); len(plan) > 0 {
				name = plan[0].Name
			}
		} else if !slices.ContainsFunc(d.Dispatcher.Strategies(), func(s engine.Strategy) bool { return s.Name == name }) {
			badRequest(c, fmt.Errorf("unknown strategy %q", name))
			return
		}

		rep := d.Dispatcher.Run(detach(c), t, engine.Options{Strategy: name})
		c.JSON(http.StatusOK, d.Response(rep, d.sampleMode(q.Sample), d.Config.Sample.DebugLength))
	}
}
