package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/partsfetch/models"
)

// Root returns a handler for GET /.
func Root(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		strategies := d.Dispatcher.Strategies()
		names := make([]string, 0, len(strategies))
		for _, s := range strategies {
			names = append(names, s.Name)
		}

		c.JSON(http.StatusOK, models.RootResponse{
			Name:             "partsfetch",
			Status:           "running",
			Version:          Version,
			ProxyConfigured:  d.Proxies.Len() > 0,
			APIKeyConfigured: d.apiConfigured(),
			Strategies:       names,
		})
	}
}

// Health returns a handler for GET /health.
//
// Status degrades when every fetch permit is taken and callers are queued.
func Health(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := d.Limiter.Stats()

		status := "healthy"
		if d.Limiter.Saturated() {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(d.StartTime).Round(time.Second).String(),
			Timestamp: time.Now().Unix(),
			Limiter: models.LimiterStats{
				Capacity: stats.Capacity,
				InFlight: stats.InFlight,
				Waiting:  stats.Waiting,
			},
			ProxyCount:   d.Proxies.Len(),
			BrowserReady: d.browserReady(),
			Version:      Version,
		})
	}
}
