package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/partsfetch/engine"
	"github.com/use-agent/partsfetch/models"
	"github.com/use-agent/partsfetch/proxy"
)

// TestProxy returns a handler for GET /test-proxy. It routes one request to
// the configured IP-echo URL through the first proxy endpoint.
func TestProxy(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ep, ok := d.Proxies.First()
		if !ok {
			c.JSON(http.StatusOK, models.ProxyTestResponse{
				Success:     false,
				ProxyStatus: "not_configured",
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeNotConfigured,
					Message: "no proxy endpoints configured",
				},
			})
			return
		}

		res, err := proxy.Check(detach(c), ep, d.Config.Proxy.CheckURL, d.Config.Fetch.HTTPTimeout)
		resp := models.ProxyTestResponse{Proxy: ep.Redacted()}
		if res != nil {
			resp.StatusCode = res.StatusCode
			resp.IPAddress = res.Origin
			resp.ResponseTime = res.Latency.Seconds()
		}

		switch {
		case err != nil && res != nil:
			resp.ProxyStatus = "failed"
			resp.Error = &models.ErrorDetail{Code: models.ErrCodeProxyFailed, Message: err.Error()}
		case err != nil:
			resp.ProxyStatus = "error"
			resp.Error = &models.ErrorDetail{Code: models.ErrCodeProxyFailed, Message: err.Error()}
		default:
			resp.Success = true
			resp.ProxyStatus = "working"
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Quota returns a handler for GET /quota: usage of the scraping-API
// account.
func Quota(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !d.apiConfigured() {
			c.JSON(http.StatusOK, models.QuotaResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeNotConfigured,
					Message: "scraping API key not configured",
				},
			})
			return
		}

		u, err := d.API.Usage(detach(c))
		if err != nil {
			code := models.ErrCodeNetwork
			var se *engine.StatusError
			if errors.As(err, &se) {
				code = models.ErrCodeUpstreamStatus
			}
			c.JSON(http.StatusOK, models.QuotaResponse{
				Success: false,
				Error:   &models.ErrorDetail{Code: code, Message: err.Error()},
			})
			return
		}

		c.JSON(http.StatusOK, models.QuotaResponse{
			Success:            true,
			MaxAPICredit:       u.MaxAPICredit,
			UsedAPICredit:      u.UsedAPICredit,
			RemainingAPICredit: u.MaxAPICredit - u.UsedAPICredit,
			MaxConcurrency:     u.MaxConcurrency,
			CurrentConcurrency: u.CurrentConcurrency,
			RenewalDate:        u.RenewalDate,
		})
	}
}
