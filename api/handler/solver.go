package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/partsfetch/config"
	"github.com/use-agent/partsfetch/engine"
	"github.com/use-agent/partsfetch/models"
	"github.com/use-agent/partsfetch/scraper"
	"github.com/use-agent/partsfetch/target"
)

// quickTimeout bounds each attempt of POST /quick.
const quickTimeout = 10 * time.Second

// Solver returns a handler for POST /v1, a FlareSolverr-compatible
// endpoint. Only "request.get" is supported, and only browser strategies
// run. Any URL is accepted; a page counts as solved once no challenge or
// block marker remains.
func Solver(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req models.SolverRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, solverError(start, err.Error()))
			return
		}
		if req.Cmd != "request.get" {
			c.JSON(http.StatusBadRequest, solverError(start, fmt.Sprintf("unsupported cmd %q", req.Cmd)))
			return
		}
		t, err := target.ForURL(d.Config.Target, req.URL)
		if err != nil {
			c.JSON(http.StatusBadRequest, solverError(start, err.Error()))
			return
		}

		opts := engine.Options{Transports: []string{config.TransportBrowser}, ChallengeOnly: true}
		if req.MaxTimeout > 0 {
			opts.Timeout = time.Duration(req.MaxTimeout) * time.Millisecond
		}

		rep := d.Dispatcher.Run(detach(c), t, opts)
		if !rep.Success() {
			c.JSON(http.StatusOK, solverError(start, rep.Message))
			return
		}

		last := rep.Last()
		c.JSON(http.StatusOK, models.SolverResponse{
			Status:  "ok",
			Message: "Challenge solved!",
			Solution: &models.Solution{
				URL:       last.FinalURL,
				Status:    last.StatusCode,
				Response:  last.HTML,
				Cookies:   toSolverCookies(last),
				UserAgent: last.UserAgent,
				Headers:   map[string]string{},
			},
			StartTimestamp: start.UnixMilli(),
			EndTimestamp:   time.Now().UnixMilli(),
			Version:        Version,
		})
	}
}

func solverError(start time.Time, msg string) models.SolverResponse {
	return models.SolverResponse{
		Status:         "error",
		Message:        msg,
		StartTimestamp: start.UnixMilli(),
		EndTimestamp:   time.Now().UnixMilli(),
		Version:        Version,
	}
}

func toSolverCookies(a *engine.Attempt) []models.Cookie {
	out := make([]models.Cookie, 0, len(a.Cookies))
	for _, c := range a.Cookies {
		sc := models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  -1,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if !c.Expires.IsZero() {
			sc.Expires = float64(c.Expires.Unix())
		}
		out = append(out, sc)
	}
	return out
}

// Quick returns a handler for POST /quick: a short fetch that only reports
// whether the final URL carries the catalog session parameter.
func Quick(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.QuickRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.QuickResponse{
				Success: false,
				Error:   &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: err.Error()},
			})
			return
		}
		t, err := target.ForURL(d.Config.Target, req.URL)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.QuickResponse{
				Success: false,
				Error:   &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: err.Error()},
			})
			return
		}

		rep := d.Dispatcher.Run(detach(c), t, engine.Options{Timeout: quickTimeout, ChallengeOnly: true})
		if !rep.Success() {
			c.JSON(http.StatusOK, models.QuickResponse{
				Success: false,
				Error:   &models.ErrorDetail{Code: errorCode(rep.Final), Message: rep.Message},
			})
			return
		}

		finalURL := rep.Last().FinalURL
		ssd := scraper.SSDParam(finalURL)
		c.JSON(http.StatusOK, models.QuickResponse{
			Success:  true,
			URL:      finalURL,
			HasSSD:   ssd != "",
			SSDParam: ssd,
		})
	}
}
