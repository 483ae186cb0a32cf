package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/partsfetch/classify"
	"github.com/use-agent/partsfetch/engine"
	"github.com/use-agent/partsfetch/models"
	"github.com/use-agent/partsfetch/scraper"
)

// Response converts a dispatcher report into the API response. The
// deciding attempt (the success, or the last failure) supplies the page
// fields; the sample is cut to n characters in the given mode.
func (d *Deps) Response(rep *engine.Report, mode string, n int) models.ScrapeResponse {
	resp := models.ScrapeResponse{
		Success:    rep.Success(),
		Identifier: rep.Target.Identifier,
		URL:        rep.Target.URL,
		Attempts:   attemptInfos(rep),
		Timing: models.TimingInfo{
			TotalMs: rep.Total.Milliseconds(),
			WaitMs:  rep.PermitWait.Milliseconds(),
		},
	}

	if last := rep.Last(); last != nil {
		resp.FinalURL = last.FinalURL
		resp.Strategy = last.Strategy
		resp.Transport = last.Transport
		resp.ProxyUsed = last.Proxy
		resp.StatusCode = last.StatusCode
		resp.SSDParam = scraper.SSDParam(last.FinalURL)

		if last.HTML != "" {
			signals := d.Classifier.Analyze(last.HTML, last.FinalURL, rep.Target)
			resp.Analysis = &signals
			resp.SampleContent = d.Sampler.Excerpt(last.HTML, last.FinalURL, mode, n)
		}
	}

	if !resp.Success {
		resp.Error = &models.ErrorDetail{
			Code:    errorCode(rep.Final),
			Message: rep.Message,
		}
	}
	return resp
}

// attemptInfos lists the attempts in run order followed by the strategies
// that were skipped.
func attemptInfos(rep *engine.Report) []models.AttemptInfo {
	out := make([]models.AttemptInfo, 0, len(rep.Attempts)+len(rep.Skipped))
	for _, a := range rep.Attempts {
		info := models.AttemptInfo{
			Strategy:     a.Strategy,
			Transport:    a.Transport,
			Proxy:        a.Proxy,
			Outcome:      string(a.Outcome.Kind()),
			StatusCode:   a.StatusCode,
			ContentBytes: len(a.HTML),
			DurationMs:   a.Duration.Milliseconds(),
		}
		if a.Outcome.Kind() != classify.KindSuccess {
			info.Reason = a.Outcome.Message()
		}
		out = append(out, info)
	}
	for _, s := range rep.Skipped {
		out = append(out, models.AttemptInfo{
			Strategy: s.Strategy,
			Outcome:  "skipped",
			Reason:   s.Reason,
		})
	}
	return out
}

// errorCode maps a failed outcome to an API error code.
func errorCode(o classify.Outcome) string {
	switch v := o.(type) {
	case classify.Blocked:
		return models.ErrCodeBlocked
	case classify.TransportError:
		switch v.Class {
		case classify.ErrTimeout:
			return models.ErrCodeTimeout
		case classify.ErrUpstreamStatus:
			return models.ErrCodeUpstreamStatus
		case classify.ErrBrowser:
			return models.ErrCodeBrowser
		case classify.ErrConfig:
			return models.ErrCodeNotConfigured
		default:
			return models.ErrCodeNetwork
		}
	default:
		return models.ErrCodeInternal
	}
}

// badRequest writes a 400 with an INVALID_INPUT error.
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeInvalidInput,
			Message: err.Error(),
		},
	})
}
