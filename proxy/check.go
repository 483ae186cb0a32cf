package proxy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// CheckResult is the outcome of routing one request through a proxy.
type CheckResult struct {
	StatusCode int
	Origin     string // egress IP reported by the echo service
	Latency    time.Duration
}

// Check fetches an IP-echo URL (httpbin-style {"origin": "..."}) through
// the endpoint and reports the egress address.
func Check(ctx context.Context, ep Endpoint, checkURL string, timeout time.Duration) (*CheckResult, error) {
	client := resty.New().
		SetTransport(&http.Transport{Proxy: http.ProxyURL(ep.URL())}).
		SetTimeout(timeout)

	var body struct {
		Origin string `json:"origin"`
	}

	start := time.Now()
	resp, err := client.R().
		SetContext(ctx).
		SetResult(&body).
		Get(checkURL)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("proxy: check via %s: %w", ep.Redacted(), err)
	}

	res := &CheckResult{StatusCode: resp.StatusCode(), Origin: body.Origin, Latency: latency}
	if resp.IsError() {
		return res, fmt.Errorf("proxy: check via %s: status %d", ep.Redacted(), resp.StatusCode())
	}
	return res, nil
}
