package models

import "github.com/use-agent/partsfetch/classify"

// ScrapeResponse is the response for every fetch-and-classify endpoint.
type ScrapeResponse struct {
	// Success is the final verdict of the fetch-and-classify routine.
	Success bool `json:"success"`

	// Identifier is the VIN (or the raw URL for /scrape-url).
	Identifier string `json:"identifier,omitempty"`

	// URL is the URL that was requested.
	URL string `json:"url"`

	// FinalURL is the URL after redirects, from the last attempt that
	// produced content.
	FinalURL string `json:"final_url,omitempty"`

	// Strategy and Transport name the attempt that produced the verdict.
	Strategy  string `json:"strategy,omitempty"`
	Transport string `json:"transport,omitempty"`

	// ProxyUsed is the redacted proxy endpoint, empty for direct attempts.
	ProxyUsed string `json:"proxy_used,omitempty"`

	// StatusCode is the upstream HTTP status of the deciding attempt.
	StatusCode int `json:"status_code,omitempty"`

	// Analysis holds the classification signals of the deciding attempt.
	Analysis *classify.Signals `json:"analysis,omitempty"`

	// SampleContent is a truncated excerpt of the fetched page.
	SampleContent string `json:"sample_content,omitempty"`

	// SSDParam is the catalog session parameter found in the final URL.
	SSDParam string `json:"ssd_param,omitempty"`

	// Attempts lists every strategy tried, in order.
	Attempts []AttemptInfo `json:"attempts"`

	Timing TimingInfo `json:"timing"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// AttemptInfo summarises one strategy attempt.
type AttemptInfo struct {
	Strategy     string `json:"strategy"`
	Transport    string `json:"transport"`
	Proxy        string `json:"proxy,omitempty"`
	Outcome      string `json:"outcome"` // "success", "blocked", "error", "skipped"
	Reason       string `json:"reason,omitempty"`
	StatusCode   int    `json:"status_code,omitempty"`
	ContentBytes int    `json:"content_bytes,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

// TimingInfo breaks down the time spent on a request.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// WaitMs is the time spent waiting for fetch permits.
	WaitMs int64 `json:"wait_ms"`
}

// RootResponse is the response for GET /.
type RootResponse struct {
	Name             string   `json:"name"`
	Status           string   `json:"status"`
	Version          string   `json:"version"`
	ProxyConfigured  bool     `json:"proxy_configured"`
	APIKeyConfigured bool     `json:"api_key_configured"`
	Strategies       []string `json:"strategies"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status       string       `json:"status"` // "healthy" or "degraded"
	Uptime       string       `json:"uptime"`
	Timestamp    int64        `json:"timestamp"`
	Limiter      LimiterStats `json:"limiter"`
	ProxyCount   int          `json:"proxy_count"`
	BrowserReady bool         `json:"browser_ready"`
	Version      string       `json:"version"`
}

// LimiterStats reports the state of the fetch permits.
type LimiterStats struct {
	Capacity int `json:"capacity"`
	InFlight int `json:"in_flight"`
	Waiting  int `json:"waiting"`
}

// ProxyTestResponse is the response for GET /test-proxy.
type ProxyTestResponse struct {
	Success      bool         `json:"success"`
	ProxyStatus  string       `json:"proxy_status"` // "working", "failed", "error", "not_configured"
	Proxy        string       `json:"proxy,omitempty"`
	IPAddress    string       `json:"ip_address,omitempty"`
	StatusCode   int          `json:"status_code,omitempty"`
	ResponseTime float64      `json:"response_time,omitempty"` // seconds
	Error        *ErrorDetail `json:"error,omitempty"`
}

// QuotaResponse is the response for GET /quota.
type QuotaResponse struct {
	Success            bool         `json:"success"`
	MaxAPICredit       int64        `json:"max_api_credit,omitempty"`
	UsedAPICredit      int64        `json:"used_api_credit,omitempty"`
	RemainingAPICredit int64        `json:"remaining_api_credit,omitempty"`
	MaxConcurrency     int          `json:"max_concurrency,omitempty"`
	CurrentConcurrency int          `json:"current_concurrency,omitempty"`
	RenewalDate        string       `json:"renewal_subscription_date,omitempty"`
	Error              *ErrorDetail `json:"error,omitempty"`
}

// SolverResponse is the FlareSolverr-compatible response for POST /v1.
type SolverResponse struct {
	Status         string    `json:"status"` // "ok" or "error"
	Message        string    `json:"message"`
	Solution       *Solution `json:"solution"`
	StartTimestamp int64     `json:"startTimestamp"`
	EndTimestamp   int64     `json:"endTimestamp"`
	Version        string    `json:"version"`
}

// Solution carries the fetched page in a /v1 response.
type Solution struct {
	URL       string            `json:"url"`
	Status    int               `json:"status"`
	Response  string            `json:"response"`
	Cookies   []Cookie          `json:"cookies"`
	UserAgent string            `json:"userAgent"`
	Headers   map[string]string `json:"headers"`
}

// Cookie is a browser cookie in FlareSolverr's shape.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
}

// QuickResponse is the response for POST /quick.
type QuickResponse struct {
	Success  bool         `json:"success"`
	URL      string       `json:"url,omitempty"`
	HasSSD   bool         `json:"has_ssd"`
	SSDParam string       `json:"ssd_param,omitempty"`
	Error    *ErrorDetail `json:"error,omitempty"`
}
