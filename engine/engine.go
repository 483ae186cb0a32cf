package engine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/use-agent/partsfetch/proxy"
)

// Engine is the interface that all fetch transports must implement.
type Engine interface {
	// Name returns the transport identifier ("http", "session", "browser", "api").
	Name() string

	// Fetch retrieves the page content for the given request.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// FetchRequest contains everything a transport needs for one attempt.
type FetchRequest struct {
	URL string

	// Proxy routes the attempt through an outbound proxy. Nil means direct.
	Proxy *proxy.Endpoint

	// UseProxy asks API transports to route through the provider's own
	// premium proxies. Other transports use Proxy.
	UseProxy bool

	// Render asks API transports to execute JavaScript.
	Render bool

	// Wait is the settle time after load (browser) or the wait parameter
	// forwarded to the scraping API.
	Wait time.Duration

	Timeout   time.Duration
	Headers   map[string]string
	UserAgent string

	// WarmupURL is visited first by session transports to collect cookies.
	WarmupURL string

	// Settle asks the browser transport to wait for the vendor catalog
	// links and scroll before collecting the page.
	Settle bool
}

// FetchResult is the output of a fetch that produced content.
type FetchResult struct {
	HTML       string
	StatusCode int
	FinalURL   string
	Title      string
	Cookies    []*http.Cookie
	Transport  string
}

// StatusError is returned when the upstream answered with a non-2xx status.
// Body holds whatever content came back, for diagnostics.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d for %s", e.StatusCode, e.URL)
}
