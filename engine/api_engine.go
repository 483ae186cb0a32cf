package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNotConfigured is returned by transports that lack credentials.
var ErrNotConfigured = errors.New("transport not configured")

// APIEngine delegates the fetch to a third-party scraping API using the
// ScrapingBee query interface. The provider runs its own proxies, so
// FetchRequest.UseProxy only switches on its premium proxy pool.
type APIEngine struct {
	client  *resty.Client
	apiKey  string
	country string
}

// NewAPIEngine creates an APIEngine for the given base URL
// (e.g. https://app.scrapingbee.com/api/v1).
func NewAPIEngine(baseURL, apiKey, country string) *APIEngine {
	return &APIEngine{
		client:  resty.New().SetBaseURL(baseURL),
		apiKey:  apiKey,
		country: country,
	}
}

// Configured reports whether an API key is present.
func (e *APIEngine) Configured() bool { return e != nil && e.apiKey != "" }

func (e *APIEngine) Name() string { return "api" }

func (e *APIEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if !e.Configured() {
		return nil, fmt.Errorf("api_engine: %w", ErrNotConfigured)
	}

	params := map[string]string{
		"api_key":   e.apiKey,
		"url":       req.URL,
		"render_js": strconv.FormatBool(req.Render),
	}
	if req.UseProxy {
		params["premium_proxy"] = "true"
		if e.country != "" {
			params["country_code"] = e.country
		}
	}
	if req.Render && req.Wait > 0 {
		params["wait"] = strconv.FormatInt(req.Wait.Milliseconds(), 10)
	}

	r := e.client.R().SetContext(ctx).SetQueryParams(params)
	if req.Timeout > 0 {
		tctx, cancel := context.WithTimeout(ctx, req.Timeout)
		defer cancel()
		r.SetContext(tctx)
	}

	resp, err := r.Get("/")
	if err != nil {
		return nil, fmt.Errorf("api_engine: do request: %w", redactKey(err, e.apiKey))
	}

	body := resp.String()
	if resp.IsError() {
		return nil, &StatusError{StatusCode: resp.StatusCode(), URL: req.URL, Body: body}
	}

	finalURL := resp.Header().Get("Spb-Resolved-Url")
	if finalURL == "" {
		finalURL = req.URL
	}
	status := resp.StatusCode()
	if s, err := strconv.Atoi(resp.Header().Get("Spb-Initial-Status-Code")); err == nil && s > 0 {
		status = s
	}

	return &FetchResult{
		HTML:       body,
		StatusCode: status,
		FinalURL:   finalURL,
		Title:      extractTitle(body),
		Cookies:    resp.Cookies(),
		Transport:  e.Name(),
	}, nil
}

// Usage is the account usage reported by the scraping API.
type Usage struct {
	MaxAPICredit       int64  `json:"max_api_credit"`
	UsedAPICredit      int64  `json:"used_api_credit"`
	MaxConcurrency     int    `json:"max_concurrency"`
	CurrentConcurrency int    `json:"current_concurrency"`
	RenewalDate        string `json:"renewal_subscription_date"`
}

// Usage fetches the account's credit and concurrency usage.
func (e *APIEngine) Usage(ctx context.Context) (*Usage, error) {
	if !e.Configured() {
		return nil, fmt.Errorf("api_engine: %w", ErrNotConfigured)
	}

	tctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var u Usage
	resp, err := e.client.R().
		SetContext(tctx).
		SetQueryParam("api_key", e.apiKey).
		SetResult(&u).
		Get("/usage")
	if err != nil {
		return nil, fmt.Errorf("api_engine: usage: %w", redactKey(err, e.apiKey))
	}
	if resp.IsError() {
		return nil, fmt.Errorf("api_engine: usage: %w", &StatusError{
			StatusCode: resp.StatusCode(),
			URL:        "/usage",
			Body:       resp.String(),
		})
	}
	return &u, nil
}

// redactKey strips the API key from errors that embed the request URL.
func redactKey(err error, key string) error {
	if key == "" || err == nil {
		return err
	}
	return &redactedError{err: err, key: key}
}

type redactedError struct {
	err error
	key string
}

func (r *redactedError) Error() string {
	return strings.ReplaceAll(r.err.Error(), r.key, "***")
}

func (r *redactedError) Unwrap() error { return r.err }
