package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/use-agent/partsfetch/models"
)

// client calls the partsfetch HTTP API.
type client struct {
	http *resty.Client
}

func newClient(apiURL, apiKey string, timeout time.Duration) *client {
	r := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		r.SetHeader("X-API-Key", apiKey)
	}
	return &client{http: r}
}

// scrapeFlags are the optional filters shared by the scrape tools.
type scrapeFlags struct {
	Render *bool
	Proxy  *bool
	Sample string
}

func (f scrapeFlags) query() map[string]string {
	q := map[string]string{}
	if f.Render != nil {
		q["render"] = strconv.FormatBool(*f.Render)
	}
	if f.Proxy != nil {
		q["proxy"] = strconv.FormatBool(*f.Proxy)
	}
	if f.Sample != "" {
		q["sample"] = f.Sample
	}
	return q
}

func (c *client) scrapeVIN(ctx context.Context, vin string, f scrapeFlags) (*models.ScrapeResponse, error) {
	var out models.ScrapeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("vin", vin).
		SetQueryParams(f.query()).
		SetResult(&out).
		SetError(&out).
		Get("/scrape/{vin}")
	return &out, checkResponse(resp, err, out.Error)
}

func (c *client) scrapeURL(ctx context.Context, rawURL string, f scrapeFlags) (*models.ScrapeResponse, error) {
	var out models.ScrapeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(models.ScrapeURLRequest{URL: rawURL, Render: f.Render, Proxy: f.Proxy, Sample: f.Sample}).
		SetResult(&out).
		SetError(&out).
		Post("/scrape-url")
	return &out, checkResponse(resp, err, out.Error)
}

func (c *client) testProxy(ctx context.Context) (*models.ProxyTestResponse, error) {
	var out models.ProxyTestResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&out).
		Get("/test-proxy")
	return &out, checkResponse(resp, err, out.Error)
}

// checkResponse turns transport failures and non-2xx statuses into errors.
// A 200 with success:false is not an error here.
func checkResponse(resp *resty.Response, err error, detail *models.ErrorDetail) error {
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	if resp.IsError() {
		if detail != nil {
			return fmt.Errorf("API returned %d: %s: %s", resp.StatusCode(), detail.Code, detail.Message)
		}
		return fmt.Errorf("API returned %d", resp.StatusCode())
	}
	return nil
}
