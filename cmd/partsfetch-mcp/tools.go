package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/partsfetch/models"
)

func handleScrapeVIN(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		vin, err := request.RequireString("vin")
		if err != nil {
			return mcp.NewToolResultError("vin is required"), nil
		}

		resp, err := c.scrapeVIN(ctx, vin, flagsFrom(request))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatScrape(resp)), nil
	}
}

func handleScrapeURL(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rawURL, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		resp, err := c.scrapeURL(ctx, rawURL, flagsFrom(request))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatScrape(resp)), nil
	}
}

func handleTestProxy(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := c.testProxy(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "proxy_status: %s\n", resp.ProxyStatus)
		if resp.Proxy != "" {
			fmt.Fprintf(&b, "proxy: %s\n", resp.Proxy)
		}
		if resp.IPAddress != "" {
			fmt.Fprintf(&b, "ip_address: %s\n", resp.IPAddress)
			fmt.Fprintf(&b, "response_time: %.2fs\n", resp.ResponseTime)
		}
		if resp.Error != nil {
			fmt.Fprintf(&b, "error: %s: %s\n", resp.Error.Code, resp.Error.Message)
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

// flagsFrom reads the optional scrape arguments. Booleans stay nil when the
// caller omitted them, so no filter applies.
func flagsFrom(request mcp.CallToolRequest) scrapeFlags {
	f := scrapeFlags{Sample: request.GetString("sample", "")}
	args := request.GetArguments()
	if v, ok := args["render"].(bool); ok {
		f.Render = &v
	}
	if v, ok := args["proxy"].(bool); ok {
		f.Proxy = &v
	}
	return f
}

// formatScrape renders a scrape response as plain text for the model.
func formatScrape(r *models.ScrapeResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "success: %t\n", r.Success)
	fmt.Fprintf(&b, "url: %s\n", r.URL)
	if r.FinalURL != "" {
		fmt.Fprintf(&b, "final_url: %s\n", r.FinalURL)
	}
	if r.Strategy != "" {
		fmt.Fprintf(&b, "strategy: %s (%s)\n", r.Strategy, r.Transport)
	}
	if r.SSDParam != "" {
		fmt.Fprintf(&b, "ssd_param: %s\n", r.SSDParam)
	}
	if r.Error != nil {
		fmt.Fprintf(&b, "error: %s: %s\n", r.Error.Code, r.Error.Message)
	}
	if a := r.Analysis; a != nil {
		fmt.Fprintf(&b, "signals: site_marker=%t challenge=%t blocked=%t catalog_links=%d bytes=%d\n",
			a.HasSiteMarker, a.HasChallenge, a.IsBlockedPage, a.CatalogLinks, a.ContentBytes)
	}
	if len(r.Attempts) > 0 {
		b.WriteString("attempts:\n")
		for _, at := range r.Attempts {
			fmt.Fprintf(&b, "  - %s: %s", at.Strategy, at.Outcome)
			if at.Reason != "" {
				fmt.Fprintf(&b, " (%s)", at.Reason)
			}
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "total_ms: %d\n", r.Timing.TotalMs)
	if r.SampleContent != "" {
		b.WriteString("\n---\n")
		b.WriteString(r.SampleContent)
	}
	return b.String()
}
