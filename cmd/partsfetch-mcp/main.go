// Command partsfetch-mcp is an MCP stdio server exposing the partsfetch HTTP
// API as tools.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// apiTimeout covers a full walk of the strategy table.
const apiTimeout = 5 * time.Minute

func main() {
	apiURL := os.Getenv("PARTSFETCH_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	c := newClient(apiURL, os.Getenv("PARTSFETCH_API_KEY"), apiTimeout)

	if err := server.ServeStdio(newServer(c)); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(c *client) *server.MCPServer {
	s := server.NewMCPServer(
		"partsfetch",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("scrape_vin",
		mcp.WithDescription("Fetch the partsouq search page for a VIN through the anti-bot strategy table and report whether real catalog content came back."),
		mcp.WithString("vin",
			mcp.Required(),
			mcp.Description("17-character vehicle identification number"),
		),
		mcp.WithBoolean("render",
			mcp.Description("Only try JavaScript-rendering strategies (true) or only static ones (false). Omit to try all."),
		),
		mcp.WithBoolean("proxy",
			mcp.Description("Only try proxied strategies (true) or only direct ones (false). Omit to try all."),
		),
		mcp.WithString("sample",
			mcp.Description("Excerpt format: 'raw' (default), 'text' or 'markdown'"),
			mcp.Enum("raw", "text", "markdown"),
		),
	), handleScrapeVIN(c))

	s.AddTool(mcp.NewTool("scrape_url",
		mcp.WithDescription("Fetch an arbitrary URL through the anti-bot strategy table and classify the response."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Absolute http or https URL"),
		),
		mcp.WithBoolean("render",
			mcp.Description("Only try JavaScript-rendering strategies (true) or only static ones (false)."),
		),
		mcp.WithBoolean("proxy",
			mcp.Description("Only try proxied strategies (true) or only direct ones (false)."),
		),
		mcp.WithString("sample",
			mcp.Description("Excerpt format: 'raw' (default), 'text' or 'markdown'"),
			mcp.Enum("raw", "text", "markdown"),
		),
	), handleScrapeURL(c))

	s.AddTool(mcp.NewTool("test_proxy",
		mcp.WithDescription("Check that the first configured proxy endpoint works and report its egress IP."),
	), handleTestProxy(c))

	return s
}
