package models

// ScrapeURLRequest is the payload for POST /scrape-url.
type ScrapeURLRequest struct {
	// URL is the page to fetch. Required.
	URL string `json:"url" binding:"required,url"`

	// Render restricts the strategy table to JavaScript-rendering (true)
	// or static (false) strategies. Nil keeps every strategy.
	Render *bool `json:"render,omitempty"`

	// Proxy restricts the table to proxied (true) or direct (false)
	// strategies. Nil keeps every strategy.
	Proxy *bool `json:"proxy,omitempty"`

	// Sample selects the excerpt format: "raw", "text" or "markdown".
	Sample string `json:"sample,omitempty" binding:"omitempty,oneof=raw text markdown"`
}

// ScrapeQuery holds the query-string flags of GET /scrape/:vin.
type ScrapeQuery struct {
	Render *bool  `form:"render"`
	Proxy  *bool  `form:"proxy"`
	Sample string `form:"sample" binding:"omitempty,oneof=raw text markdown"`
}

// DebugQuery holds the query-string flags of GET /debug-scrape/:vin.
type DebugQuery struct {
	// Strategy names the single strategy to run. Empty runs the first
	// available one.
	Strategy string `form:"strategy"`
	Sample   string `form:"sample" binding:"omitempty,oneof=raw text markdown"`
}

// SolverRequest is the FlareSolverr-compatible payload for POST /v1.
type SolverRequest struct {
	Cmd string `json:"cmd" binding:"required"`
	URL string `json:"url" binding:"required,url"`

	// MaxTimeout is in milliseconds, as in FlareSolverr.
	MaxTimeout int `json:"maxTimeout,omitempty" binding:"omitempty,min=1000,max=300000"`

	Session string `json:"session,omitempty"`
}

// QuickRequest is the payload for POST /quick.
type QuickRequest struct {
	URL string `json:"url" binding:"required,url"`
}
