package engine

import (
	"context"
	"fmt"
)

// BrowserFetchFunc is the callback that runs one attempt in the headless
// browser. It is injected from main.go to avoid a circular import
// (engine/ -> scraper/).
type BrowserFetchFunc func(ctx context.Context, req *FetchRequest) (*FetchResult, error)

// BrowserEngine is the JavaScript-rendering transport. It delegates to the
// rod-based scraper through a callback.
type BrowserEngine struct {
	fetchFunc BrowserFetchFunc
}

// NewBrowserEngine creates a BrowserEngine around fetchFunc.
func NewBrowserEngine(fetchFunc BrowserFetchFunc) *BrowserEngine {
	return &BrowserEngine{fetchFunc: fetchFunc}
}

func (e *BrowserEngine) Name() string { return "browser" }

func (e *BrowserEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if e.fetchFunc == nil {
		return nil, fmt.Errorf("browser: fetchFunc: %w", ErrNotConfigured)
	}

	// Clone the request so we don't mutate the caller's copy.
	r := *req
	r.Render = true

	result, err := e.fetchFunc(ctx, &r)
	if err != nil {
		return nil, fmt.Errorf("browser: %w", err)
	}

	result.Transport = e.Name()
	return result, nil
}
