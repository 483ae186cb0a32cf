// Package classify decides whether a fetched page is real vendor content or
// an anti-bot challenge, a block page or an error page.
package classify

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/use-agent/partsfetch/config"
	"github.com/use-agent/partsfetch/target"
)

// Signals are the indicators extracted from one fetched page.
type Signals struct {
	ContentBytes     int      `json:"content_bytes"`
	HasSiteMarker    bool     `json:"has_site_marker"`
	HasChallenge     bool     `json:"has_challenge"`
	ChallengeMarkers []string `json:"challenge_markers,omitempty"`
	IsBlockedPage    bool     `json:"is_blocked_page"`
	BlockMarkers     []string `json:"block_markers,omitempty"`
	HasIdentifier    bool     `json:"has_identifier"`
	HasParts         bool     `json:"has_parts"`
	HasCatalog       bool     `json:"has_catalog"`
	CatalogLinks     int      `json:"catalog_links"`
	AboveMinSize     bool     `json:"above_min_size"`
	RouteMatched     bool     `json:"route_matched"`
	Title            string   `json:"title,omitempty"`
}

// Classifier holds the thresholds and marker lists. It has no mutable
// state, so one value may be shared by every request.
type Classifier struct {
	MinContentBytes  int
	ChallengeMarkers []string
	BlockMarkers     []string

	partPattern *regexp.Regexp
	catalog     cascadia.Sel
}

// New builds a Classifier from configuration. Marker lists are lower-cased
// once here; matching is case-insensitive.
func New(cc config.ClassifierConfig, tc config.TargetConfig) (*Classifier, error) {
	c := &Classifier{
		MinContentBytes:  cc.MinContentBytes,
		ChallengeMarkers: lowerAll(cc.ChallengeMarkers),
		BlockMarkers:     lowerAll(cc.BlockMarkers),
	}
	if cc.PartPattern != "" {
		re, err := regexp.Compile(cc.PartPattern)
		if err != nil {
			return nil, fmt.Errorf("classify: part pattern: %w", err)
		}
		c.partPattern = re
	}
	if tc.CatalogSelector != "" {
		sel, err := cascadia.Parse(tc.CatalogSelector)
		if err != nil {
			return nil, fmt.Errorf("classify: catalog selector: %w", err)
		}
		c.catalog = sel
	}
	return c, nil
}

// Classify is a pure function of (content, finalURL, target). A page is a
// Success only when it carries no challenge or block marker, is at least
// MinContentBytes long, carries the target's site marker when it has one
// and, when the target expects routes, its final URL path contains one of
// them.
func (c *Classifier) Classify(content, finalURL string, t target.Target) Outcome {
	sig := c.Analyze(content, finalURL, t)

	var reason Reason
	switch {
	case sig.HasChallenge:
		reason = ReasonChallenge
	case sig.IsBlockedPage:
		reason = ReasonBlockPage
	case !sig.AboveMinSize:
		reason = ReasonTooSmall
	case t.SiteMarker != "" && !sig.HasSiteMarker:
		reason = ReasonMissingMarker
	case !sig.RouteMatched:
		reason = ReasonRouteMismatch
	default:
		return Success{Content: content, Signals: sig}
	}
	return Blocked{Reason: reason, Signals: sig}
}

// ClassifyChallenge is the relaxed verdict of the solver endpoints: any
// non-empty page without a challenge or block marker is a Success. Size,
// site marker and route are reported in the signals but not checked.
func (c *Classifier) ClassifyChallenge(content, finalURL string, t target.Target) Outcome {
	sig := c.Analyze(content, finalURL, t)

	switch {
	case sig.HasChallenge:
		return Blocked{Reason: ReasonChallenge, Signals: sig}
	case sig.IsBlockedPage:
		return Blocked{Reason: ReasonBlockPage, Signals: sig}
	case sig.ContentBytes == 0:
		return Blocked{Reason: ReasonTooSmall, Signals: sig}
	}
	return Success{Content: content, Signals: sig}
}

// Analyze extracts Signals without deciding a verdict.
func (c *Classifier) Analyze(content, finalURL string, t target.Target) Signals {
	lower := strings.ToLower(content)

	sig := Signals{
		ContentBytes:     len(content),
		ChallengeMarkers: matchMarkers(lower, c.ChallengeMarkers),
		BlockMarkers:     matchMarkers(lower, c.BlockMarkers),
	}
	sig.HasChallenge = len(sig.ChallengeMarkers) > 0
	sig.IsBlockedPage = len(sig.BlockMarkers) > 0
	sig.AboveMinSize = sig.ContentBytes >= c.MinContentBytes
	sig.HasSiteMarker = t.SiteMarker != "" && strings.Contains(lower, strings.ToLower(t.SiteMarker))
	sig.HasIdentifier = t.IsVIN && strings.Contains(lower, strings.ToLower(t.Identifier))
	sig.RouteMatched = routeMatches(finalURL, t.ExpectedRoutes)
	if c.partPattern != nil {
		sig.HasParts = c.partPattern.MatchString(content)
	}

	if content != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(content)); err == nil {
			sig.Title = strings.TrimSpace(doc.Find("title").First().Text())
			if c.catalog != nil && len(doc.Nodes) > 0 {
				sig.CatalogLinks = len(cascadia.QueryAll(doc.Nodes[0], c.catalog))
			}
		}
	}
	sig.HasCatalog = sig.CatalogLinks > 0

	return sig
}

// HasChallenge reports whether content carries any challenge marker.
func (c *Classifier) HasChallenge(content string) bool {
	return len(matchMarkers(strings.ToLower(content), c.ChallengeMarkers)) > 0
}

func matchMarkers(lower string, markers []string) []string {
	var found []string
	for _, m := range markers {
		if m != "" && strings.Contains(lower, m) {
			found = append(found, m)
		}
	}
	return found
}

func routeMatches(finalURL string, routes []string) bool {
	if len(routes) == 0 {
		return true
	}
	u, err := url.Parse(finalURL)
	if err != nil {
		return false
	}
	for _, r := range routes {
		if strings.Contains(u.Path, r) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
