package config

import (
	"fmt"
	"strings"
	"time"
)

// Transport names accepted in the strategy table.
const (
	TransportHTTP    = "http"
	TransportSession = "session"
	TransportBrowser = "browser"
	TransportAPI     = "api"
)

// StrategySpec is one row of the ordered strategy table.
type StrategySpec struct {
	Name      string
	Transport string
	Proxy     bool
	Render    bool

	// Wait is the settle time after the page loads (browser) or the
	// wait parameter forwarded to the scraping API.
	Wait time.Duration

	// Timeout overrides the per-transport attempt timeout when non-zero.
	Timeout time.Duration
}

// ParseStrategies parses the compact table encoding
//
//	name:transport:proxy|direct:render|static:wait[:timeout],...
//
// e.g. "browser-proxy:browser:proxy:render:12s". Rows keep their order.
func ParseStrategies(raw string) ([]StrategySpec, error) {
	var specs []StrategySpec
	seen := make(map[string]struct{})

	for _, row := range strings.Split(raw, ",") {
		row = strings.TrimSpace(row)
		if row == "" {
			continue
		}
		fields := strings.Split(row, ":")
		if len(fields) != 5 && len(fields) != 6 {
			return nil, fmt.Errorf("config: strategy %q: want 5 or 6 colon-separated fields, got %d", row, len(fields))
		}

		spec := StrategySpec{Name: strings.TrimSpace(fields[0])}
		if spec.Name == "" {
			return nil, fmt.Errorf("config: strategy %q: empty name", row)
		}
		if _, dup := seen[spec.Name]; dup {
			return nil, fmt.Errorf("config: strategy %q declared twice", spec.Name)
		}
		seen[spec.Name] = struct{}{}

		switch t := strings.TrimSpace(fields[1]); t {
		case TransportHTTP, TransportSession, TransportBrowser, TransportAPI:
			spec.Transport = t
		default:
			return nil, fmt.Errorf("config: strategy %q: unknown transport %q", spec.Name, t)
		}

		switch p := strings.TrimSpace(fields[2]); p {
		case "proxy":
			spec.Proxy = true
		case "direct":
		default:
			return nil, fmt.Errorf("config: strategy %q: proxy field must be proxy or direct, got %q", spec.Name, p)
		}

		switch r := strings.TrimSpace(fields[3]); r {
		case "render":
			spec.Render = true
		case "static":
		default:
			return nil, fmt.Errorf("config: strategy %q: render field must be render or static, got %q", spec.Name, r)
		}

		// Plain HTTP transports cannot execute JavaScript; the browser always does.
		if spec.Render && (spec.Transport == TransportHTTP || spec.Transport == TransportSession) {
			return nil, fmt.Errorf("config: strategy %q: transport %s cannot render JavaScript", spec.Name, spec.Transport)
		}
		if spec.Transport == TransportBrowser {
			spec.Render = true
		}

		wait, err := time.ParseDuration(strings.TrimSpace(fields[4]))
		if err != nil || wait < 0 {
			return nil, fmt.Errorf("config: strategy %q: invalid wait %q", spec.Name, fields[4])
		}
		spec.Wait = wait

		if len(fields) == 6 {
			timeout, err := time.ParseDuration(strings.TrimSpace(fields[5]))
			if err != nil || timeout <= 0 {
				return nil, fmt.Errorf("config: strategy %q: invalid timeout %q", spec.Name, fields[5])
			}
			spec.Timeout = timeout
		}

		specs = append(specs, spec)
	}

	if len(specs) == 0 {
		return nil, fmt.Errorf("config: strategy table is empty")
	}
	return specs, nil
}

// String renders the spec back into its table encoding.
func (s StrategySpec) String() string {
	proxy := "direct"
	if s.Proxy {
		proxy = "proxy"
	}
	render := "static"
	if s.Render {
		render = "render"
	}
	out := fmt.Sprintf("%s:%s:%s:%s:%s", s.Name, s.Transport, proxy, render, s.Wait)
	if s.Timeout > 0 {
		out += ":" + s.Timeout.String()
	}
	return out
}
