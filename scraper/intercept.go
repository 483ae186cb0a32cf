package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/partsfetch/proxy"
)

// configToProto maps human-readable config strings to Rod protocol resource types.
var configToProto = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// adDomains is a set of ad and tracking domains blocked when BlockAds is
// enabled.
var adDomains = map[string]struct{}{
	"doubleclick.net":       {},
	"googlesyndication.com": {},
	"googleadservices.com":  {},
	"google-analytics.com":  {},
	"googletagmanager.com":  {},
	"googletagservices.com": {},
	"facebook.net":          {},
	"connect.facebook.net":  {},
	"adnxs.com":             {},
	"adsrvr.org":            {},
	"amazon-adsystem.com":   {},
	"criteo.com":            {},
	"criteo.net":            {},
	"outbrain.com":          {},
	"taboola.com":           {},
	"pubmatic.com":          {},
	"rubiconproject.com":    {},
	"scorecardresearch.com": {},
	"quantserve.com":        {},
	"hotjar.com":            {},
	"mixpanel.com":          {},
	"segment.io":            {},
	"clarity.ms":            {},
	"yandex.ru":             {},
	"mc.yandex.ru":          {},
	"openx.net":             {},
	"casalemedia.com":       {},
	"demdex.net":            {},
	"bluekai.com":           {},
	"addthis.com":           {},
	"sharethis.com":         {},
	"consensu.org":          {},
}

// isAdDomain checks if a hostname (or any parent domain) is in the ad blocklist.
func isAdDomain(host string) bool {
	host = strings.ToLower(host)
	for {
		if _, ok := adDomains[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
	}
}

// blockRules decides which subresource requests a page may make.
type blockRules struct {
	types map[proto.NetworkResourceType]struct{}
	ads   bool
}

func newBlockRules(typeNames []string, blockAds bool) blockRules {
	types := make(map[proto.NetworkResourceType]struct{}, len(typeNames))
	for _, name := range typeNames {
		if rt, ok := configToProto[name]; ok {
			types[rt] = struct{}{}
		}
	}
	return blockRules{types: types, ads: blockAds}
}

func (r blockRules) active() bool {
	return len(r.types) > 0 || r.ads
}

// block reports whether a request must be failed. The main document is
// never blocked.
func (r blockRules) block(rt proto.NetworkResourceType, rawURL string) bool {
	if rt == proto.NetworkResourceTypeDocument {
		return false
	}
	if _, ok := r.types[rt]; ok {
		return true
	}
	if r.ads {
		if u, err := url.Parse(rawURL); err == nil && isAdDomain(u.Hostname()) {
			return true
		}
	}
	return false
}

// authResponse answers a Fetch.authRequired event. Proxy challenges get the
// endpoint's credentials; anything else falls back to the browser default.
func authResponse(source proto.FetchAuthChallengeSource, ep *proxy.Endpoint) *proto.FetchAuthChallengeResponse {
	if ep == nil || !ep.HasAuth() || source != proto.FetchAuthChallengeSourceProxy {
		return &proto.FetchAuthChallengeResponse{
			Response: proto.FetchAuthChallengeResponseResponseDefault,
		}
	}
	return &proto.FetchAuthChallengeResponse{
		Response: proto.FetchAuthChallengeResponseResponseProvideCredentials,
		Username: ep.EffectiveUsername(),
		Password: ep.Password,
	}
}

// intercept enables the CDP Fetch domain on page to block resources and
// answer proxy auth challenges. The returned stop function ends the event
// loop; it is a no-op when there was nothing to intercept.
func intercept(ctx context.Context, page *rod.Page, rules blockRules, ep *proxy.Endpoint) (func(), error) {
	needAuth := ep != nil && ep.HasAuth()
	if !rules.active() && !needAuth {
		return func() {}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	p := page.Context(ctx)

	// Handlers run on the event loop, so CDP replies go out on their own
	// goroutines.
	wait := p.EachEvent(
		func(e *proto.FetchRequestPaused) {
			if rules.block(e.ResourceType, e.Request.URL) {
				go func() {
					_ = proto.FetchFailRequest{
						RequestID:   e.RequestID,
						ErrorReason: proto.NetworkErrorReasonBlockedByClient,
					}.Call(p)
				}()
				return
			}
			go func() {
				_ = proto.FetchContinueRequest{RequestID: e.RequestID}.Call(p)
			}()
		},
		func(e *proto.FetchAuthRequired) {
			resp := authResponse(e.AuthChallenge.Source, ep)
			go func() {
				_ = proto.FetchContinueWithAuth{
					RequestID:             e.RequestID,
					AuthChallengeResponse: resp,
				}.Call(p)
			}()
		},
	)

	err := proto.FetchEnable{
		Patterns:           []*proto.FetchRequestPattern{{URLPattern: "*"}},
		HandleAuthRequests: needAuth,
	}.Call(p)
	if err != nil {
		cancel()
		return nil, err
	}

	go wait()

	return func() {
		_ = proto.FetchDisable{}.Call(page)
		cancel()
		slog.Debug("request interception stopped")
	}, nil
}
