package scraper

import "net/url"

// SSDParam returns the "ssd" query parameter of finalURL, the session token
// partsouq appends once a search resolves to a catalog page. It returns ""
// when the parameter is absent or the URL does not parse.
func SSDParam(finalURL string) string {
	u, err := url.Parse(finalURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("ssd")
}
