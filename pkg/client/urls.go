package client

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultScroll is the scroll context keep-alive used when neither the
// configuration nor the base URL sets one.
const DefaultScroll = "30s"

var keepAlivePattern = regexp.MustCompile(`^[0-9]+(nanos|micros|ms|s|m|h|d)$`)

// endpoints are the request targets derived from a base URL.
type endpoints struct {
	// search opens the scroll: {base}/_search?scroll={keepAlive}.
	search string
	// scroll continues or clears it: {origin}/_search/scroll.
	scroll    string
	keepAlive string
}

// resolveEndpoints validates raw and derives the request targets. The base URL
// names an index or index pattern, optionally followed by /_search. The only
// query parameter it may carry is scroll, which sets the keep-alive when
// keepAlive is empty.
func resolveEndpoints(raw, keepAlive string) (endpoints, error) {
	if raw == "" {
		return endpoints{}, fmt.Errorf("%w: empty", ErrInvalidBaseURL)
	}
	if strings.Contains(raw, "#") {
		return endpoints{}, fmt.Errorf("%w: must not include a hash fragment", ErrInvalidBaseURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return endpoints{}, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return endpoints{}, fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidBaseURL, u.Scheme)
	}
	if u.Host == "" {
		return endpoints{}, fmt.Errorf("%w: missing host", ErrInvalidBaseURL)
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return endpoints{}, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	for key := range query {
		if key != "scroll" {
			return endpoints{}, fmt.Errorf("%w: unsupported query parameter %q", ErrInvalidBaseURL, key)
		}
	}

	if keepAlive == "" {
		keepAlive = query.Get("scroll")
	}
	if keepAlive == "" {
		keepAlive = DefaultScroll
	}
	if !keepAlivePattern.MatchString(keepAlive) {
		return endpoints{}, fmt.Errorf("invalid scroll keep-alive %q", keepAlive)
	}

	// RawPath keeps index patterns such as logs-* readable.
	search := url.URL{
		Scheme:   u.Scheme,
		User:     u.User,
		Host:     u.Host,
		Path:     searchPath(u.Path),
		RawPath:  searchPath(u.EscapedPath()),
		RawQuery: url.Values{"scroll": {keepAlive}}.Encode(),
	}
	scroll := url.URL{
		Scheme: u.Scheme,
		User:   u.User,
		Host:   u.Host,
		Path:   "/_search/scroll",
	}

	return endpoints{
		search:    search.String(),
		scroll:    scroll.String(),
		keepAlive: keepAlive,
	}, nil
}

func searchPath(p string) string {
	p = strings.TrimSuffix(p, "/")
	p = strings.TrimSuffix(p, "/_search")
	return p + "/_search"
}

var keepAliveUnits = map[string]time.Duration{
	"nanos":  time.Nanosecond,
	"micros": time.Microsecond,
	"ms":     time.Millisecond,
	"s":      time.Second,
	"m":      time.Minute,
	"h":      time.Hour,
	"d":      24 * time.Hour,
}

// ParseKeepAlive converts an Elasticsearch time value such as "30s" or "1d".
func ParseKeepAlive(s string) (time.Duration, error) {
	m := keepAlivePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid scroll keep-alive %q", s)
	}

	n, err := strconv.ParseInt(strings.TrimSuffix(s, m[1]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid scroll keep-alive %q: %w", s, err)
	}
	return time.Duration(n) * keepAliveUnits[m[1]], nil
}
