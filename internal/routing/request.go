package routing

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// ErrMalformedRequest is returned by NewRequestContext when a request has no
// usable host or path. Such requests are answered with 400, never routed as "/".
var ErrMalformedRequest = errors.New("routing: malformed request")

// RequestContext is the read-only view of a request the pipeline works on.
type RequestContext struct {
	// Origin is scheme://host as the request arrived.
	Origin string
	// Pathname is the escaped path exactly as received.
	Pathname string
	// RawQuery is the query string exactly as received, without '?'.
	RawQuery string
	// Cookies holds the first value seen for each cookie name.
	Cookies map[string]string
	Header  http.Header
}

// NewRequestContext extracts a RequestContext from r.
func NewRequestContext(r *http.Request) (RequestContext, error) {
	if r == nil || r.URL == nil {
		return RequestContext{}, ErrMalformedRequest
	}
	if r.RequestURI != "" && r.RequestURI != "*" {
		if _, err := url.ParseRequestURI(r.RequestURI); err != nil {
			return RequestContext{}, errors.Join(ErrMalformedRequest, err)
		}
	}

	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	if !validHost(host) {
		return RequestContext{}, ErrMalformedRequest
	}

	p := r.URL.EscapedPath()
	if p != "" && p[0] != '/' {
		return RequestContext{}, ErrMalformedRequest
	}

	rc := RequestContext{
		Origin:   requestScheme(r) + "://" + host,
		Pathname: p,
		RawQuery: r.URL.RawQuery,
		Cookies:  make(map[string]string),
		Header:   r.Header,
	}
	for _, c := range r.Cookies() {
		if _, seen := rc.Cookies[c.Name]; !seen {
			rc.Cookies[c.Name] = c.Value
		}
	}
	return rc, nil
}

func validHost(h string) bool {
	if h == "" {
		return false
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if c <= ' ' || c == 0x7f {
			return false
		}
		switch c {
		case '/', '\\', '?', '#', '@':
			return false
		}
	}
	return true
}

// requestScheme prefers an absolute-form request URI, then X-Forwarded-Proto
// (first hop, http/https only), then the connection itself.
func requestScheme(r *http.Request) string {
	if s := r.URL.Scheme; s == "http" || s == "https" {
		return s
	}
	if xf := r.Header.Get("X-Forwarded-Proto"); xf != "" {
		first, _, _ := strings.Cut(xf, ",")
		switch s := strings.ToLower(strings.TrimSpace(first)); s {
		case "http", "https":
			return s
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
