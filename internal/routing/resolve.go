package routing

import (
	"net/url"
	"strings"

	"golang.org/x/text/language"
)

// Source records which rule picked a locale.
type Source uint8

const (
	SourceDefault Source = iota
	SourceQuery
	SourceCookie
	SourceHeader
)

func (s Source) String() string {
	switch s {
	case SourceQuery:
		return "query"
	case SourceCookie:
		return "cookie"
	case SourceHeader:
		return "header"
	default:
		return "default"
	}
}

// Resolution is the locale picked for a request and where it came from.
type Resolution struct {
	Locale Locale
	Source Source
}

// Override reports whether the request carried a valid explicit locale choice.
func (r Resolution) Override() bool { return r.Source == SourceQuery }

// ResolveLocale picks exactly one supported locale for rc. The first rule that
// yields a supported value wins: query override, cookie, Accept-Language, default.
// Values outside the supported set are ignored, never errors.
func (rt *Router) ResolveLocale(rc RequestContext) Resolution {
	if v, ok := queryValue(rc.RawQuery, rt.cfg.OverrideParam); ok && rt.isLocale(v) {
		return Resolution{Locale: Locale(v), Source: SourceQuery}
	}
	if v, ok := rc.Cookies[rt.cfg.Cookie.Name]; ok && rt.isLocale(v) {
		return Resolution{Locale: Locale(v), Source: SourceCookie}
	}
	if rc.Header != nil {
		if l, ok := rt.fromAcceptLanguage(rc.Header.Get("Accept-Language")); ok {
			return Resolution{Locale: l, Source: SourceHeader}
		}
	}
	return Resolution{Locale: rt.cfg.DefaultLocale, Source: SourceDefault}
}

// fromAcceptLanguage returns the non-default supported locale the header
// prefers most. The default locale is never returned from here since it is
// what the caller falls back to anyway.
func (rt *Router) fromAcceptLanguage(h string) (Locale, bool) {
	if h == "" || len(rt.nonDefault) == 0 {
		return "", false
	}
	tags, qs, err := language.ParseAcceptLanguage(h)
	if err != nil {
		// unparseable header: fall back to a plain substring check
		lower := strings.ToLower(h)
		for _, l := range rt.nonDefault {
			if strings.Contains(lower, string(l)) {
				return l, true
			}
		}
		return "", false
	}
	// tags come back sorted by descending weight, stable within equal weight
	for i, t := range tags {
		if qs[i] <= 0 {
			continue
		}
		base, conf := t.Base()
		if conf == language.No {
			continue
		}
		if l, ok := rt.bases[base.String()]; ok {
			return l, true
		}
	}
	return "", false
}

// queryValue returns the decoded value of the first pair whose decoded key is key.
func queryValue(raw, key string) (string, bool) {
	for raw != "" {
		var part string
		part, raw, _ = strings.Cut(raw, "&")
		k, v, _ := strings.Cut(part, "=")
		if decodeComponent(k) != key {
			continue
		}
		return decodeComponent(v), true
	}
	return "", false
}

func decodeComponent(s string) string {
	if d, err := url.QueryUnescape(s); err == nil {
		return d
	}
	return s
}
