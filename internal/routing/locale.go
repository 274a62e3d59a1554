package routing

import "regexp"

// Locale is a short lowercase language code drawn from the configured set ("en", "ar").
type Locale string

func (l Locale) String() string { return string(l) }

var localeCodeRE = regexp.MustCompile(`^[a-z]{2,3}(-[a-z0-9]{2,8})?$`)

// validLocaleCode reports whether s can be used as a path segment locale.
func validLocaleCode(s string) bool {
	return localeCodeRE.MatchString(s)
}

// WithLocale returns p under locale l. A leading supported locale segment is
// replaced rather than nested, so the result never carries two locale segments.
// p must be a normalized path.
func (rt *Router) WithLocale(p string, l Locale) string {
	seg, rest := splitFirstSegment(p)
	if _, ok := rt.locales[Locale(seg)]; ok {
		p = rest
	}
	if p == "/" || p == "" {
		return "/" + string(l)
	}
	return "/" + string(l) + p
}

// splitFirstSegment splits "/a/b/c" into ("a", "/b/c") and "/a" into ("a", "").
// Leading slashes are skipped.
func splitFirstSegment(p string) (seg, rest string) {
	i := 0
	for i < len(p) && p[i] == '/' {
		i++
	}
	p = p[i:]
	for j := 0; j < len(p); j++ {
		if p[j] == '/' {
			return p[:j], p[j:]
		}
	}
	return p, ""
}
