package routing

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"golang.org/x/text/language"
)

// Router is a compiled, immutable routing policy.
type Router struct {
	cfg Config

	locales    map[Locale]struct{}
	nonDefault []Locale
	bases      map[string]Locale // language base ("ar") -> supported non-default locale

	prefixes      map[string]struct{}
	assetPrefixes []string
	assetFiles    map[string]struct{}
	assetExts     map[string]struct{}
	bypass        map[string]struct{}
	strip         map[string]struct{}
	aliases       map[string]string
}

// New validates cfg and compiles it into a Router. Every validation failure
// wraps ErrInvalidConfig; all failures are reported together.
func New(cfg Config) (*Router, error) {
	cfg = cfg.Clone()
	if cfg.OverrideParam != "" && !slices.Contains(cfg.StripParams, cfg.OverrideParam) {
		cfg.StripParams = append(cfg.StripParams, cfg.OverrideParam)
	}

	rt := &Router{
		cfg:        cfg,
		locales:    make(map[Locale]struct{}, len(cfg.Locales)),
		bases:      make(map[string]Locale, len(cfg.Locales)),
		prefixes:   toSet(cfg.LocaleLessPrefixes),
		assetFiles: toSet(cfg.AssetFiles),
		assetExts:  make(map[string]struct{}, len(cfg.AssetExtensions)),
		bypass:     toSet(cfg.SEOBypassPaths),
		strip:      toSet(cfg.StripParams),
		aliases:    make(map[string]string, len(cfg.Aliases)),
	}
	rt.assetPrefixes = append(rt.assetPrefixes, cfg.AssetPrefixes...)
	for _, e := range cfg.AssetExtensions {
		rt.assetExts[strings.ToLower(e)] = struct{}{}
	}

	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	if len(cfg.Locales) == 0 {
		bad("at least one locale is required")
	}
	for _, l := range cfg.Locales {
		if !validLocaleCode(string(l)) {
			bad("locale %q is not a lowercase language code", l)
			continue
		}
		if _, dup := rt.locales[l]; dup {
			bad("locale %q listed twice", l)
			continue
		}
		rt.locales[l] = struct{}{}
	}
	if _, ok := rt.locales[cfg.DefaultLocale]; !ok {
		bad("default locale %q is not in the supported set", cfg.DefaultLocale)
	}
	for _, l := range cfg.Locales {
		if l == cfg.DefaultLocale || !validLocaleCode(string(l)) {
			continue
		}
		tag, err := language.Parse(string(l))
		if err != nil {
			bad("locale %q: %v", l, err)
			continue
		}
		base, _ := tag.Base()
		if other, dup := rt.bases[base.String()]; dup && other != l {
			bad("locales %q and %q share language %q", other, l, base)
			continue
		}
		rt.bases[base.String()] = l
		rt.nonDefault = append(rt.nonDefault, l)
	}

	if cfg.OverrideParam == "" {
		bad("override_param must be set")
	}
	if cfg.Cookie.Name == "" {
		bad("cookie.name must be set")
	}
	if cfg.Cookie.MaxAgeSeconds < 0 {
		bad("cookie.max_age_seconds must not be negative")
	}

	for _, p := range cfg.LocaleLessPrefixes {
		switch {
		case p == "" || strings.Contains(p, "/"):
			bad("localeless prefix %q must be a single path segment", p)
		case rt.isLocale(p):
			bad("localeless prefix %q collides with a locale", p)
		}
	}
	for _, p := range cfg.AssetPrefixes {
		if !strings.HasPrefix(p, "/") || !strings.HasSuffix(p, "/") || len(p) < 3 {
			bad("asset prefix %q must look like /dir/", p)
		}
	}
	for _, f := range cfg.AssetFiles {
		if !strings.HasPrefix(f, "/") {
			bad("asset file %q must be an absolute path", f)
		}
	}
	for _, e := range cfg.AssetExtensions {
		if len(e) < 2 || e[0] != '.' || strings.Contains(e[1:], ".") || strings.Contains(e, "/") {
			bad("asset extension %q must look like .ext", e)
		}
	}
	for _, k := range cfg.StripParams {
		if k == "" {
			bad("strip_params must not contain an empty key")
		}
	}

	for from, to := range cfg.Aliases {
		switch {
		case basicNormalize(from) != from:
			bad("alias source %q is not a normalized path", from)
		case basicNormalize(to) != to:
			bad("alias target %q is not a normalized path", to)
		case from == to:
			bad("alias %q maps to itself", from)
		default:
			if _, chained := cfg.Aliases[to]; chained {
				bad("alias target %q is itself an alias source", to)
				continue
			}
			if seg, _ := splitFirstSegment(from); rt.isLocale(seg) {
				bad("alias source %q starts with a locale segment", from)
				continue
			}
			rt.aliases[from] = to
		}
	}
	for _, p := range cfg.SEOBypassPaths {
		if basicNormalize(p) != p {
			bad("bypass path %q is not a normalized path", p)
		}
		if _, aliased := cfg.Aliases[p]; aliased {
			bad("bypass path %q is also an alias source", p)
		}
	}

	if o := cfg.CanonicalOrigin; o != "" {
		u, err := url.Parse(o)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" ||
			(u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
			bad("canonical_origin %q must be scheme://host", o)
		} else {
			rt.cfg.CanonicalOrigin = strings.TrimSuffix(o, "/")
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return rt, nil
}

// MustNew is New for static configurations known to be valid.
func MustNew(cfg Config) *Router {
	rt, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return rt
}

// Config returns a copy of the compiled policy, including the implied strip keys.
func (rt *Router) Config() Config { return rt.cfg.Clone() }

// DefaultLocale returns the locale used when nothing else resolves.
func (rt *Router) DefaultLocale() Locale { return rt.cfg.DefaultLocale }

// Locales returns the supported locales in configured order.
func (rt *Router) Locales() []Locale { return append([]Locale(nil), rt.cfg.Locales...) }

// IsLocale reports whether s is exactly a supported locale code.
func (rt *Router) IsLocale(s string) bool { return rt.isLocale(s) }

func (rt *Router) isLocale(s string) bool {
	_, ok := rt.locales[Locale(s)]
	return ok
}

func toSet(ss []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		m[s] = struct{}{}
	}
	return m
}
