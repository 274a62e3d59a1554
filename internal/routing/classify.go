package routing

import (
	"path"
	"strings"
)

// ClassKind is the category of a normalized path.
type ClassKind uint8

const (
	ClassUnknown ClassKind = iota
	ClassSEOBypass
	ClassAsset
	ClassRoot
	ClassLocalePrefixed
	ClassLocaleLessKnown
)

func (k ClassKind) String() string {
	switch k {
	case ClassSEOBypass:
		return "seo_bypass"
	case ClassAsset:
		return "asset"
	case ClassRoot:
		return "root"
	case ClassLocalePrefixed:
		return "locale_prefixed"
	case ClassLocaleLessKnown:
		return "localeless_known"
	default:
		return "unknown"
	}
}

// RouteClass is the result of Classify. Locale is set only for
// ClassLocalePrefixed and Prefix only for ClassLocaleLessKnown.
type RouteClass struct {
	Kind   ClassKind
	Locale Locale
	Prefix string
}

func (c RouteClass) String() string { return c.Kind.String() }

// Classify assigns exactly one class to a normalized path. Rules are checked
// in order and the first match wins: SEO bypass, asset, root, locale prefix,
// known locale-less section, unknown.
func (rt *Router) Classify(p string) RouteClass {
	if _, ok := rt.bypass[p]; ok {
		return RouteClass{Kind: ClassSEOBypass}
	}
	if rt.isAsset(p) {
		return RouteClass{Kind: ClassAsset}
	}
	if p == "/" || p == "" {
		return RouteClass{Kind: ClassRoot}
	}

	seg, _ := splitFirstSegment(p)
	if rt.isLocale(seg) {
		return RouteClass{Kind: ClassLocalePrefixed, Locale: Locale(seg)}
	}
	if _, ok := rt.prefixes[seg]; ok {
		return RouteClass{Kind: ClassLocaleLessKnown, Prefix: seg}
	}
	return RouteClass{Kind: ClassUnknown}
}

func (rt *Router) isAsset(p string) bool {
	for _, pre := range rt.assetPrefixes {
		if strings.HasPrefix(p, pre) {
			return true
		}
	}
	if _, ok := rt.assetFiles[p]; ok {
		return true
	}
	if ext := path.Ext(p); ext != "" {
		_, ok := rt.assetExts[strings.ToLower(ext)]
		return ok
	}
	return false
}
