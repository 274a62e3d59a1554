package routing

import (
	"net/http"
	"strings"
)

// Action is what the finalizer does with a request.
type Action uint8

const (
	PassThrough Action = iota
	Redirect
)

func (a Action) String() string {
	if a == Redirect {
		return "redirect"
	}
	return "pass_through"
}

// Decision is the outcome of the pipeline for one request.
type Decision struct {
	Action Action
	// Status is 301 for redirects and 0 for pass-through.
	Status int
	Class  RouteClass
	// Locale is the locale the target path carries, empty for assets and bypass paths.
	Locale Locale
	Source Source

	TargetPath  string
	TargetQuery string

	// PersistLocale asks the finalizer to store Locale in the preference cookie.
	PersistLocale bool
}

// Location is the absolute URL of the target under origin.
func (d Decision) Location(origin string) string {
	if d.TargetQuery == "" {
		return origin + d.TargetPath
	}
	return origin + d.TargetPath + "?" + d.TargetQuery
}

// Input is what Canonicalize needs from the earlier stages.
type Input struct {
	OriginalPath  string
	OriginalQuery string
	Path          string // normalized
	Class         RouteClass
	Resolution    Resolution
}

// Canonicalize builds the canonical target for a classified request and
// compares it with the original. Any difference in path or query is a 301.
// When they match the decision is PassThrough and the request is served untouched.
func (rt *Router) Canonicalize(in Input) Decision {
	d := Decision{
		Class:       in.Class,
		Source:      in.Resolution.Source,
		TargetPath:  in.Path,
		TargetQuery: in.OriginalQuery,
	}

	switch in.Class.Kind {
	case ClassSEOBypass:
		// path normalization only, query is never touched
	case ClassAsset:
		d.TargetQuery = rt.StripQuery(in.OriginalQuery)
	case ClassRoot, ClassLocaleLessKnown, ClassUnknown:
		d.Locale = in.Resolution.Locale
		d.TargetPath = rt.WithLocale(in.Path, d.Locale)
		d.TargetQuery = rt.StripQuery(in.OriginalQuery)
	case ClassLocalePrefixed:
		d.Locale = in.Class.Locale
		if in.Resolution.Override() && in.Resolution.Locale != in.Class.Locale {
			d.Locale = in.Resolution.Locale
			d.TargetPath = rt.WithLocale(in.Path, d.Locale)
		}
		d.TargetQuery = rt.StripQuery(in.OriginalQuery)
	}

	if d.TargetPath != in.OriginalPath || d.TargetQuery != in.OriginalQuery {
		d.Action = Redirect
		d.Status = http.StatusMovedPermanently
	}

	switch {
	case d.Locale == "":
	case d.Action == Redirect:
		d.PersistLocale = in.Resolution.Override()
	default:
		d.PersistLocale = in.Class.Kind == ClassLocalePrefixed
	}
	return d
}

// StripQuery removes every pair whose decoded key is in the strip set.
// Order, encoding and duplicates of the remaining pairs are preserved; when
// nothing matches the input is returned unchanged.
func (rt *Router) StripQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	kept := parts[:0:0]
	dropped := false
	for _, part := range parts {
		k, _, _ := strings.Cut(part, "=")
		if _, ok := rt.strip[decodeComponent(k)]; ok {
			dropped = true
			continue
		}
		kept = append(kept, part)
	}
	if !dropped {
		return raw
	}
	return strings.Join(kept, "&")
}

// Decide runs the whole pipeline on rc.
func (rt *Router) Decide(rc RequestContext) Decision {
	p := rt.Normalize(rc.Pathname)
	return rt.Canonicalize(Input{
		OriginalPath:  rc.Pathname,
		OriginalQuery: rc.RawQuery,
		Path:          p,
		Class:         rt.Classify(p),
		Resolution:    rt.ResolveLocale(rc),
	})
}
