// Package routing decides, for every inbound request, the canonical
// locale-prefixed location of the resource it names.
//
// The pipeline is linear and pure: Normalize -> ResolveLocale -> Classify ->
// Canonicalize. Router.Middleware wraps the result in the response finalizer
// which either writes a 301 or hands the original request to the content
// handler. A Router is built once from a Config and never mutated, so a single
// instance serves any number of concurrent requests without locking.
//
// Every redirect target is a fixed point: running the pipeline again on the
// Location of a redirect yields a pass-through decision.
package routing
