// Package httpmw holds the public server's middleware.
//
// httpserver composes them outermost first: recover, host hardening headers,
// request ID, client IP, rate limit, OTel, metrics, request logger, access log,
// then chi. The locale finalizer from package routing sits inside chi, in front
// of the site handler only.
//
// Query strings, user agents and other request headers stay out of log fields.
package httpmw
