package httpmw

import (
	"net/http"
	"strconv"
)

const (
	DefaultCSP               = "default-src 'self'; script-src 'self'; style-src 'self'; img-src 'self' data:; font-src 'self'; base-uri 'self'; form-action 'self'; frame-ancestors 'none'; object-src 'none'"
	defaultPermissionsPolicy = "accelerometer=(), camera=(), geolocation=(), gyroscope=(), magnetometer=(), microphone=(), payment=(), usb=()"
)

// SecurityOptions tunes the host hardening headers. X-Content-Type-Options and
// Referrer-Policy are always sent with the same values the routing finalizer
// uses, so responses that never reach the router (health, 429, recovered
// panics) carry them too.
type SecurityOptions struct {
	// HSTS is only worth sending when TLS terminates in front of us.
	HSTS              bool
	HSTSMaxAgeSeconds int

	// CSP overrides DefaultCSP. "-" disables the header.
	CSP string
}

func (o SecurityOptions) hstsValue() string {
	age := o.HSTSMaxAgeSeconds
	if age <= 0 {
		age = 31536000
	}
	return "max-age=" + strconv.Itoa(age) + "; includeSubDomains"
}

// SecurityHeaders sets the hardening headers on every response before next runs.
func SecurityHeaders(opts SecurityOptions) func(http.Handler) http.Handler {
	csp := opts.CSP
	if csp == "" {
		csp = DefaultCSP
	}
	var hsts string
	if opts.HSTS {
		hsts = opts.hstsValue()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if hsts != "" {
				h.Set("Strict-Transport-Security", hsts)
			}
			if csp != "-" {
				h.Set("Content-Security-Policy", csp)
			}
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Permissions-Policy", defaultPermissionsPolicy)
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			h.Set("Cross-Origin-Resource-Policy", "same-origin")
			next.ServeHTTP(w, r)
		})
	}
}
