package routing

import (
	"context"
	"net/http"
	"strings"
)

// Observer is told about every request the finalizer handles. Implementations
// must be safe for concurrent use and must not block.
type Observer interface {
	ObserveDecision(ctx context.Context, d Decision)
	ObserveMalformed(ctx context.Context, err error)
}

type decisionKey struct{}

// WithDecision stores d on ctx for the wrapped handler.
func WithDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, d)
}

// DecisionFromContext returns the decision the finalizer passed through, if any.
func DecisionFromContext(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(Decision)
	return d, ok
}

// Middleware is the response finalizer. Every response it produces carries
// X-Content-Type-Options: nosniff and Referrer-Policy: strict-origin-when-cross-origin,
// including redirects, 400s and whatever next writes.
func (rt *Router) Middleware(observers ...Observer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

			rc, err := NewRequestContext(r)
			if err != nil {
				for _, o := range observers {
					o.ObserveMalformed(r.Context(), err)
				}
				http.Error(w, "400 bad request", http.StatusBadRequest)
				return
			}

			d := rt.Decide(rc)
			for _, o := range observers {
				o.ObserveDecision(r.Context(), d)
			}

			if d.PersistLocale {
				http.SetCookie(w, rt.LocaleCookie(d.Locale, rc))
			}

			if d.Action == Redirect {
				http.Redirect(w, r, d.Location(rt.origin(rc)), d.Status)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithDecision(r.Context(), d)))
		})
	}
}

// LocaleCookie builds the preference cookie for l.
func (rt *Router) LocaleCookie(l Locale, rc RequestContext) *http.Cookie {
	c := rt.cfg.Cookie
	return &http.Cookie{
		Name:     c.Name,
		Value:    string(l),
		Path:     "/",
		MaxAge:   c.MaxAgeSeconds,
		Secure:   c.Secure || strings.HasPrefix(rc.Origin, "https://"),
		SameSite: http.SameSiteLaxMode,
	}
}

func (rt *Router) origin(rc RequestContext) string {
	if rt.cfg.CanonicalOrigin != "" {
		return rt.cfg.CanonicalOrigin
	}
	return rc.Origin
}
