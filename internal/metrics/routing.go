package metrics

import (
	"context"

	"github.com/keithlinneman/siteedge/internal/routing"
)

// routeLabel is a per-request slot the metrics middleware creates and inner
// layers fill when chi has no pattern (everything served by the site handler).
type routeLabel struct{ v string }

type routeLabelKey struct{}

func withRouteLabel(ctx context.Context) (context.Context, *routeLabel) {
	if l, ok := ctx.Value(routeLabelKey{}).(*routeLabel); ok {
		return ctx, l
	}
	l := &routeLabel{}
	return context.WithValue(ctx, routeLabelKey{}, l), l
}

// SetRouteLabel names the route for the request's metrics. No-op outside Middleware.
// Only the request goroutine may call it.
func SetRouteLabel(ctx context.Context, route string) {
	if l, ok := ctx.Value(routeLabelKey{}).(*routeLabel); ok {
		l.v = route
	}
}

// ObserveDecision implements routing.Observer.
func (m *ServerMetrics) ObserveDecision(ctx context.Context, d routing.Decision) {
	m.decisionsTotal.WithLabelValues(d.Class.Kind.String(), d.Action.String()).Inc()
	if d.Locale != "" {
		m.localeTotal.WithLabelValues(string(d.Locale), d.Source.String()).Inc()
	}
	if d.PersistLocale {
		m.cookieWriteTotal.Inc()
	}
	route := "site:" + d.Class.Kind.String()
	if d.Action == routing.Redirect {
		route = "redirect:" + d.Class.Kind.String()
	}
	SetRouteLabel(ctx, route)
}

// ObserveMalformed implements routing.Observer.
func (m *ServerMetrics) ObserveMalformed(ctx context.Context, _ error) {
	m.malformedTotal.Inc()
	SetRouteLabel(ctx, "malformed")
}

var _ routing.Observer = (*ServerMetrics)(nil)
