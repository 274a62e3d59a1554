package httpmw

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/siteedge/internal/log"
	"github.com/keithlinneman/siteedge/internal/routing"
)

// AnnotateHTTPRoute names the span after the chi route pattern once the
// handler has run. Requests chi could not match keep the name the routing
// observer gave them, so raw paths never become span names.
func AnnotateHTTPRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		span := trace.SpanFromContext(r.Context())
		if !span.IsRecording() {
			return
		}
		rc := chi.RouteContext(r.Context())
		if rc == nil {
			return
		}
		if p := rc.RoutePattern(); p != "" && p != "/*" {
			span.SetAttributes(attribute.String("http.route", p))
			span.SetName(r.Method + " " + p)
		}
	})
}

// DecisionTracer is a routing.Observer that records each decision on the
// active span and at debug level on the request logger.
type DecisionTracer struct{}

var _ routing.Observer = DecisionTracer{}

func (DecisionTracer) ObserveDecision(ctx context.Context, d routing.Decision) {
	class := d.Class.Kind.String()
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		attrs := []attribute.KeyValue{
			attribute.String("routing.class", class),
			attribute.String("routing.action", d.Action.String()),
		}
		if d.Locale != "" {
			attrs = append(attrs,
				attribute.String("routing.locale", string(d.Locale)),
				attribute.String("routing.locale_source", d.Source.String()),
			)
		}
		span.SetAttributes(attrs...)
		span.SetName("site " + class)
	}

	kv := []any{"routing.class", class, "routing.action", d.Action.String()}
	if d.Locale != "" {
		kv = append(kv, "routing.locale", string(d.Locale), "routing.locale_source", d.Source.String())
	}
	if d.Action == routing.Redirect {
		kv = append(kv, "routing.target", d.TargetPath)
	}
	log.FromContext(ctx).Debug(ctx, "routing decision", kv...)
}

func (DecisionTracer) ObserveMalformed(ctx context.Context, err error) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
		span.SetName("site malformed")
	}
	log.FromContext(ctx).Warn(ctx, "malformed request rejected", "error", err.Error())
}
