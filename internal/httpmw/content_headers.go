package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ContentInfo reports the identity of the snapshot being served.
// Implementations must be cheap; they are called on every request.
type ContentInfo interface {
	ContentVersion() string
	ContentHash() string
}

const shortHashLen = 12

// ContentHeaders stamps X-Content-Bundle-Version and a short X-Content-Hash on
// responses and mirrors both onto the active span.
func ContentHeaders(info ContentInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if info == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v, hash := info.ContentVersion(), info.ContentHash()
			span := trace.SpanFromContext(r.Context())
			recording := span.IsRecording()

			if v != "" {
				w.Header().Set("X-Content-Bundle-Version", v)
				if recording {
					span.SetAttributes(attribute.String("content.version", v))
				}
			}
			if hash != "" {
				w.Header().Set("X-Content-Hash", shortHash(hash))
				if recording {
					span.SetAttributes(attribute.String("content.hash", hash))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func shortHash(h string) string {
	if len(h) > shortHashLen {
		return h[:shortHashLen]
	}
	return h
}
