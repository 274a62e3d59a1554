package httpserver

import (
	"net/http"

	"github.com/keithlinneman/siteedge/internal/health"
	"github.com/keithlinneman/siteedge/internal/httpmw"
	"github.com/keithlinneman/siteedge/internal/log"
	"github.com/keithlinneman/siteedge/internal/routing"
)

type Options struct {
	Logger log.Logger
	Port   int

	// Router runs in front of SiteHandler. Nil serves SiteHandler unrouted.
	Router *routing.Router
	// Observers see every routing decision, in order.
	Observers   []routing.Observer
	SiteHandler http.Handler

	Health    health.Probe
	Readiness health.Probe

	UseRecoverMW bool
	OnPanic      func()

	MetricsMW   func(http.Handler) http.Handler
	RateLimitMW func(http.Handler) http.Handler
	// ProfileMW is wrapped innermost so profiling labels cover handler work only.
	ProfileMW func(http.Handler) http.Handler

	ClientIP    httpmw.ClientIPOptions
	Security    httpmw.SecurityOptions
	ContentInfo httpmw.ContentInfo // X-Content-Bundle-Version and X-Content-Hash

	// MaxBodyBytes defaults to 1KB; the site takes no request bodies.
	MaxBodyBytes int64
}
