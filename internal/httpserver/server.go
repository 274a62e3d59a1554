package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/siteedge/internal/health"
	"github.com/keithlinneman/siteedge/internal/httpmw"
	"github.com/keithlinneman/siteedge/internal/log"
	"github.com/keithlinneman/siteedge/internal/routing"
	"github.com/keithlinneman/siteedge/internal/xerrors"
)

const (
	HealthPath = "/-/healthy"
	ReadyPath  = "/-/ready"

	defaultMaxBody = 1024
)

// ClassOf classifies r the way the router will, without deciding anything.
// Returns the zero class when rt is nil.
func ClassOf(rt *routing.Router, r *http.Request) routing.RouteClass {
	if rt == nil {
		return routing.RouteClass{}
	}
	return rt.Classify(rt.Normalize(r.URL.EscapedPath()))
}

func isOpsPath(p string) bool { return p == HealthPath || p == ReadyPath }

// NewHandler builds the public handler. main owns the *http.Server so it
// can shut it down gracefully.
func NewHandler(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	isAsset := func(r *http.Request) bool {
		return opts.Router != nil && ClassOf(opts.Router, r).Kind == routing.ClassAsset
	}

	r := chi.NewRouter()

	r.Use(middleware.Compress(5,
		"text/html",
		"text/css",
		"text/plain",
		"text/xml",
		"application/xml",
		"application/javascript",
		"text/javascript",
		"application/json",
		"image/svg+xml",
		"image/x-icon",
	))
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog(httpmw.AccessLogOptions{Skip: isAsset}))
	r.Use(httpmw.MaxBody(maxBody))

	if opts.Health != nil {
		r.Get(HealthPath, health.Handler(opts.Health, "ok"))
	}
	if opts.Readiness != nil {
		r.Get(ReadyPath, health.Handler(opts.Readiness, "ready"))
	}

	// everything else belongs to the site, behind the router. The catch-all
	// route makes sure the mux middleware runs even without health routes.
	if site := siteChain(opts); site != nil {
		r.Handle("/*", site)
		r.NotFound(site.ServeHTTP)
		r.MethodNotAllowed(site.ServeHTTP)
	}

	var h http.Handler = r

	if opts.ProfileMW != nil {
		h = opts.ProfileMW(h)
	}

	// request-scoped logger, inside the span so it picks up trace ids
	h = httpmw.RequestLogger(opts.Logger)(h)

	if opts.MetricsMW != nil {
		h = opts.MetricsMW(h)
	}

	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)

	if opts.ContentInfo != nil {
		h = httpmw.ContentHeaders(opts.ContentInfo)(h)
	}

	h = otelhttp.NewHandler(
		h,
		"http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return !isOpsPath(r.URL.Path) && !isAsset(r)
		}),
		// the routing observer renames the span to its route class
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " site"
		}),
		otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
	)

	// the limiter keys on the address ClientIP resolved
	if opts.RateLimitMW != nil {
		h = opts.RateLimitMW(h)
	}
	h = httpmw.ClientIP(opts.ClientIP)(h)
	h = httpmw.RequestID(httpmw.DefaultRequestIDHeader)(h)

	if opts.UseRecoverMW {
		h = httpmw.Recover(opts.Logger, opts.OnPanic)(h)
	}

	// outermost so even a recovered panic carries the host policy
	return httpmw.SecurityHeaders(opts.Security)(h)
}

func siteChain(opts Options) http.Handler {
	if opts.SiteHandler == nil {
		return nil
	}
	h := httpmw.Scope("site")(opts.SiteHandler)
	if opts.Router != nil {
		h = opts.Router.Middleware(opts.Observers...)(h)
	}
	return h
}

// Public listener timeouts.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20

	shutdownTimeout = 5 * time.Second
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start listens on opts.Port (8080 if unset) and serves in the background.
// The returned stop func shuts down gracefully and is safe to call twice.
func Start(ctx context.Context, opts Options) (func(context.Context) error, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)

	srv := NewServer(addr, NewHandler(opts))
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen %s", addr)
	}

	go func() {
		opts.Logger.Info(ctx, "http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			opts.Logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			opts.Logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, shutdownTimeout)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
