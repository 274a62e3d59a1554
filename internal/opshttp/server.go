package opshttp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/keithlinneman/siteedge/internal/health"
	"github.com/keithlinneman/siteedge/internal/log"
	"github.com/keithlinneman/siteedge/internal/xerrors"
)

const (
	defaultPort = 9000
	StatusPath  = "/-/status"
)

// NewHandler builds the ops mux: /-/healthy, /-/ready, /metrics and optionally
// /-/status and pprof.
func NewHandler(L log.Logger, opts *Options) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/-/healthy", health.Handler(opts.Health, "ok"))
	mux.Handle("/-/ready", health.Handler(opts.Readiness, "ready"))

	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}
	if opts.Status != nil {
		status := http.StripPrefix(StatusPath, opts.Status)
		mux.Handle(StatusPath, status)
		mux.Handle(StatusPath+"/", status)
	}

	// shadow pprof with 404s when disabled so the catch-all never serves it
	if opts.EnablePprof {
		RegisterPprof(mux)
	} else {
		mux.HandleFunc("/debug/pprof/", http.NotFound)
	}

	if opts.AllowPublic {
		return mux
	}
	return requireNonPublicNetwork(L, mux)
}

// Start serves NewHandler on opts.Port and returns an idempotent stop func.
func Start(ctx context.Context, L log.Logger, opts *Options) (func(context.Context) error, error) {
	port := opts.Port
	if port == 0 {
		port = defaultPort
	}
	addr := fmt.Sprintf(":%d", port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(L, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// pprof profile/trace stream for up to 30s by default
		WriteTimeout:   40 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen for ops server on addr=%v", addr)
	}

	go func() {
		L.Info(ctx, "ops http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			L.Error(ctx, err, "ops http server error")
		}
	}()

	var once sync.Once
	var stopErr error
	stop := func(sctx context.Context) error {
		once.Do(func() {
			L.Info(sctx, "ops http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			stopErr = srv.Shutdown(c)
		})
		return stopErr
	}
	return stop, nil
}
