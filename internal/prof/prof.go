// Package prof runs the continuous profiler and tags request profiles.
package prof

import (
	"context"
	"net/http"
	"runtime"

	"github.com/grafana/pyroscope-go"

	"github.com/keithlinneman/siteedge/internal/log"
	"github.com/keithlinneman/siteedge/internal/xerrors"
)

type Options struct {
	Enabled              bool
	AppName              string
	ServerAddress        string
	AuthToken            string
	TenantID             string
	Tags                 map[string]string
	ProfileMutexFraction int
	BlockProfileRate     int
}

var profileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
	pyroscope.ProfileMutexCount,
	pyroscope.ProfileMutexDuration,
	pyroscope.ProfileBlockCount,
	pyroscope.ProfileBlockDuration,
}

func (o Options) config() (pyroscope.Config, error) {
	if o.ServerAddress == "" {
		return pyroscope.Config{}, xerrors.New("pyroscope server address is required")
	}
	if o.AppName == "" {
		return pyroscope.Config{}, xerrors.New("pyroscope app name is required")
	}
	return pyroscope.Config{
		ApplicationName: o.AppName,
		ServerAddress:   o.ServerAddress,
		AuthToken:       o.AuthToken,
		TenantID:        o.TenantID,
		Tags:            o.Tags,
		ProfileTypes:    profileTypes,
	}, nil
}

// Start begins profiling and returns its stop func. A disabled or failed
// start returns a no-op stop so callers can always defer it.
func Start(ctx context.Context, opts Options) (func(), error) {
	L := log.FromContext(ctx)
	if !opts.Enabled {
		L.Info(ctx, "pyroscope disabled")
		return func() {}, nil
	}

	cfg, err := opts.config()
	if err != nil {
		L.Error(ctx, err, "pyroscope options")
		return func() {}, err
	}
	if opts.ProfileMutexFraction > 0 {
		runtime.SetMutexProfileFraction(opts.ProfileMutexFraction)
	}
	if opts.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockProfileRate)
	}

	p, err := pyroscope.Start(cfg)
	if err != nil {
		err = xerrors.Wrap(err, "start pyroscope")
		L.Error(ctx, err, "pyroscope start failed", "server_address", opts.ServerAddress)
		return func() {}, err
	}
	L.Info(ctx, "pyroscope started", "server_address", opts.ServerAddress, "app_name", opts.AppName)

	return func() {
		if err := p.Stop(); err != nil {
			L.Warn(context.Background(), "pyroscope stop", "error", err.Error())
			return
		}
		L.Info(context.Background(), "pyroscope stopped", "server_address", opts.ServerAddress)
	}, nil
}

// Middleware labels the CPU profile of each request with label(r), so
// profiles split by route class instead of one anonymous handler stack.
// label must be cheap and return a small fixed set of values; "" skips tagging.
func Middleware(label func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if label == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := label(r)
			if v == "" {
				next.ServeHTTP(w, r)
				return
			}
			pyroscope.TagWrapper(r.Context(), pyroscope.Labels("route_class", v), func(ctx context.Context) {
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		})
	}
}
