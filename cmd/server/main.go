package main

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keithlinneman/siteedge/internal/cfg"
	"github.com/keithlinneman/siteedge/internal/content"
	"github.com/keithlinneman/siteedge/internal/health"
	"github.com/keithlinneman/siteedge/internal/httpmw"
	"github.com/keithlinneman/siteedge/internal/opshttp"
	"github.com/keithlinneman/siteedge/internal/ratelimit"
	"github.com/keithlinneman/siteedge/internal/routing"
	"github.com/keithlinneman/siteedge/internal/sitehandler"
	"github.com/keithlinneman/siteedge/internal/statushttp"
	"github.com/keithlinneman/siteedge/internal/webassets"

	"github.com/keithlinneman/siteedge/internal/httpserver"
	"github.com/keithlinneman/siteedge/internal/log"
	"github.com/keithlinneman/siteedge/internal/metrics"
	"github.com/keithlinneman/siteedge/internal/otelx"
	"github.com/keithlinneman/siteedge/internal/prof"
	v "github.com/keithlinneman/siteedge/internal/version"
)

const drainPeriod = 60 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		os.Exit(0)
	}

	// flags set on the command line win over SITEEDGE_* env vars
	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(cmp.Or(conf.StacktraceLevel, "error"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSON:              conf.LogJSON,
		IncludeErrorLinks: conf.IncludeErrorLinks,
		MaxErrorLinks:     conf.MaxErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	// routing policy: file (or built-in defaults), then the origin flag on top
	routingConf := routing.DefaultConfig()
	if conf.RoutingConfig != "" {
		if routingConf, err = routing.LoadConfig(conf.RoutingConfig); err != nil {
			L.Error(ctx, err, "failed to load routing config", "path", conf.RoutingConfig)
			os.Exit(1)
		}
	}
	if conf.CanonicalOrigin != "" {
		routingConf.CanonicalOrigin = conf.CanonicalOrigin
	}
	rt, err := routing.New(routingConf)
	if err != nil {
		L.Error(ctx, err, "invalid routing config")
		os.Exit(1)
	}

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"trusted_hops", conf.TrustedHops,
		"locales", rt.Locales(),
		"default_locale", rt.DefaultLocale(),
		"canonical_origin", routingConf.CanonicalOrigin,
		"routing_config", conf.RoutingConfig,
		"rate_limit_rps", conf.RateLimitRPS,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
		"content_source", conf.ContentSource,
		"content_dir", conf.ContentDir,
		"enable_content_updates", conf.EnableContentUpdates,
		"content_ssm_param", conf.ContentSSMParam,
		"content_s3_bucket", conf.ContentS3Bucket,
		"content_s3_prefix", conf.ContentS3Prefix,
		"content_signing_key_arn", conf.ContentSigningKeyARN,
		"require_signature", conf.RequireSignature,
	)

	m := metrics.New()
	m.SetBuildInfo("server", vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
			"source":    "go-agent",
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)
	defer func() { stopProf() }()

	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  conf.OTLPInsecure,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// every snapshot must have a root page per routed locale
	validation := content.DefaultValidationOptions()
	for _, l := range rt.Locales() {
		validation.Locales = append(validation.Locales, l.String())
	}

	seedFS, haveSeed := webassets.SeedSiteFS()
	contentMgr := content.NewManager()
	runContent, err := contentSetup{
		L:          L,
		conf:       conf,
		mgr:        contentMgr,
		m:          m,
		validation: validation,
		seedFS:     seedFS,
		haveSeed:   haveSeed,
	}.start(ctx)
	if err != nil {
		L.Error(ctx, err, "failed to set up content source", "content_source", conf.ContentSource)
		os.Exit(1)
	}
	if runContent != nil {
		go runContent(ctx)
	}

	siteHandler, err := sitehandler.New(sitehandler.Options{
		Logger:     L,
		Content:    contentMgr,
		FallbackFS: webassets.FallbackFS(),
	})
	if err != nil {
		L.Error(ctx, err, "failed to create site handler")
		os.Exit(1)
	}

	var gate health.ShutdownGate

	// ready once we are not draining and have content to serve
	readiness := health.All(
		gate.Probe(),
		health.Named("content", contentMgr),
	)

	var rateLimitMW func(http.Handler) http.Handler
	if conf.RateLimitRPS > 0 {
		limiter := ratelimit.New(ctx,
			ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
			ratelimit.WithOnDenied(func(ip string) {
				m.IncRateLimitDenied()
			}),
			// logged once per visitor until it is evicted
			ratelimit.WithOnFirstDenied(func(ip string) {
				L.Warn(ctx, "rate limit triggered", "ip", ip)
			}),
			ratelimit.WithOnCapacity(func() {
				m.IncRateLimitCapacity()
				L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
			}),
		)
		rateLimitMW = limiter.Middleware
	}

	var profileMW func(http.Handler) http.Handler
	if conf.EnablePyroscope {
		profileMW = prof.Middleware(func(r *http.Request) string {
			return httpserver.ClassOf(rt, r).Kind.String()
		})
	}

	siteHTTPStop, err := httpserver.Start(ctx, httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		Router:       rt,
		Observers:    []routing.Observer{m, httpmw.DecisionTracer{}},
		SiteHandler:  siteHandler,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  rateLimitMW,
		ProfileMW:    profileMW,
		ClientIP:     httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		Security:     httpmw.SecurityOptions{HSTS: conf.EnableHSTS, CSP: conf.CSP},
		ContentInfo:  contentMgr,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// metrics, health, status and pprof; refuses public peers and forwarded requests
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
		Status:      statushttp.NewAPI(contentMgr, rt, vi, L).Handler(),
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		// worst case systemd kills us after its start timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()
	stop()

	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	// fail readiness so the load balancer stops sending new requests
	gate.Set("draining")
	L.Info(bg, "shutdown gate closed, draining", "drain_period", drainPeriod.String())

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainPeriod):
		L.Info(bg, "drain period complete")
	case <-forceCh:
		L.Warn(bg, "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(bg, 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "site http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}
	stopProf()

	L.Info(bg, "shutdown complete")
}

func notifySystemd() error {
	// set by systemd for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		_ = conn.Close()
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
