package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/siteedge/internal/version"
)

// ServerMetrics owns a private registry so tests and multiple servers never collide.
// Labels are bounded sets only: method, route pattern or route class, status.
type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	// http
	inflight    prometheus.Gauge
	reqTotal    *prometheus.CounterVec
	reqDur      *prometheus.HistogramVec
	respBytes   *prometheus.HistogramVec
	errorsTotal *prometheus.CounterVec
	panicTotal  prometheus.Counter

	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter

	// routing
	decisionsTotal   *prometheus.CounterVec
	localeTotal      *prometheus.CounterVec
	malformedTotal   prometheus.Counter
	cookieWriteTotal prometheus.Counter

	// content
	contentSource          *prometheus.GaugeVec
	contentLoadedTimestamp prometheus.Gauge
	contentBundleInfo      *prometheus.GaugeVec
	contentReloadsTotal    *prometheus.CounterVec
	watcherPollsTotal      prometheus.Counter
	watcherSwapsTotal      prometheus.Counter
	watcherErrorsTotal     *prometheus.CounterVec
	bundleLoadDuration     prometheus.Histogram
	watcherLastSuccessTs   prometheus.Gauge
	watcherStale           prometheus.Gauge

	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge
}

func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: prometheus.ExponentialBuckets(256, 4, 9),
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		panicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered handler panics",
		}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by the per-IP rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total requests rejected because the limiter's client table was full",
		}),
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "routing_decisions_total",
			Help: "Routing decisions by route class and action",
		}, []string{"class", "action"}),
		localeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "routing_locale_resolutions_total",
			Help: "Locales chosen for locale-bearing decisions by locale and signal source",
		}, []string{"locale", "source"}),
		malformedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routing_malformed_requests_total",
			Help: "Requests rejected with 400 before routing",
		}),
		cookieWriteTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routing_locale_cookie_writes_total",
			Help: "Responses that set the locale preference cookie",
		}),
		contentSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "content_source_info",
			Help: "Current content source (label carries value, gauge is always 1)",
		}, []string{"source"}),
		contentLoadedTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "content_loaded_timestamp_seconds",
			Help: "Unix timestamp of when the current content snapshot was loaded",
		}),
		contentBundleInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "content_bundle_info",
			Help: "Currently active content bundle (label carries identity, value is always 1)",
		}, []string{"sha256"}),
		contentReloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_dir_reloads_total",
			Help: "Content directory reloads by result",
		}, []string{"result"}),
		watcherPollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "content_watcher_polls_total",
			Help: "Total number of watcher poll cycles",
		}),
		watcherSwapsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "content_watcher_swaps_total",
			Help: "Total number of successful content bundle swaps",
		}),
		watcherErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_watcher_errors_total",
			Help: "Total watcher errors by type",
		}, []string{"type"}),
		bundleLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "content_bundle_load_duration_seconds",
			Help:    "Time to download, verify, and extract a content bundle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		watcherLastSuccessTs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "content_watcher_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful SSM poll",
		}),
		watcherStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "content_watcher_stale",
			Help: "Whether the content watcher is stale (1) or healthy (0)",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
	}
	reg.MustRegister(
		m.inflight, m.reqTotal, m.reqDur, m.respBytes, m.errorsTotal, m.panicTotal,
		m.ratelimitDeniedTotal, m.ratelimitCapacityTotal,
		m.decisionsTotal, m.localeTotal, m.malformedTotal, m.cookieWriteTotal,
		m.contentSource, m.contentLoadedTimestamp, m.contentBundleInfo, m.contentReloadsTotal,
		m.watcherPollsTotal, m.watcherSwapsTotal, m.watcherErrorsTotal, m.bundleLoadDuration,
		m.watcherLastSuccessTs, m.watcherStale,
		m.buildInfo, m.profilingActive,
	)

	m.reg = reg
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return m
}

func (m *ServerMetrics) Handler() http.Handler { return m.handler }

// Registry exposes the private registry for tests and extra collectors.
func (m *ServerMetrics) Registry() *prometheus.Registry { return m.reg }

func (m *ServerMetrics) IncHttpPanic()         { m.panicTotal.Inc() }
func (m *ServerMetrics) IncRateLimitDenied()   { m.ratelimitDeniedTotal.Inc() }
func (m *ServerMetrics) IncRateLimitCapacity() { m.ratelimitCapacityTotal.Inc() }

// SetBuildInfo is called once at startup.
func (m *ServerMetrics) SetBuildInfo(component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":        vi.App,
		"component":  component,
		"version":    vi.Version,
		"commit":     vi.Commit,
		"build_date": vi.BuildDate,
		"go_version": vi.GoVersion,
		"vcs_dirty":  dirty,
	}).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) { m.profilingActive.Set(boolGauge(active)) }

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
