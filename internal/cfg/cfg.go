package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/siteedge/internal/log"
)

// EnvPrefix is prepended to upper-cased flag names for env fill.
const EnvPrefix = "SITEEDGE_"

// Content sources selectable with -content-source.
const (
	ContentSeed = "seed"
	ContentS3   = "s3"
	ContentDir  = "dir"
)

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort    int
	AdminPort   int
	TrustedHops int

	RoutingConfig   string
	CanonicalOrigin string

	RateLimitRPS   float64
	RateLimitBurst int

	EnableHSTS bool
	CSP        string

	EnablePprof     bool
	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string
	EnableTracing   bool
	OTLPEndpoint    string
	OTLPInsecure    bool
	TraceSample     float64

	ContentSource        string
	ContentDir           string
	EnableContentUpdates bool
	ContentPollInterval  time.Duration
	ContentSSMParam      string
	ContentS3Bucket      string
	ContentS3Prefix      string
	ContentSigningKeyARN string
	RequireSignature     bool
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 1, "number of reverse proxies in front of us whose X-Forwarded-* headers are trusted (0..8)")

	fs.StringVar(&c.RoutingConfig, "routing-config", "", "YAML routing policy file (built-in defaults when empty)")
	fs.StringVar(&c.CanonicalOrigin, "canonical-origin", "", "scheme://host used in every redirect Location (overrides routing config)")

	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 20, "per client IP requests per second, 0 disables")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 40, "per client IP burst size")

	fs.BoolVar(&c.EnableHSTS, "enable-hsts", true, "send Strict-Transport-Security on https responses")
	fs.StringVar(&c.CSP, "csp", "", "Content-Security-Policy override (built-in policy when empty)")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.BoolVar(&c.OTLPInsecure, "otlp-insecure", true, "use plaintext gRPC to the OTLP endpoint (false = TLS)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.StringVar(&c.ContentSource, "content-source", ContentSeed, "where site content comes from: seed|s3|dir")
	fs.StringVar(&c.ContentDir, "content-dir", "", "static export directory when -content-source=dir")
	fs.BoolVar(&c.EnableContentUpdates, "enable-content-updates", true, "poll SSM (s3) or watch the directory (dir) for new content")
	fs.DurationVar(&c.ContentPollInterval, "content-poll-interval", 30*time.Second, "SSM poll interval for -content-source=s3")
	fs.StringVar(&c.ContentSSMParam, "content-ssm-param", "/app/siteedge/content/stable/release/id", "ssm parameter name to get content bundle hash from")
	fs.StringVar(&c.ContentS3Bucket, "content-s3-bucket", "", "s3 bucket name to get content bundle from")
	fs.StringVar(&c.ContentS3Prefix, "content-s3-prefix", "apps/siteedge/content/bundles", "s3 prefix (key) to get content bundle from")
	fs.StringVar(&c.ContentSigningKeyARN, "content-signing-key-arn", "", "KMS key ARN for content bundle signature verification")
	fs.BoolVar(&c.RequireSignature, "content-require-signature", true, "refuse s3 bundles without a valid KMS signature")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvKey(prefix, f.Name)
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// EnvKey maps flag "content-s3-bucket" to PREFIX_CONTENT_S3_BUCKET.
func EnvKey(prefix, flagName string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(flagName), "-", "_")
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error
	bad := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	// ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		bad("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort)
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		bad("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort)
	}
	if c.AdminPort == c.HTTPPort {
		bad("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort)
	}
	if c.TrustedHops < 0 || c.TrustedHops > 8 {
		bad("TRUSTED_HOPS must be 0..8 (got %d)", c.TrustedHops)
	}

	// log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		bad("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			bad("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err)
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		bad("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks)
	}

	// routing
	if c.CanonicalOrigin != "" {
		if u, err := url.Parse(c.CanonicalOrigin); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			bad("CANONICAL_ORIGIN must be scheme://host (got %q)", c.CanonicalOrigin)
		}
	}
	if c.RateLimitRPS < 0 {
		bad("RATE_LIMIT_RPS must not be negative (got %v)", c.RateLimitRPS)
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		bad("RATE_LIMIT_BURST must be >= 1 when rate limiting is enabled (got %d)", c.RateLimitBurst)
	}

	// telemetry
	if c.TraceSample < 0 || c.TraceSample > 1 {
		bad("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample)
	}
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			bad("PYRO_SERVER required when ENABLE_PYROSCOPE=true")
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			bad("PYRO_SERVER must be a URL (got %q)", c.PyroServer)
		}
		if c.PyroTenantID == "" {
			bad("PYRO_TENANT required when ENABLE_PYROSCOPE=true")
		}
	}
	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			bad("OTLP_ENDPOINT required when ENABLE_TRACING=true")
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			bad("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err)
		}
	}

	// content
	switch c.ContentSource {
	case ContentSeed:
	case ContentDir:
		if c.ContentDir == "" {
			bad("CONTENT_DIR is required when CONTENT_SOURCE=dir")
		}
	case ContentS3:
		if c.ContentSSMParam == "" {
			bad("CONTENT_SSM_PARAM is required when CONTENT_SOURCE=s3")
		}
		if c.ContentS3Bucket == "" {
			bad("CONTENT_S3_BUCKET is required when CONTENT_SOURCE=s3")
		}
		if c.ContentS3Prefix == "" {
			bad("CONTENT_S3_PREFIX is required when CONTENT_SOURCE=s3")
		}
		if c.RequireSignature && c.ContentSigningKeyARN == "" {
			bad("CONTENT_SIGNING_KEY_ARN is required when CONTENT_REQUIRE_SIGNATURE=true")
		}
		if c.EnableContentUpdates && c.ContentPollInterval < time.Second {
			bad("CONTENT_POLL_INTERVAL must be >= 1s (got %s)", c.ContentPollInterval)
		}
	default:
		bad("CONTENT_SOURCE must be one of seed|s3|dir (got %q)", c.ContentSource)
	}

	return errors.Join(errs...)
}
