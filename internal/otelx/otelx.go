// Package otelx installs the process-wide OpenTelemetry tracer provider.
package otelx

import (
	"context"
	"crypto/tls"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc/credentials"

	"github.com/keithlinneman/siteedge/internal/xerrors"
)

const exporterDialTimeout = 3 * time.Second

type Options struct {
	Enabled  bool
	Endpoint string
	// Insecure sends spans in plaintext, for a collector on localhost.
	Insecure  bool
	Sample    float64
	Service   string
	Component string
	Version   string
}

// ShutdownFunc flushes and stops the provider. Safe to call more than once.
type ShutdownFunc func(context.Context) error

func (o Options) serviceName() string {
	if o.Component == "" {
		return o.Service
	}
	return o.Service + "." + o.Component
}

// sampler clamps the ratio into [0,1] and respects the parent's decision.
func (o Options) sampler() sdktrace.Sampler {
	r := o.Sample
	switch {
	case r <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case r >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(r))
}

func (o Options) exporterOptions() []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(o.Endpoint)}
	if o.Insecure {
		return append(opts, otlptracegrpc.WithInsecure())
	}
	creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	return append(opts, otlptracegrpc.WithTLSCredentials(creds))
}

func setPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
}

// Init installs a tracer provider and W3C propagators globally. Disabled
// tracing still installs an SDK provider with no exporter so span contexts
// propagate and trace IDs reach logs and response headers.
func Init(ctx context.Context, o Options) (ShutdownFunc, error) {
	setPropagator()
	if !o.Enabled {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))
		otel.SetTracerProvider(tp)
		return tp.Shutdown, nil
	}
	if o.Endpoint == "" {
		return nil, xerrors.New("otlp endpoint is required when tracing is enabled")
	}

	// the grpc dial has no deadline of its own
	dialCtx, cancel := context.WithTimeout(ctx, exporterDialTimeout)
	defer cancel()
	exp, err := otlptracegrpc.New(dialCtx, o.exporterOptions()...)
	if err != nil {
		return nil, xerrors.Wrapf(err, "create otlp exporter for %s", o.Endpoint)
	}

	// partial resources are still useful; resource.New returns them alongside the error
	res, _ := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(o.serviceName()),
			semconv.ServiceVersionKey.String(o.Version),
		),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(o.sampler()),
		sdktrace.WithBatcher(exp,
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
