package otelx

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const defaultNamespace = "slotkeeper"

// Config controls tracing for one service process.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Namespace      string
	Environment    string
	InstanceID     string
	OTLPEndpoint   string // host:port, e.g. jaeger:4317
	Insecure       bool
	ExportTimeout  time.Duration
	SampleRatio    float64
}

// ConfigFromEnv reads the OTEL_* variables plus SERVICE_VERSION and
// DEPLOYMENT_ENV. Unparseable values fall back to defaults.
func ConfigFromEnv(serviceName string) Config {
	cfg := Config{
		Enabled:        envBool("OTEL_ENABLED", true),
		ServiceName:    serviceName,
		ServiceVersion: strings.TrimSpace(getenv("SERVICE_VERSION", "dev")),
		Namespace:      strings.TrimSpace(getenv("OTEL_SERVICE_NAMESPACE", defaultNamespace)),
		Environment:    strings.TrimSpace(getenv("DEPLOYMENT_ENV", "local")),
		InstanceID:     strings.TrimSpace(getenv("HOSTNAME", "")),
		OTLPEndpoint:   strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "jaeger:4317")),
		Insecure:       envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		ExportTimeout:  3 * time.Second,
		SampleRatio:    1,
	}
	if v := strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_TIMEOUT", "")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ExportTimeout = d
		}
	}
	if v := strings.TrimSpace(getenv("OTEL_SAMPLING_RATIO", "1")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.SampleRatio = f
		}
	}
	return cfg
}

// Attributes is the resource identity attached to every exported span.
func (c Config) Attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(c.ServiceName)}
	if c.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(c.ServiceVersion))
	}
	if c.Namespace != "" {
		attrs = append(attrs, semconv.ServiceNamespace(c.Namespace))
	}
	if c.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(c.Environment))
	}
	if c.InstanceID != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(c.InstanceID))
	}
	return attrs
}

// Sampler honours the caller's sampling decision and samples new roots by ratio.
func (c Config) Sampler() sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case c.SampleRatio >= 1:
		root = sdktrace.AlwaysSample()
	case c.SampleRatio <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(c.SampleRatio)
	}
	return sdktrace.ParentBased(root)
}

// Setup installs W3C propagators and, when enabled, an OTLP/gRPC tracer
// provider. The returned func flushes pending spans.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithTimeout(cfg.ExportTimeout),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(cfg.Attributes()...),
		resource.WithProcessRuntimeName(),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(cfg.Sampler()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns a named tracer from the global provider. Before Setup runs it is a no-op tracer.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

func envBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(getenv(key, "")))
	switch v {
	case "":
		return fallback
	case "false", "0", "no", "off":
		return false
	default:
		return true
	}
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
