// Package otlp exports engine traces to an OpenTelemetry collector over
// OTLP/HTTP. Loading the module installs the global tracer provider, so
// spans started through otel.Tracer anywhere in the process are exported.
package otlp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/snapkeep/internal/core"
	"github.com/flemzord/snapkeep/internal/security"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"
)

// ServiceTracerProvider is the service name under which the tracer
// provider is registered.
const ServiceTracerProvider = "telemetry.tracer_provider"

// Version is reported as service.version. Set by the binary at startup.
var Version = "dev"

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module installs an OTLP trace exporter.
type Module struct {
	config   Config
	logger   *slog.Logger
	provider *sdktrace.TracerProvider
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "telemetry.otlp",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("otlp: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	if err := m.config.validate(); err != nil {
		return err
	}
	if creds, err := core.Service[*security.CredentialStore](ctx, security.CredentialsServiceName); err == nil {
		creds.Set("telemetry.otlp.auth_token", m.config.AuthToken)
	}
	if m.config.Endpoint == "" {
		m.logger.Info("otlp: no endpoint configured, traces are not exported")
		return nil
	}

	ep, err := parseEndpoint(m.config)
	if err != nil {
		return err
	}
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(ep.host),
		otlptracehttp.WithHeaders(ep.headers),
	}
	if ep.basePath != "" {
		opts = append(opts, otlptracehttp.WithURLPath(ep.basePath+"/v1/traces"))
	}
	if ep.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("otlp: create trace exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", m.config.ServiceName),
		attribute.String("service.version", Version),
	)
	m.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(*m.config.SampleRate)),
	)
	otel.SetTracerProvider(m.provider)
	ctx.RegisterService(ServiceTracerProvider, trace.TracerProvider(m.provider))

	m.logger.Info("otlp: trace export enabled",
		"endpoint", m.config.Endpoint,
		"sample_rate", *m.config.SampleRate,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Stop implements core.Stopper. Pending spans are flushed.
func (m *Module) Stop(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	if err := m.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("otlp: shutdown: %w", err)
	}
	return nil
}

// Enabled reports whether traces are exported.
func (m *Module) Enabled() bool { return m.provider != nil }

// sampler maps a rate to a sampler: 0 never samples, (0,1) samples by
// trace id ratio, 1 or more always samples.
func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		return sdktrace.NeverSample()
	case rate < 1:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	default:
		return sdktrace.AlwaysSample()
	}
}
