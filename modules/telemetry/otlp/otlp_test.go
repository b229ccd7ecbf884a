package otlp

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/flemzord/snapkeep/internal/core"
	"github.com/flemzord/snapkeep/internal/security"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"
)

func configure(t *testing.T, src string) *Module {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(src), &node); err != nil {
		t.Fatal(err)
	}
	m := &Module{}
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatalf("configure: %v", err)
	}
	return m
}

func TestModule_DisabledWithoutEndpoint(t *testing.T) {
	m := configure(t, "service_name: test\n")
	ctx := core.NewAppContext(slog.Default(), t.TempDir())
	if err := m.Provision(ctx); err != nil {
		t.Fatal(err)
	}
	if m.Enabled() {
		t.Error("module should be disabled without an endpoint")
	}
	if _, ok := ctx.GetService(ServiceTracerProvider); ok {
		t.Error("tracer provider registered while disabled")
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Errorf("stop: %v", err)
	}
}

func TestModule_EnabledRegistersProvider(t *testing.T) {
	m := configure(t, "endpoint: http://127.0.0.1:4318/otel\nsample_rate: 0.5\n")
	ctx := core.NewAppContext(slog.Default(), t.TempDir())
	if err := m.Provision(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}
	if !m.Enabled() {
		t.Fatal("module should be enabled")
	}
	if _, err := core.Service[trace.TracerProvider](ctx, ServiceTracerProvider); err != nil {
		t.Errorf("tracer provider service: %v", err)
	}
}

func TestModule_RegistersAuthToken(t *testing.T) {
	m := configure(t, "auth_token: otlp-header-secret\n")
	ctx := core.NewAppContext(slog.Default(), t.TempDir())
	creds := security.NewCredentialStore()
	ctx.RegisterService(security.CredentialsServiceName, creds)

	if err := m.Provision(ctx); err != nil {
		t.Fatal(err)
	}
	if v, ok := creds.Get("telemetry.otlp.auth_token"); !ok || v != "otlp-header-secret" {
		t.Errorf("credential = %q, %v", v, ok)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	neg := -0.5
	tests := map[string]struct {
		cfg  Config
		want string
	}{
		"negative rate": {Config{SampleRate: &neg}, "sample_rate"},
		"bad scheme":    {Config{Endpoint: "grpc://collector:4317"}, "scheme"},
		"no host":       {Config{Endpoint: "http:///v1"}, "no host"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestParseEndpoint(t *testing.T) {
	t.Parallel()

	ep, err := parseEndpoint(Config{Endpoint: "https://otel.example.com/ingest/", AuthToken: "dXNlcjpwYXNz"})
	if err != nil {
		t.Fatal(err)
	}
	if ep.host != "otel.example.com" || ep.basePath != "/ingest" || ep.insecure {
		t.Errorf("endpoint = %+v", ep)
	}
	if ep.headers["Authorization"] != "Basic dXNlcjpwYXNz" {
		t.Errorf("headers = %v", ep.headers)
	}

	ep, _ = parseEndpoint(Config{Endpoint: "http://localhost:4318"})
	if !ep.insecure || ep.basePath != "" || len(ep.headers) != 0 {
		t.Errorf("endpoint = %+v", ep)
	}
}

func TestSampler(t *testing.T) {
	t.Parallel()

	tests := map[float64]string{
		0:   "AlwaysOffSampler",
		0.5: "ParentBased",
		1:   "AlwaysOnSampler",
		2:   "AlwaysOnSampler",
	}
	for rate, want := range tests {
		if got := sampler(rate).Description(); !strings.HasPrefix(got, want) {
			t.Errorf("sampler(%v) = %q, want prefix %q", rate, got, want)
		}
	}
}
