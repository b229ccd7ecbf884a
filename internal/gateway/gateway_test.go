package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/snapkeep/internal/config"
	"github.com/flemzord/snapkeep/internal/core"
	"github.com/flemzord/snapkeep/internal/cron"
	"github.com/flemzord/snapkeep/internal/metrics"
	"github.com/flemzord/snapkeep/internal/reload"
	"github.com/flemzord/snapkeep/internal/security"
	"gopkg.in/yaml.v3"
)

type fakeScheduler struct {
	active   int
	degraded bool
}

func (f fakeScheduler) ActiveTaskCount() int { return f.active }
func (f fakeScheduler) Degraded() bool       { return f.degraded }

type fakeReloader struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeReloader) Reload(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestGateway provisions a gateway with bearer auth and resolves the
// services registered by setup.
func newTestGateway(t *testing.T, auth AuthConfig, setup func(ctx *core.AppContext)) *Gateway {
	t.Helper()
	ctx := core.NewAppContext(testLogger(), t.TempDir())
	if setup != nil {
		setup(ctx)
	}
	g := &Gateway{config: Config{Auth: auth}}
	if err := g.Provision(ctx); err != nil {
		t.Fatal(err)
	}
	g.resolveServices()
	g.startedAt = time.Now()
	return g
}

func do(t *testing.T, h http.Handler, method, path, authz string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

var bearer = AuthConfig{BearerToken: "s3cret"}

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		sched    SchedulerStatus
		wantCode int
		want     string
	}{
		"no scheduler": {nil, http.StatusOK, "ok"},
		"healthy":      {fakeScheduler{active: 2}, http.StatusOK, "ok"},
		"degraded":     {fakeScheduler{degraded: true}, http.StatusServiceUnavailable, "degraded"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			g := &Gateway{scheduler: tt.sched}
			rr := do(t, g.handleHealth(), http.MethodGet, "/health", "")
			if rr.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.want {
				t.Errorf("status = %q, want %q", resp.Status, tt.want)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, bearer, func(ctx *core.AppContext) {
		ctx.RegisterService(cron.ServiceName, SchedulerStatus(fakeScheduler{active: 3}))
	})
	rr := do(t, g.buildRouter(), http.MethodGet, "/status", "Bearer s3cret")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp StatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.ActiveTasks != 3 || resp.Degraded || resp.Scheduler != "running" {
		t.Errorf("status = %+v", resp)
	}
}

func TestRouter_AdminNotMountedWithoutAuth(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, AuthConfig{}, nil)
	h := g.buildRouter()
	for _, path := range []string{"/status", "/api/modules"} {
		if rr := do(t, h, http.MethodGet, path, ""); rr.Code != http.StatusNotFound {
			t.Errorf("%s = %d, want 404", path, rr.Code)
		}
	}
	if rr := do(t, h, http.MethodGet, "/health", ""); rr.Code != http.StatusOK {
		t.Errorf("/health = %d", rr.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.SetActiveTasks(4)
	g := newTestGateway(t, AuthConfig{}, func(ctx *core.AppContext) {
		ctx.RegisterService(metrics.ServiceName, m)
	})
	rr := do(t, g.buildRouter(), http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "snapkeep_active_tasks 4") {
		t.Errorf("metrics body missing gauge:\n%s", rr.Body.String())
	}
}

func TestAuth(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		events []security.AuditEvent
	)
	audit := security.NewAuditLogger(security.AuditLoggerConfig{OnEvent: func(ev security.AuditEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}})
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	cfg := AuthConfig{BearerToken: "tok", BasicUser: "admin", BasicPass: "pw"}
	h := authMiddleware(cfg, audit, nil)(ok)

	basic := func(u, p string) string {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetBasicAuth(u, p)
		return req.Header.Get("Authorization")
	}
	tests := map[string]struct {
		authz string
		want  int
	}{
		"bearer":       {"Bearer tok", http.StatusNoContent},
		"wrong bearer": {"Bearer nope", http.StatusUnauthorized},
		"basic":        {basic("admin", "pw"), http.StatusNoContent},
		"wrong basic":  {basic("admin", "nope"), http.StatusUnauthorized},
		"missing":      {"", http.StatusUnauthorized},
	}
	for name, tt := range tests {
		if rr := do(t, h, http.MethodGet, "/status", tt.authz); rr.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", name, rr.Code, tt.want)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 3 {
		t.Fatalf("audit events = %d, want 3", len(events))
	}
	for _, ev := range events {
		if ev.Action != "auth.failure" || ev.Status != security.AuditFailure || ev.TargetName != "GET /status" {
			t.Errorf("event = %+v", ev)
		}
	}
}

func TestAuth_RateLimited(t *testing.T) {
	t.Parallel()

	limiter := security.NewRateLimiter(security.RateLimitConfig{Limit: 2, Window: time.Minute})
	h := authMiddleware(bearer, nil, limiter)(http.NotFoundHandler())

	for range 2 {
		if rr := do(t, h, http.MethodGet, "/", "Bearer wrong"); rr.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rr.Code)
		}
	}
	if rr := do(t, h, http.MethodGet, "/", "Bearer s3cret"); rr.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rr.Code)
	}
}

func TestModules(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, bearer, nil)
	rr := do(t, g.buildRouter(), http.MethodGet, "/api/modules?namespace=gateway", "Bearer s3cret")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var mods []moduleJSON
	if err := json.NewDecoder(rr.Body).Decode(&mods); err != nil {
		t.Fatal(err)
	}
	if len(mods) != 1 || mods[0].ID != "gateway.http" || mods[0].Namespace != "gateway" || mods[0].Name != "http" {
		t.Errorf("modules = %+v", mods)
	}
}

func TestConfig_Redacted(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapkeep.yaml")
	content := `version: "1"
targets:
  survival:
    root: /srv/survival
modules:
  gateway.http:
    auth:
      bearer_token: hunter2
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	g := newTestGateway(t, bearer, func(ctx *core.AppContext) {
		ctx.RegisterService(config.PathServiceName, path)
	})

	rr := do(t, g.buildRouter(), http.MethodGet, "/api/config", "Bearer s3cret")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	if strings.Contains(body, "hunter2") {
		t.Errorf("secret leaked: %s", body)
	}
	if !strings.Contains(body, "***REDACTED***") || !strings.Contains(body, "/srv/survival") {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestConfig_NoPath(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, bearer, nil)
	if rr := do(t, g.buildRouter(), http.MethodGet, "/api/config", "Bearer s3cret"); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestReloadConfig(t *testing.T) {
	t.Parallel()

	r := &fakeReloader{}
	g := newTestGateway(t, bearer, func(ctx *core.AppContext) {
		ctx.RegisterService(reload.ServiceName, ConfigReloader(r))
	})
	h := g.buildRouter()

	if rr := do(t, h, http.MethodPost, "/api/config/reload", "Bearer s3cret"); rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}
	r.err = errors.New("validating config: version is required")
	rr := do(t, h, http.MethodPost, "/api/config/reload", "Bearer s3cret")
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), "version is required") {
		t.Errorf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	if r.calls != 2 {
		t.Errorf("reload calls = %d", r.calls)
	}
}

func TestMaskSecrets(t *testing.T) {
	t.Parallel()

	src := `
auth:
  bearer_token: x
  basic_user: admin
  basic_pass: y
list:
  - api_key: z
root: /srv
empty_token: ""
`
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatal(err)
	}
	maskSecrets(&doc)

	var got struct {
		Auth       map[string]string   `yaml:"auth"`
		List       []map[string]string `yaml:"list"`
		Root       string              `yaml:"root"`
		EmptyToken string              `yaml:"empty_token"`
	}
	if err := doc.Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Auth["bearer_token"] != redactedValue || got.Auth["basic_pass"] != redactedValue || got.Auth["basic_user"] != "admin" {
		t.Errorf("auth = %v", got.Auth)
	}
	if got.List[0]["api_key"] != redactedValue {
		t.Errorf("list = %v", got.List)
	}
	if got.Root != "/srv" || got.EmptyToken != "" {
		t.Errorf("root = %q, empty_token = %q", got.Root, got.EmptyToken)
	}
}

func TestGateway_Lifecycle(t *testing.T) {
	t.Parallel()

	ctx := core.NewAppContext(testLogger(), t.TempDir())
	ctx.RegisterService(cron.ServiceName, SchedulerStatus(fakeScheduler{active: 1}))
	g := &Gateway{config: Config{Bind: "127.0.0.1:0"}}
	if err := g.Provision(ctx); err != nil {
		t.Fatal(err)
	}
	if err := g.Validate(); err != nil {
		t.Fatal(err)
	}
	if err := g.Start(); err != nil {
		t.Fatal(err)
	}
	if err := g.Stop(context.Background()); err != nil {
		t.Errorf("stop: %v", err)
	}
}

func TestGateway_InvalidBind(t *testing.T) {
	t.Parallel()

	g := &Gateway{config: Config{Bind: "not an address"}}
	g.config.defaults()
	if err := g.Validate(); err == nil {
		t.Error("expected error for invalid bind")
	}
}

func TestConfig_BasicAuthIncomplete(t *testing.T) {
	t.Parallel()

	g := &Gateway{config: Config{Auth: AuthConfig{BasicUser: "admin"}}}
	g.config.defaults()
	err := g.Validate()
	if err == nil || !strings.Contains(err.Error(), "basic_pass") {
		t.Errorf("err = %v, want basic auth error", err)
	}
}

func TestRouter_RecoversPanics(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, bearer, func(ctx *core.AppContext) {
		ctx.RegisterService(reload.ServiceName, ConfigReloader(panicReloader{}))
	})
	rr := do(t, g.buildRouter(), http.MethodPost, "/api/config/reload", "Bearer s3cret")
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}

type panicReloader struct{}

func (panicReloader) Reload(context.Context) error { panic("boom") }
