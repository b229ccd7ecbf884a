// Package gateway serves the operational HTTP surface of snapkeep: health,
// scheduler status, Prometheus metrics and a small authenticated admin API.
// It binds to loopback by default and follows the module system pattern.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/snapkeep/internal/config"
	"github.com/flemzord/snapkeep/internal/core"
	"github.com/flemzord/snapkeep/internal/cron"
	"github.com/flemzord/snapkeep/internal/engine"
	"github.com/flemzord/snapkeep/internal/metrics"
	"github.com/flemzord/snapkeep/internal/reload"
	"github.com/flemzord/snapkeep/internal/security"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// SchedulerStatus is the view of the scheduler the gateway reports on.
// *cron.Scheduler satisfies it.
type SchedulerStatus interface {
	ActiveTaskCount() int
	Degraded() bool
}

// ConfigReloader re-reads the configuration file. *reload.Handler
// satisfies it.
type ConfigReloader interface {
	Reload(ctx context.Context) error
}

// Gateway is the HTTP gateway module. It is a leaf module: nothing
// imports it, and every collaborator is resolved from the service
// registry at Start.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	limiter   *security.RateLimiter
	startedAt time.Time

	// Resolved lazily at Start() via service registry.
	scheduler  SchedulerStatus
	metrics    *metrics.Metrics
	audit      *security.AuditLogger
	reloader   ConfigReloader
	engine     Engine
	configPath string
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return fmt.Errorf("gateway: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.limiter = security.NewRateLimiter(g.config.AuthRateLimit)
	if creds, err := core.Service[*security.CredentialStore](ctx, security.CredentialsServiceName); err == nil {
		creds.Set("gateway.http.bearer_token", g.config.Auth.BearerToken)
		creds.Set("gateway.http.basic_pass", g.config.Auth.BasicPass)
	}
	if !g.config.Auth.IsConfigured() {
		g.logger.Warn("gateway: no auth configured, /status and /api are not mounted")
	}
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if err := g.config.validate(); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry and starts the HTTP server. Missing services degrade the
// matching endpoints instead of failing.
func (g *Gateway) Start() error {
	g.resolveServices()
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

func (g *Gateway) resolveServices() {
	if s, err := core.Service[SchedulerStatus](g.appCtx, cron.ServiceName); err == nil {
		g.scheduler = s
	}
	if m, err := core.Service[*metrics.Metrics](g.appCtx, metrics.ServiceName); err == nil {
		g.metrics = m
	}
	if a, err := core.Service[*security.AuditLogger](g.appCtx, security.AuditServiceName); err == nil {
		g.audit = a
	}
	if r, err := core.Service[ConfigReloader](g.appCtx, reload.ServiceName); err == nil {
		g.reloader = r
	}
	if e, err := core.Service[Engine](g.appCtx, engine.ServiceName); err == nil {
		g.engine = e
	}
	if p, err := core.Service[string](g.appCtx, config.PathServiceName); err == nil {
		g.configPath = p
	}
}
