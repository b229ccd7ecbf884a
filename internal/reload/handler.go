package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flemzord/snapkeep/internal/config"
	"github.com/flemzord/snapkeep/internal/core"
)

// ServiceName is the AppContext service key of the Handler.
const ServiceName = "reload.handler"

// Hook runs after modules reloaded, with the new validated config.
type Hook func(ctx context.Context, cfg *config.Config) error

// Handler reloads application configuration, notifies modules and then
// runs the registered hooks. Reloads are serialized.
type Handler struct {
	mu         sync.Mutex
	app        *core.App
	appCtx     *core.AppContext
	logger     *slog.Logger
	configPath string
	hooks      []Hook
}

// NewHandler creates a reload handler for the config file at configPath.
// appCtx is the context the modules were loaded with; reloads share its
// services.
func NewHandler(app *core.App, appCtx *core.AppContext, configPath string, hooks ...Hook) *Handler {
	return &Handler{
		app:        app,
		appCtx:     appCtx,
		logger:     appCtx.Logger,
		configPath: configPath,
		hooks:      hooks,
	}
}

// Reload re-reads the handler's config file.
func (h *Handler) Reload(ctx context.Context) error {
	return h.HandleReload(ctx, h.configPath)
}

// HandleReload loads a fresh config from disk, validates it, and calls Reload
// on all modules that implement core.Reloader.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return h.handleReload(ctx, cfg)
}

// HandleReloadFromConfig reloads from a pre-loaded config. The caller is
// responsible for calling config.Validate first.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	return h.handleReload(ctx, cfg)
}

func (h *Handler) handleReload(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	if err := h.app.ReloadModules(h.appCtx.WithModuleConfigs(cfg.Modules)); err != nil {
		errs = append(errs, fmt.Errorf("reloading modules: %w", err))
	}
	for _, hook := range h.hooks {
		if err := hook(ctx, cfg); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	h.logger.Info("configuration reloaded successfully")
	return nil
}
