package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const shutdownTimeout = 30 * time.Second

type moduleState uint8

const (
	stateLoaded moduleState = iota
	stateStarted
	stateStopped
)

type loadedModule struct {
	id     ModuleID
	module Module
	state  moduleState
}

// App owns the modules of one process run. Modules start in the order
// they were added and stop in reverse.
type App struct {
	ctx     *AppContext
	logger  *slog.Logger
	modules []*loadedModule
}

// NewApp returns an empty App bound to ctx.
func NewApp(ctx *AppContext) *App {
	return &App{ctx: ctx, logger: ctx.Logger.With("component", "core")}
}

// LoadModules loads ids in order through AppContext.LoadModule. On the
// first failure every module loaded so far is released and the error is
// returned.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.Stop()
			a.modules = nil
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		a.AppendModule(mod.ModuleInfo().ID, mod)
		a.logger.Info("module loaded", "module", id)
	}
	return nil
}

// AppendModule adds a module built outside the registry, such as the
// scheduler assembled in pkg/app. It must be called before Start.
func (a *App) AppendModule(id ModuleID, m Module) {
	a.modules = append(a.modules, &loadedModule{id: id, module: m})
}

// Module returns the module added under id.
func (a *App) Module(id string) (Module, bool) {
	for _, lm := range a.modules {
		if lm.id == ModuleID(id) {
			return lm.module, true
		}
	}
	return nil, false
}

// Start runs Start on every Starter. When one fails, the modules started
// before it are stopped again and the error is returned; the rest are
// left for Stop to release.
func (a *App) Start() error {
	for i, lm := range a.modules {
		s, ok := lm.module.(Starter)
		if !ok {
			continue
		}
		a.logger.Info("starting module", "module", string(lm.id))
		if err := s.Start(); err != nil {
			a.logger.Error("module start failed", "module", string(lm.id), "error", err)
			a.stop(a.modules[:i], func(lm *loadedModule) bool { return lm.state == stateStarted })
			return fmt.Errorf("starting module %s: %w", lm.id, err)
		}
		lm.state = stateStarted
	}
	a.logger.Info("all modules started")
	return nil
}

// Stop releases every module not stopped yet, in reverse order. Modules
// that were loaded but never started are stopped too, since Provision may
// already hold resources such as database handles. Stop is idempotent.
func (a *App) Stop() {
	a.stop(a.modules, func(lm *loadedModule) bool { return lm.state != stateStopped })
}

func (a *App) stop(mods []*loadedModule, want func(*loadedModule) bool) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(mods) - 1; i >= 0; i-- {
		lm := mods[i]
		if !want(lm) {
			continue
		}
		lm.state = stateStopped
		s, ok := lm.module.(Stopper)
		if !ok {
			continue
		}
		a.logger.Info("stopping module", "module", string(lm.id))
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("module stop error", "module", string(lm.id), "error", err)
		}
	}
}

// ReloadModules hands ctx to every Reloader. All modules are tried; the
// failures come back joined.
func (a *App) ReloadModules(ctx *AppContext) error {
	var errs []error
	for _, lm := range a.modules {
		r, ok := lm.module.(Reloader)
		if !ok {
			continue
		}
		a.logger.Info("reloading module", "module", string(lm.id))
		if err := r.Reload(ctx.ForModule(lm.id)); err != nil {
			a.logger.Error("module reload failed", "module", string(lm.id), "error", err)
			errs = append(errs, fmt.Errorf("reloading module %s: %w", lm.id, err))
		}
	}
	return errors.Join(errs...)
}
