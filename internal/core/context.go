// Package core is the module system of snapkeep: a registry of module
// constructors, the optional lifecycle interfaces, and the App that drives
// loaded modules from Provision to Stop.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"
)

// AppContext is handed to modules during Provision and Reload. Copies made
// by WithModuleConfigs and ForModule share one service table.
type AppContext struct {
	// Logger carries a "module" attribute inside ForModule contexts.
	Logger *slog.Logger

	// DataDir holds persistent state such as the sqlite database.
	DataDir string

	root     *slog.Logger
	sections map[string]yaml.Node
	services *services
}

type services struct {
	sync.RWMutex
	byName map[string]any
}

// NewAppContext returns a root context. A nil logger means slog.Default.
func NewAppContext(logger *slog.Logger, dataDir string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:   logger,
		DataDir:  dataDir,
		root:     logger,
		services: &services{byName: map[string]any{}},
	}
}

// WithModuleConfigs returns a copy whose module sections are configs,
// keyed by module ID as in the modules: map of the config file.
func (ctx *AppContext) WithModuleConfigs(configs map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.sections = configs
	return &cp
}

// ForModule returns a copy scoped to id.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	cp := *ctx
	cp.Logger = ctx.root.With("module", string(id))
	return &cp
}

// RegisterService publishes svc under name, replacing any earlier value.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.Lock()
	ctx.services.byName[name] = svc
	ctx.services.Unlock()
}

// GetService returns the value published under name.
func (ctx *AppContext) GetService(name string) (any, bool) {
	ctx.services.RLock()
	defer ctx.services.RUnlock()
	svc, ok := ctx.services.byName[name]
	return svc, ok
}

// Service returns the value published under name asserted to T.
func Service[T any](ctx *AppContext, name string) (T, error) {
	var zero T
	svc, ok := ctx.GetService(name)
	if !ok {
		return zero, fmt.Errorf("service %s not registered", name)
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("service %s has type %T, want %T", name, svc, zero)
	}
	return typed, nil
}

// LoadModule builds the registered module id and takes it through
// Configure, Provision and Validate, skipping the phases it does not
// implement. Configure only runs when the module has a config section. A
// module that fails Validate is stopped before the error is returned.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, fmt.Errorf("unknown module: %s", id)
	}
	mod := info.New()

	if c, ok := mod.(Configurable); ok {
		if section, found := ctx.sections[id]; found {
			if err := c.Configure(&section); err != nil {
				return nil, fmt.Errorf("configuring module %s: %w", id, err)
			}
		}
	}
	if p, ok := mod.(Provisioner); ok {
		if err := p.Provision(ctx.ForModule(info.ID)); err != nil {
			return nil, fmt.Errorf("provisioning module %s: %w", id, err)
		}
	}
	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			if s, ok := mod.(Stopper); ok {
				_ = s.Stop(context.Background())
			}
			return nil, fmt.Errorf("validating module %s: %w", id, err)
		}
	}
	return mod, nil
}
