package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/flemzord/snapkeep/internal/core"
	"github.com/flemzord/snapkeep/internal/schedule"
)

// Validate checks the structural validity of a Config.
// It verifies the version field, every target definition, the engine
// settings, and that all referenced module IDs exist in the registry.
// All problems are reported together.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	for _, id := range Resolve(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	errs = append(errs, validateTargets(cfg.Targets)...)
	errs = append(errs, validateEngine(cfg.Engine)...)

	return errors.Join(errs...)
}

func validateTargets(targets map[string]Target) []error {
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	slices.Sort(names)

	var errs []error
	for _, name := range names {
		t := targets[name]
		if err := schedule.ValidateTarget(name); err != nil {
			errs = append(errs, fmt.Errorf("config: targets.%s: %w", name, err))
		}
		if t.Root == "" {
			errs = append(errs, fmt.Errorf("config: targets.%s: root is required", name))
		}
		if len(t.RunningCheck) > 0 && t.RunningCheck[0] == "" {
			errs = append(errs, fmt.Errorf("config: targets.%s: running_check program is empty", name))
		}
	}
	return errs
}

func validateEngine(e Engine) []error {
	var errs []error
	if d, err := e.Timeout(); err != nil {
		errs = append(errs, fmt.Errorf("config: engine.command_timeout: %w", err))
	} else if d <= 0 {
		errs = append(errs, fmt.Errorf("config: engine.command_timeout must be positive, got %s", d))
	}
	if d, err := e.MaxTempAge(); err != nil {
		errs = append(errs, fmt.Errorf("config: engine.sweep_max_age: %w", err))
	} else if d <= 0 {
		errs = append(errs, fmt.Errorf("config: engine.sweep_max_age must be positive, got %s", d))
	}
	if _, err := schedule.ParseCron(e.Sweep()); err != nil {
		errs = append(errs, fmt.Errorf("config: engine.sweep_schedule: %w", err))
	}
	if _, err := schedule.ParseCron(e.Reconcile()); err != nil {
		errs = append(errs, fmt.Errorf("config: engine.reconcile_schedule: %w", err))
	}
	return errs
}
