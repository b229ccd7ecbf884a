// Package app provides the entry point shared by the snapkeep binary and
// its OS service wrapper.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/flemzord/snapkeep/internal/config"
	"github.com/flemzord/snapkeep/internal/core"
	"github.com/flemzord/snapkeep/internal/reload"
	"github.com/flemzord/snapkeep/internal/security"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides data_dir from the config and DefaultDataDir.
	DataDir string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer
}

// Run loads configuration, starts all modules and the scheduler, and
// blocks until ctx is cancelled or a shutdown signal is received. SIGHUP
// and config file changes trigger a live reload.
func Run(ctx context.Context, params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	redactor := security.NewRedactor()
	credentials := security.NewCredentialStore()
	logger := security.NewLogger(out, params.LogLevel, redactor)

	dataDir := resolveDataDir(params.DataDir, cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	auditLogger, closeAudit, err := openAuditLog(cfg.Engine.AuditLog, redactor)
	if err != nil {
		return err
	}
	defer closeAudit()

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService(security.AuditServiceName, auditLogger)
	appCtx.RegisterService(security.CredentialsServiceName, credentials)
	appCtx.RegisterService(config.PathServiceName, cfgPath)

	application := core.NewApp(appCtx)
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return err
	}
	defer application.Stop()

	// Secrets from module configs are known once modules are provisioned.
	redactor.SyncCredentials(credentials)

	rt, err := wire(application, appCtx, cfg, auditLogger)
	if err != nil {
		return err
	}

	handler := reload.NewHandler(application, appCtx, cfgPath,
		rt.reload,
		func(context.Context, *config.Config) error {
			redactor.SyncCredentials(credentials)
			return nil
		},
	)
	appCtx.RegisterService(reload.ServiceName, handler)

	if err := application.Start(); err != nil {
		return err
	}
	logger.Info("snapkeep started",
		"version", params.Version,
		"config", cfgPath,
		"data_dir", dataDir,
		"targets", len(cfg.Targets),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	watcher := reload.NewWatcher(reload.WatcherConfig{ConfigPath: cfgPath})
	watcher.Start(watchCtx)
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown requested")
			application.Stop()
			logger.Info("shutdown complete")
			return nil
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("SIGHUP received, reloading configuration")
				if err := handler.Reload(watchCtx); err != nil {
					logger.Error("reload failed", "error", err)
				}
				continue
			}
			logger.Info("shutdown signal received", "signal", sig.String())
			application.Stop()
			logger.Info("shutdown complete")
			return nil
		case evt := <-watcher.Events():
			logger.Info("config file changed, reloading", "path", evt.ConfigPath)
			if err := handler.Reload(watchCtx); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}
}

// openAuditLog opens the JSONL audit file in append mode. An empty path
// keeps audit events in the log stream only.
func openAuditLog(path string, redactor *security.Redactor) (*security.AuditLogger, func(), error) {
	if path == "" {
		return security.NewAuditLogger(security.AuditLoggerConfig{Redactor: redactor}), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening audit log: %w", err)
	}
	logger := security.NewAuditLogger(security.AuditLoggerConfig{
		Writer:   f,
		Redactor: redactor,
	})
	return logger, func() { _ = f.Close() }, nil
}

func resolveDataDir(flag, configured string) string {
	if flag != "" {
		return flag
	}
	if configured != "" {
		return configured
	}
	return DefaultDataDir()
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/snapkeep/snapkeep.yaml, then
// ~/.config/snapkeep/snapkeep.yaml, then ./snapkeep.yaml.
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "snapkeep", "snapkeep.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "snapkeep", "snapkeep.yaml"))
	}

	candidates = append(candidates, "snapkeep.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/snapkeep if set, otherwise ~/.local/share/snapkeep.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "snapkeep")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "snapkeep")
}
