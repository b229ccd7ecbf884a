package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flemzord/snapkeep/pkg/app"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// exitFunc terminates the process when a service start fails.
var exitFunc = os.Exit

// program adapts app.Run to the service manager's Start/Stop callbacks.
type program struct {
	params app.RunParams
	cancel context.CancelFunc
	done   chan error
	logger service.Logger
	exit   func(code int)
}

var _ service.Interface = (*program)(nil)

func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		err := app.Run(ctx, p.params)
		if err != nil && ctx.Err() == nil {
			// Startup failed outside of a stop request; let the service
			// manager see the failure and apply its restart policy.
			if p.logger != nil {
				_ = p.logger.Error(err)
			}
			p.exit(1)
		}
		p.done <- err
	}()
	return nil
}

func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

// serviceConfig builds the OS service definition. The installed unit
// runs "snapkeep service run" with the flags given at install time.
func serviceConfig(params app.RunParams, levelName string) (*service.Config, error) {
	args := []string{"service", "run", "--log-level", levelName}
	if params.ConfigPath != "" {
		abs, err := filepath.Abs(params.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("resolving config path: %w", err)
		}
		args = append(args, "--config", abs)
	}
	if params.DataDir != "" {
		abs, err := filepath.Abs(params.DataDir)
		if err != nil {
			return nil, fmt.Errorf("resolving data dir: %w", err)
		}
		args = append(args, "--data-dir", abs)
	}
	return &service.Config{
		Name:        "snapkeep",
		DisplayName: "snapkeep",
		Description: "Scheduled configuration snapshots and versioned backups for game servers.",
		Arguments:   args,
		Option: service.KeyValue{
			"Restart": "on-failure",
		},
	}, nil
}

func newService(cmd *cobra.Command) (service.Service, *program, error) {
	params, err := runParams(cmd)
	if err != nil {
		return nil, nil, err
	}
	levelName, _ := cmd.Flags().GetString("log-level")
	cfg, err := serviceConfig(params, levelName)
	if err != nil {
		return nil, nil, err
	}
	prg := &program{params: params, exit: exitFunc}
	s, err := service.New(prg, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("service: %w", err)
	}
	return s, prg, nil
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage snapkeep as an OS service",
	}

	for _, action := range service.ControlAction {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the snapkeep service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, _, err := newService(cmd)
				if err != nil {
					return err
				}
				if err := service.Control(s, action); err != nil {
					return fmt.Errorf("service %s: %w", action, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, err := newService(cmd)
			if err != nil {
				return err
			}
			status, err := s.Status()
			if errors.Is(err, service.ErrNotInstalled) {
				fmt.Fprintln(cmd.OutOrStdout(), "not installed")
				return nil
			}
			if err != nil {
				return fmt.Errorf("service status: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusName(status))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run under the service manager (used by the installed unit)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, prg, err := newService(cmd)
			if err != nil {
				return err
			}
			if logger, err := s.Logger(nil); err == nil {
				prg.logger = logger
			}
			return s.Run()
		},
	})

	return cmd
}

func statusName(s service.Status) string {
	switch s {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
