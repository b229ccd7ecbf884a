// Package sqlite persists schedules and artifact metadata in a single
// SQLite database. It uses modernc.org/sqlite (pure Go, no CGO).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/flemzord/snapkeep/internal/artifact"
	"github.com/flemzord/snapkeep/internal/core"
	"github.com/flemzord/snapkeep/internal/schedule"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ schedule.Repository = (*ScheduleStore)(nil)
	_ artifact.Repository = (*ArtifactStore)(nil)
	_ core.Configurable   = (*Module)(nil)
	_ core.Provisioner    = (*Module)(nil)
	_ core.Validator      = (*Module)(nil)
	_ core.Stopper        = (*Module)(nil)
)

// Module provides the schedule and artifact repositories backed by one
// database.
type Module struct {
	config    Config
	db        *sql.DB
	logger    *slog.Logger
	schedules *ScheduleStore
	artifacts *ArtifactStore
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "store.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	db, err := Open(context.Background(), m.config)
	if err != nil {
		return err
	}
	m.db = db
	m.schedules = NewScheduleStore(db)
	m.artifacts = NewArtifactStore(db)

	ctx.RegisterService(schedule.ServiceName, schedule.Repository(m.schedules))
	ctx.RegisterService(artifact.ServiceName, artifact.Repository(m.artifacts))

	m.logger.Info("sqlite store provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.db.PingContext(context.Background()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.logger != nil {
		m.logger.Info("sqlite store stopping")
	}
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// Schedules returns the schedule repository.
func (m *Module) Schedules() *ScheduleStore { return m.schedules }

// Artifacts returns the artifact repository.
func (m *Module) Artifacts() *ArtifactStore { return m.artifacts }
