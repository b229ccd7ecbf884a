package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// A module opts into each lifecycle phase by implementing the matching
// interface. LoadModule runs Configure, Provision and Validate in that
// order; App runs Start in load order and Stop in reverse.

// Configurable receives the module's section of the modules: map. It is
// skipped when the config file has no section for the module.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner applies defaults and publishes or resolves services. The
// store.sqlite module opens its database here so later modules can find
// the repositories.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator checks the provisioned state. It must not have side effects.
type Validator interface {
	Validate() error
}

// Starter begins background work such as listeners.
type Starter interface {
	Start() error
}

// Stopper releases what Start or Provision acquired.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader picks up a new configuration without a restart.
type Reloader interface {
	Reload(ctx *AppContext) error
}
