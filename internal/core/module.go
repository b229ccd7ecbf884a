package core

import "strings"

// ModuleID is a dotted module identifier such as "store.sqlite".
type ModuleID string

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	// ID is unique across the registry.
	ID ModuleID

	// New returns a fresh, unconfigured instance.
	New func() Module
}

// Module is implemented by every pluggable component. Optional lifecycle
// interfaces are declared in lifecycle.go.
type Module interface {
	ModuleInfo() ModuleInfo
}

// Namespace returns the part of the id before the first dot, e.g. "store"
// for "store.sqlite".
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// Name returns the part of the id after the first dot, or the whole id
// when it has none.
func (id ModuleID) Name() string {
	_, name, ok := strings.Cut(string(id), ".")
	if !ok {
		return string(id)
	}
	return name
}
