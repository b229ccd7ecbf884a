package core

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// registry is the process-wide table of module constructors. Modules add
// themselves from init, so entries only ever appear before main runs.
var registry = struct {
	sync.RWMutex
	byID map[ModuleID]ModuleInfo
}{byID: map[ModuleID]ModuleInfo{}}

// RegisterModule adds instance's ModuleInfo to the registry. Registering
// the same ID twice, an empty ID or a nil constructor panics.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID == "":
		panic("core: module registered with an empty ID")
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s has no constructor", info.ID))
	}

	registry.Lock()
	defer registry.Unlock()
	if _, dup := registry.byID[info.ID]; dup {
		panic(fmt.Sprintf("core: module %s registered twice", info.ID))
	}
	registry.byID[info.ID] = info
}

// GetModule looks up a registered module.
func GetModule(id string) (ModuleInfo, bool) {
	registry.RLock()
	defer registry.RUnlock()
	info, ok := registry.byID[ModuleID(id)]
	return info, ok
}

// GetModules lists every registered module ordered by ID.
func GetModules() []ModuleInfo {
	return listModules(func(ModuleID) bool { return true })
}

// GetModulesByNamespace lists the modules whose ID namespace is ns, so
// "store" yields "store.sqlite" but not "storefront".
func GetModulesByNamespace(ns string) []ModuleInfo {
	return listModules(func(id ModuleID) bool {
		return id.Namespace() == ns && id.Name() != string(id)
	})
}

func listModules(keep func(ModuleID) bool) []ModuleInfo {
	registry.RLock()
	defer registry.RUnlock()

	var out []ModuleInfo
	for _, id := range slices.Sorted(maps.Keys(registry.byID)) {
		if keep(id) {
			out = append(out, registry.byID[id])
		}
	}
	return out
}

func resetRegistry() {
	registry.Lock()
	defer registry.Unlock()
	clear(registry.byID)
}
