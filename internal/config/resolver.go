package config

import (
	"cmp"
	"maps"
	"slices"
	"strings"
)

// loadFirst lists the namespaces whose modules publish services other
// modules look up while provisioning, in the order they load.
var loadFirst = []string{"store", "telemetry"}

// Resolve returns the IDs of the configured modules in load order: service
// providers from loadFirst come first, then everything else, each group
// sorted by ID.
func Resolve(cfg *Config) []string {
	ids := slices.Collect(maps.Keys(cfg.Modules))
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Or(cmp.Compare(loadRank(a), loadRank(b)), strings.Compare(a, b))
	})
	return ids
}

func loadRank(id string) int {
	ns, _, _ := strings.Cut(id, ".")
	if i := slices.Index(loadFirst, ns); i >= 0 {
		return i
	}
	return len(loadFirst)
}
