package config

import "slices"

// Resolve returns the configured module IDs in sorted order. Load order is
// what Start order (and the reverse Stop order) follow, so it must not
// depend on map iteration.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
