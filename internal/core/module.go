package core

// ModuleID uniquely identifies a module, namespaced by dots
// (e.g. "channel.telegram", "cache.sqlite").
type ModuleID string

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	// ID is the module's unique identifier.
	ID ModuleID

	// New returns a fresh, unconfigured instance of the module.
	New func() Module
}

// Module is the minimal interface every module must implement.
// Lifecycle behavior is added via the optional interfaces in lifecycle.go.
type Module interface {
	ModuleInfo() ModuleInfo
}
