package main

// Modules that are not referenced by the wiring register themselves through
// their package init.
import (
	_ "github.com/sliterok/tiktok-relay/internal/janitor"
	_ "github.com/sliterok/tiktok-relay/modules/cache/sqlite"
)
