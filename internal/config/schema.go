// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for tikrelay.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "channel.telegram").
	Modules map[string]yaml.Node `yaml:"modules"`

	// Workflow configures the relay workflow, which is wired between
	// module loading and start rather than being a module itself.
	Workflow WorkflowConfig `yaml:"workflow"`
}

// WorkflowConfig holds settings for the relay workflow.
type WorkflowConfig struct {
	// RelayTimeout bounds the wait for a relayed video to come back
	// through the bot's ingestion path (Go duration string, default 90s).
	RelayTimeout string `yaml:"relay_timeout"`

	// Slideshow controls the photo-path slideshow assembly.
	Slideshow SlideshowConfig `yaml:"slideshow"`
}

// SlideshowConfig controls assembling photo posts into a single video.
type SlideshowConfig struct {
	// Enabled merges photos and music into one video delivered through
	// the relay path. Disabled, photos are sent as an album with the
	// music attached separately.
	Enabled bool `yaml:"enabled"`

	// SecondsPerFrame is how long each photo is shown. Default 5.
	SecondsPerFrame float64 `yaml:"seconds_per_frame"`
}
