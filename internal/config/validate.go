package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/sliterok/tiktok-relay/internal/core"
)

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures the required modules are present,
// checks that all referenced module IDs exist in the registry, and
// validates the workflow section.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	// The bot cannot do anything without its channel, the media source, and
	// the relay session that carries uploads past the Bot API limits.
	for _, required := range []string{"channel.telegram", "source.tiktok", "relay.userbot"} {
		if _, exists := cfg.Modules[required]; !exists {
			errs = append(errs, fmt.Errorf("config: module %q is required", required))
		}
	}

	errs = append(errs, validateWorkflow(&cfg.Workflow)...)

	return errors.Join(errs...)
}

func validateWorkflow(wf *WorkflowConfig) []error {
	var errs []error

	if wf.RelayTimeout != "" {
		d, err := time.ParseDuration(wf.RelayTimeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: workflow.relay_timeout: %w", err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("config: workflow.relay_timeout must be positive, got %s", d))
		}
	}

	if spf := wf.Slideshow.SecondsPerFrame; spf < 0 {
		errs = append(errs, fmt.Errorf("config: workflow.slideshow.seconds_per_frame must be positive, got %v", spf))
	}

	return errs
}

// ParsedRelayTimeout returns the relay timeout duration, defaulting to 90s.
// Validate reports malformed values; this accessor falls back to the default.
func (wf *WorkflowConfig) ParsedRelayTimeout() time.Duration {
	if wf.RelayTimeout == "" {
		return 90 * time.Second
	}
	d, err := time.ParseDuration(wf.RelayTimeout)
	if err != nil || d <= 0 {
		return 90 * time.Second
	}
	return d
}

// FrameSeconds returns the slideshow seconds-per-frame, defaulting to 5.
func (s *SlideshowConfig) FrameSeconds() float64 {
	if s.SecondsPerFrame <= 0 {
		return 5
	}
	return s.SecondsPerFrame
}
