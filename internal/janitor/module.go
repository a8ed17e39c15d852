package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sliterok/tiktok-relay/internal/core"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Purger removes cache rows older than the retention window and reports how
// many were dropped.
type Purger interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}

// Config holds the janitor configuration.
type Config struct {
	// Schedule is a 5-field cron expression. Defaults to a nightly run.
	Schedule string `yaml:"schedule"`
	// Retention is how long cached file references are kept, as a Go
	// duration string. Defaults to 720h (30 days).
	Retention string `yaml:"retention"`
}

func (c *Config) defaults() {
	if c.Schedule == "" {
		c.Schedule = "17 3 * * *"
	}
	if c.Retention == "" {
		c.Retention = "720h"
	}
}

// Module schedules the cache purge job.
type Module struct {
	config    Config
	retention time.Duration
	appCtx    *core.AppContext
	logger    *slog.Logger
	scheduler *Scheduler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "janitor.cron",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("janitor: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.appCtx = ctx
	m.logger = ctx.Logger
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	m.config.defaults()
	retention, err := time.ParseDuration(m.config.Retention)
	if err != nil {
		return fmt.Errorf("janitor: invalid retention %q: %w", m.config.Retention, err)
	}
	if retention <= 0 {
		return fmt.Errorf("janitor: retention must be positive, got %s", retention)
	}
	m.retention = retention
	return nil
}

// Start implements core.Starter. Without a cache module loaded there is
// nothing to purge and the scheduler is not started.
func (m *Module) Start() error {
	svc, ok := m.appCtx.Service("cache.store")
	if !ok {
		m.logger.Info("janitor: no cache store loaded, purge disabled")
		return nil
	}
	purger, ok := svc.(Purger)
	if !ok {
		return fmt.Errorf("janitor: cache.store service does not support purging")
	}

	m.scheduler = NewScheduler(m.logger)
	job := &cachePurgeJob{
		purger:    purger,
		retention: m.retention,
		schedule:  m.config.Schedule,
		logger:    m.logger,
	}
	if err := m.scheduler.RegisterJob(job); err != nil {
		return err
	}
	return m.scheduler.Start()
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Stop(ctx)
}

// cachePurgeJob drops cache rows past the retention window.
type cachePurgeJob struct {
	purger    Purger
	retention time.Duration
	schedule  string
	logger    *slog.Logger
}

var _ Job = (*cachePurgeJob)(nil)

// Name implements Job.
func (j *cachePurgeJob) Name() string { return "cache_purge" }

// Schedule implements Job.
func (j *cachePurgeJob) Schedule() string { return j.schedule }

// Run implements Job.
func (j *cachePurgeJob) Run(ctx context.Context) error {
	dropped, err := j.purger.PurgeOlderThan(ctx, j.retention)
	if err != nil {
		return fmt.Errorf("janitor: purge cache: %w", err)
	}
	if dropped > 0 {
		j.logger.Info("janitor: purged stale cache rows", "count", dropped)
	}
	return nil
}
