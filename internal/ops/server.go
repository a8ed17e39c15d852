// Package ops exposes the operational HTTP surface: a health endpoint and
// prometheus metrics, plus the metric set the workflow reports into.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/sliterok/tiktok-relay/internal/core"
)

func init() {
	core.RegisterModule(&Server{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Server)(nil)
	_ core.Provisioner  = (*Server)(nil)
	_ core.Validator    = (*Server)(nil)
	_ core.Starter      = (*Server)(nil)
	_ core.Stopper      = (*Server)(nil)
)

// Config holds the ops server configuration.
type Config struct {
	// Listen is the bind address. Defaults to 127.0.0.1:8686.
	Listen string `yaml:"listen"`
}

func (c *Config) defaults() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8686"
	}
}

// Server is the ops HTTP module.
type Server struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// ModuleInfo implements core.Module.
func (s *Server) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "ops.http",
		New: func() core.Module { return &Server{} },
	}
}

// Configure implements core.Configurable.
func (s *Server) Configure(node *yaml.Node) error {
	if err := node.Decode(&s.config); err != nil {
		return fmt.Errorf("ops: decode config: %w", err)
	}
	s.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (s *Server) Provision(ctx *core.AppContext) error {
	s.appCtx = ctx
	s.logger = ctx.Logger
	return nil
}

// Validate implements core.Validator.
func (s *Server) Validate() error {
	s.config.defaults()
	if _, _, err := net.SplitHostPort(s.config.Listen); err != nil {
		return fmt.Errorf("ops: invalid listen address %q: %w", s.config.Listen, err)
	}
	return nil
}

// Start implements core.Starter. Metrics are resolved from the service
// registry because they are created during wiring, after module load.
func (s *Server) Start() error {
	s.startedAt = time.Now()

	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("ops: listen %s: %w", s.config.Listen, err)
	}

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops server error", "error", err)
		}
	}()

	s.logger.Info("ops server listening", "addr", ln.Addr().String())
	return nil
}

// Stop implements core.Stopper.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// buildRouter constructs the chi mux with all routes wired.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth())

	if svc, ok := s.appCtx.Service("ops.metrics"); ok {
		if m, ok := svc.(*Metrics); ok {
			r.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
		}
	}

	return r
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":         "ok",
			"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		})
	}
}
