package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"
)

// testModule is a configurable fake that records lifecycle calls.
type testModule struct {
	id ModuleID

	mu          sync.Mutex
	configured  bool
	provisioned bool
	validated   bool
	started     bool
	stopped     bool

	startErr    error
	validateErr error

	cfg struct {
		Name string `yaml:"name"`
	}
}

func (m *testModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{
		ID:  m.id,
		New: func() Module { return m },
	}
}

func (m *testModule) Configure(node *yaml.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configured = true
	return node.Decode(&m.cfg)
}

func (m *testModule) Provision(ctx *AppContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provisioned = true
	ctx.RegisterService("test.service."+string(m.id), m)
	return nil
}

func (m *testModule) Validate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validated = true
	return m.validateErr
}

func (m *testModule) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	return nil
}

func (m *testModule) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

func newTestContext(t *testing.T) *AppContext {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	return NewAppContext(logger, t.TempDir())
}

func yamlNode(t *testing.T, src string) yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}
	return *doc.Content[0]
}

func TestLoadModule_LifecycleOrder(t *testing.T) {
	mod := &testModule{id: "test.lifecycle"}
	RegisterModule(mod)

	ctx := newTestContext(t)
	ctx.WithModuleConfigs(map[string]yaml.Node{
		"test.lifecycle": yamlNode(t, "name: hello"),
	})

	got, err := ctx.LoadModule("test.lifecycle")
	if err != nil {
		t.Fatalf("LoadModule() error: %v", err)
	}
	if got != Module(mod) {
		t.Fatal("LoadModule() returned a different instance")
	}
	if !mod.configured || !mod.provisioned || !mod.validated {
		t.Errorf("lifecycle incomplete: configured=%v provisioned=%v validated=%v",
			mod.configured, mod.provisioned, mod.validated)
	}
	if mod.cfg.Name != "hello" {
		t.Errorf("config not decoded: got %q", mod.cfg.Name)
	}
}

func TestLoadModule_Unknown(t *testing.T) {
	ctx := newTestContext(t)
	if _, err := ctx.LoadModule("test.does-not-exist"); err == nil {
		t.Fatal("LoadModule() with unknown ID should fail")
	}
}

func TestLoadModule_ValidateFailure(t *testing.T) {
	mod := &testModule{id: "test.badvalidate", validateErr: errors.New("boom")}
	RegisterModule(mod)

	ctx := newTestContext(t)
	if _, err := ctx.LoadModule("test.badvalidate"); err == nil {
		t.Fatal("LoadModule() should propagate Validate() errors")
	}
}

func TestApp_StartFailureStopsStartedModules(t *testing.T) {
	first := &testModule{id: "test.first"}
	second := &testModule{id: "test.second", startErr: errors.New("start failed")}
	RegisterModule(first)
	RegisterModule(second)

	ctx := newTestContext(t)
	app := NewApp(ctx)
	if err := app.LoadModules([]string{"test.first", "test.second"}); err != nil {
		t.Fatalf("LoadModules() error: %v", err)
	}

	if err := app.Start(); err == nil {
		t.Fatal("Start() should fail when a module fails to start")
	}
	if !first.stopped {
		t.Error("first module should have been stopped after second failed to start")
	}
}

func TestApp_StopReverseOrder(t *testing.T) {
	a := &testModule{id: "test.order-a"}
	b := &testModule{id: "test.order-b"}
	RegisterModule(a)
	RegisterModule(b)

	ctx := newTestContext(t)
	app := NewApp(ctx)
	if err := app.LoadModules([]string{"test.order-a", "test.order-b"}); err != nil {
		t.Fatalf("LoadModules() error: %v", err)
	}
	if err := app.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	app.Stop()

	if !a.stopped || !b.stopped {
		t.Errorf("both modules should be stopped: a=%v b=%v", a.stopped, b.stopped)
	}
}

// stopOnly has shutdown work but nothing to launch.
type stopOnly struct {
	id ModuleID

	mu      sync.Mutex
	stopped bool
}

func (m *stopOnly) ModuleInfo() ModuleInfo {
	return ModuleInfo{
		ID:  m.id,
		New: func() Module { return m },
	}
}

func (m *stopOnly) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

func TestApp_StopReachesStopperOnlyModules(t *testing.T) {
	starter := &testModule{id: "test.starter"}
	RegisterModule(starter)

	ctx := newTestContext(t)
	app := NewApp(ctx)
	if err := app.LoadModules([]string{"test.starter"}); err != nil {
		t.Fatalf("LoadModules() error: %v", err)
	}
	drain := &stopOnly{id: "test.drain"}
	app.AppendModule("test.drain", drain)

	if err := app.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	app.Stop()

	if !drain.stopped {
		t.Error("Stopper-only module was not stopped on shutdown")
	}
	if !starter.stopped {
		t.Error("starter module was not stopped on shutdown")
	}
}

func TestApp_StartFailureStopsStopperOnlyModules(t *testing.T) {
	drain := &stopOnly{id: "test.drain-first"}
	bad := &testModule{id: "test.bad-start", startErr: errors.New("start failed")}
	RegisterModule(drain)
	RegisterModule(bad)

	ctx := newTestContext(t)
	app := NewApp(ctx)
	if err := app.LoadModules([]string{"test.drain-first", "test.bad-start"}); err != nil {
		t.Fatalf("LoadModules() error: %v", err)
	}

	if err := app.Start(); err == nil {
		t.Fatal("Start() should fail when a module fails to start")
	}
	if !drain.stopped {
		t.Error("Stopper-only module was not stopped after a later start failure")
	}
}

func TestAppContext_ServiceRegistrySharedWithChildren(t *testing.T) {
	t.Parallel()
	ctx := newTestContext(t)
	child := ctx.ForModule("test.child")

	child.RegisterService("shared.value", 42)

	got, ok := ctx.Service("shared.value")
	if !ok {
		t.Fatal("service registered on child not visible on parent")
	}
	if got != 42 {
		t.Errorf("Service() = %v, want 42", got)
	}
}

func TestAppContext_ServiceMissing(t *testing.T) {
	t.Parallel()
	ctx := newTestContext(t)
	if _, ok := ctx.Service("nope"); ok {
		t.Error("Service() should report false for unknown names")
	}
}
