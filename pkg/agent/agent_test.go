package agent

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/edgewarden/edgewarden/pkg/config"
	"github.com/edgewarden/edgewarden/pkg/contracts"
	"github.com/edgewarden/edgewarden/pkg/stores"
	"github.com/edgewarden/edgewarden/pkg/telemetry"
)

const validStateDoc = `device: bench-01
services:
  camera:
    image: registry.local/camera:2.1.0
    contract:
      slug: camera
      version: 2.1.0
      type: sw.container
  telemetry-uploader:
    image: registry.local/uploader:1.0.0
    optional: true
    contract:
      slug: telemetry-uploader
      version: 1.0.0
      requires:
        - type: sw.l4t
          version: ">=99.0"
`

type stubProber struct {
	facts contracts.Facts
	err   error
}

func (p *stubProber) Probe(_ context.Context) (contracts.Facts, error) {
	return p.facts, p.err
}

func benchFacts() contracts.Facts {
	return contracts.Facts{
		AgentVersion: "1.2.0",
		OSVersion:    "22.04",
		L4T:          "35.4",
	}
}

func quietTelemetry(t *testing.T) *telemetry.Telemetry {
	t.Helper()
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "fatal"
	cfg.Logging.Output = "stderr"
	cfg.Events.EnableAsync = false
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("failed to build telemetry: %v", err)
	}
	return tel
}

func writeStateFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "state.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write state file: %v", err)
	}
	return path
}

func testConfig(t *testing.T, statePath string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Device.Name = "bench-01"
	cfg.Agent.ResolveInterval = config.Duration(time.Hour)
	cfg.State.Path = statePath
	cfg.State.Watch = false
	cfg.Policy.Dir = ""
	cfg.Store.Path = filepath.Join(t.TempDir(), "history.db")
	cfg.API.Enabled = false
	return cfg
}

// startAgent runs the agent loop and returns a cancel function that
// stops it and waits for Run to return.
func startAgent(t *testing.T, a *Agent) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Expected clean shutdown, got %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Fatal("agent did not shut down")
		}
	}
}

func TestNew_RequiresConfig(t *testing.T) {
	if _, err := New(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestAgentLifecycle(t *testing.T) {
	ctx := context.Background()
	statePath := writeStateFile(t, t.TempDir(), validStateDoc)
	cfg := testConfig(t, statePath)

	store, err := stores.Open(ctx, stores.Config{Path: cfg.Store.Path})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	rt := testRuntime()
	a, err := New(ctx, cfg, Options{
		Version:   "1.2.0",
		Telemetry: quietTelemetry(t),
		Prober:    &stubProber{facts: benchFacts()},
		Runtime:   rt,
		Store:     store,
	})
	if err != nil {
		t.Fatalf("failed to build agent: %v", err)
	}

	stop := startAgent(t, a)
	defer stop()

	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resolution, err := a.TriggerResolve(callCtx)
	if err != nil {
		t.Fatalf("triggered resolution failed: %v", err)
	}

	if !resolution.Valid {
		t.Errorf("Expected valid resolution, got reasons %v", resolution.Reasons)
	}
	if !reflect.DeepEqual(resolution.Fulfilled, []string{"camera"}) {
		t.Errorf("Expected fulfilled [camera], got %v", resolution.Fulfilled)
	}
	if !reflect.DeepEqual(resolution.Unmet, []string{"telemetry-uploader"}) {
		t.Errorf("Expected elided uploader in unmet, got %v", resolution.Unmet)
	}

	// The fulfilled service runs, the elided one does not
	running, err := rt.Running(ctx)
	if err != nil {
		t.Fatalf("failed to list runtime services: %v", err)
	}
	if !reflect.DeepEqual(running, []string{"camera"}) {
		t.Errorf("Expected [camera] running, got %v", running)
	}
	if image, _ := rt.Image("camera"); image != "registry.local/camera:2.1.0" {
		t.Errorf("Expected camera image from the state file, got '%s'", image)
	}

	// The cycle was persisted before the trigger reply
	records, err := store.ListResolutions(ctx, 10)
	if err != nil {
		t.Fatalf("failed to list history: %v", err)
	}
	if len(records) == 0 {
		t.Fatal("expected persisted resolutions")
	}
	if len(records[0].Services) != 2 {
		t.Errorf("Expected 2 service rows, got %d", len(records[0].Services))
	}

	status := a.Status()
	if status.Version != "1.2.0" {
		t.Errorf("Expected version '1.2.0', got '%s'", status.Version)
	}
	if status.Resolutions == 0 {
		t.Error("Expected resolution counter to advance")
	}
	if status.LastResolution == nil {
		t.Error("Expected last resolution summary")
	}

	if last := a.LastResolution(); last == nil || last.ID == "" {
		t.Errorf("Expected last resolution, got %+v", last)
	}
}

func TestAgent_InvalidResolutionKeepsRuntime(t *testing.T) {
	ctx := context.Background()
	stateDoc := `services:
  camera:
    image: registry.local/camera:2.1.0
    contract:
      slug: camera
      version: 2.1.0
  inference:
    image: registry.local/inference:3.0.0
    contract:
      slug: inference
      version: 3.0.0
      requires:
        - type: sw.agent
          version: ">=99.0"
`
	statePath := writeStateFile(t, t.TempDir(), stateDoc)
	cfg := testConfig(t, statePath)

	rt := testRuntime()
	// A service from an earlier, valid cycle is still running
	if err := rt.EnsureRunning(ctx, "legacy", "registry.local/legacy:0.9.0"); err != nil {
		t.Fatalf("failed to seed runtime: %v", err)
	}

	a, err := New(ctx, cfg, Options{
		Version:   "1.2.0",
		Telemetry: quietTelemetry(t),
		Prober:    &stubProber{facts: benchFacts()},
		Runtime:   rt,
	})
	if err != nil {
		t.Fatalf("failed to build agent: %v", err)
	}

	stop := startAgent(t, a)
	defer stop()

	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resolution, err := a.TriggerResolve(callCtx)
	if err != nil {
		t.Fatalf("triggered resolution failed: %v", err)
	}
	if resolution.Valid {
		t.Fatal("expected invalid resolution")
	}

	// No transitions happened: the stale service still runs, nothing new started
	running, err := rt.Running(ctx)
	if err != nil {
		t.Fatalf("failed to list runtime services: %v", err)
	}
	if !reflect.DeepEqual(running, []string{"legacy"}) {
		t.Errorf("Expected runtime untouched, got %v", running)
	}
}

func TestAgent_ReservedSlugBlocked(t *testing.T) {
	ctx := context.Background()
	stateDoc := `services:
  sidecar:
    image: registry.local/sidecar:0.1.0
    contract:
      slug: warden
      version: 1.0.0
`
	statePath := writeStateFile(t, t.TempDir(), stateDoc)
	cfg := testConfig(t, statePath)

	rt := testRuntime()
	a, err := New(ctx, cfg, Options{
		Version:   "1.2.0",
		Telemetry: quietTelemetry(t),
		Prober:    &stubProber{facts: benchFacts()},
		Runtime:   rt,
	})
	if err != nil {
		t.Fatalf("failed to build agent: %v", err)
	}

	stop := startAgent(t, a)
	defer stop()

	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resolution, err := a.TriggerResolve(callCtx)
	if err != nil {
		t.Fatalf("triggered resolution failed: %v", err)
	}
	if !resolution.Valid {
		t.Fatal("expected valid resolution, the block comes from policy")
	}

	// The reserved-slug violation blocks the deployment
	running, err := rt.Running(ctx)
	if err != nil {
		t.Fatalf("failed to list runtime services: %v", err)
	}
	if len(running) != 0 {
		t.Errorf("Expected no services started, got %v", running)
	}
}

func TestAgent_ProbeFailureAbortsCycle(t *testing.T) {
	ctx := context.Background()
	statePath := writeStateFile(t, t.TempDir(), validStateDoc)
	cfg := testConfig(t, statePath)

	a, err := New(ctx, cfg, Options{
		Version:   "1.2.0",
		Telemetry: quietTelemetry(t),
		Prober: &stubProber{
			err: contracts.NewProbeError("failed to read kernel release", nil),
		},
		Runtime: testRuntime(),
	})
	if err != nil {
		t.Fatalf("failed to build agent: %v", err)
	}

	stop := startAgent(t, a)
	defer stop()

	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := a.TriggerResolve(callCtx); err == nil {
		t.Fatal("expected probe failure to surface")
	}

	if a.LastResolution() != nil {
		t.Error("Expected no resolution recorded after a failed probe")
	}
}

func TestAgent_StateChangeTriggersResolve(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	statePath := writeStateFile(t, dir, validStateDoc)
	cfg := testConfig(t, statePath)
	cfg.State.Watch = true

	rt := testRuntime()
	a, err := New(ctx, cfg, Options{
		Version:   "1.2.0",
		Telemetry: quietTelemetry(t),
		Prober:    &stubProber{facts: benchFacts()},
		Runtime:   rt,
	})
	if err != nil {
		t.Fatalf("failed to build agent: %v", err)
	}

	stop := startAgent(t, a)
	defer stop()

	// Wait for the startup cycle to bring camera up
	waitForRunning(t, rt, []string{"camera"})

	updated := validStateDoc + `  overlay:
    image: registry.local/overlay:1.4.0
    contract:
      slug: overlay
      version: 1.4.0
`
	if err := os.WriteFile(statePath, []byte(updated), 0o644); err != nil {
		t.Fatalf("failed to rewrite state file: %v", err)
	}

	// The watcher debounce plus a cycle should land well within this
	waitForRunning(t, rt, []string{"camera", "overlay"})
}

func waitForRunning(t *testing.T, rt *LogRuntime, expected []string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		running, err := rt.Running(context.Background())
		if err != nil {
			t.Fatalf("failed to list runtime services: %v", err)
		}
		if reflect.DeepEqual(running, expected) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("runtime never reached %v, still %v", expected, running)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestAgent_StatusBeforeRun(t *testing.T) {
	ctx := context.Background()
	statePath := writeStateFile(t, t.TempDir(), validStateDoc)
	cfg := testConfig(t, statePath)

	a, err := New(ctx, cfg, Options{
		Version:   "1.2.0",
		Telemetry: quietTelemetry(t),
		Prober:    &stubProber{facts: benchFacts()},
		Runtime:   testRuntime(),
	})
	if err != nil {
		t.Fatalf("failed to build agent: %v", err)
	}

	status := a.Status()
	if status.Version != "1.2.0" {
		t.Errorf("Expected version '1.2.0', got '%s'", status.Version)
	}
	if status.Device != "bench-01" {
		t.Errorf("Expected device 'bench-01', got '%s'", status.Device)
	}
	if status.UptimeSeconds != 0 {
		t.Errorf("Expected zero uptime before Run, got %f", status.UptimeSeconds)
	}
	if status.Resolutions != 0 || status.LastResolution != nil {
		t.Errorf("Expected no resolutions before Run, got %+v", status)
	}
}

func TestAgent_FactsPassthrough(t *testing.T) {
	ctx := context.Background()
	statePath := writeStateFile(t, t.TempDir(), validStateDoc)
	cfg := testConfig(t, statePath)

	a, err := New(ctx, cfg, Options{
		Version:   "1.2.0",
		Telemetry: quietTelemetry(t),
		Prober:    &stubProber{facts: benchFacts()},
		Runtime:   testRuntime(),
	})
	if err != nil {
		t.Fatalf("failed to build agent: %v", err)
	}

	facts, err := a.Facts(ctx)
	if err != nil {
		t.Fatalf("facts probe failed: %v", err)
	}
	if facts.L4T != "35.4" {
		t.Errorf("Expected L4T '35.4', got '%s'", facts.L4T)
	}
}
