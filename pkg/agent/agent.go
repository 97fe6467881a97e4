package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgewarden/edgewarden/pkg/api"
	"github.com/edgewarden/edgewarden/pkg/config"
	"github.com/edgewarden/edgewarden/pkg/contracts"
	"github.com/edgewarden/edgewarden/pkg/facts"
	"github.com/edgewarden/edgewarden/pkg/policy"
	"github.com/edgewarden/edgewarden/pkg/stores"
	"github.com/edgewarden/edgewarden/pkg/sysinfo"
	"github.com/edgewarden/edgewarden/pkg/target"
	"github.com/edgewarden/edgewarden/pkg/telemetry"
)

// shutdownTimeout bounds the teardown of the store and telemetry after
// the run context is cancelled.
const shutdownTimeout = 10 * time.Second

// Options carries the injectable pieces of an agent. Zero values get
// production defaults built from the configuration.
type Options struct {
	// Version is the compiled-in agent version.
	Version string

	// Telemetry overrides the telemetry stack built from the config.
	Telemetry *telemetry.Telemetry

	// Prober overrides the device facts prober.
	Prober contracts.Prober

	// Runtime overrides the container runtime. Defaults to LogRuntime.
	Runtime Runtime

	// Store overrides the resolution history store.
	Store stores.Store
}

// Agent is the reconciliation daemon. It owns the device prober, the
// contract resolver, the policy gate, the history store, the target
// state watcher, the runtime boundary and the local API, and drives
// resolution cycles on interval ticks, state changes and API triggers.
type Agent struct {
	cfg     *config.Config
	version string

	tel      *telemetry.Telemetry
	logger   zerolog.Logger
	prober   contracts.Prober
	resolver *contracts.Resolver
	engine   *policy.Engine
	store    stores.Store
	runtime  Runtime
	loader   *target.Loader
	watcher  *target.Watcher
	api      *api.Server

	triggerCh chan trigger

	mu             sync.RWMutex
	state          *target.State
	startedAt      time.Time
	lastResolution *contracts.Resolution
	resolutions    uint64
}

// trigger asks the run loop for a resolution cycle. API triggers carry
// a reply channel; watcher and interval triggers do not.
type trigger struct {
	source string
	reply  chan resolveReply
}

type resolveReply struct {
	resolution *contracts.Resolution
	err        error
}

// New assembles an agent from its configuration. The policy directory
// is loaded when it exists; the history store is opened and migrated.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Agent, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	version := opts.Version
	if version == "" {
		version = "0.0.0-dev"
	}

	tel := opts.Telemetry
	if tel == nil {
		var err error
		tel, err = telemetry.NewTelemetry(cfg.Telemetry(version))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}
	base := tel.Logger.Zerolog()

	prober := opts.Prober
	if prober == nil {
		p := facts.NewProber(version, base)
		if d := cfg.Agent.ProbeTimeout.Std(); d > 0 {
			p.SetTimeout(d)
		}
		prober = p
	}

	engine, err := policy.NewEngine(policy.Mode(cfg.Policy.Mode), base)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}
	if cfg.Policy.Dir != "" {
		if _, statErr := os.Stat(cfg.Policy.Dir); statErr == nil {
			if err := engine.LoadPolicies(ctx, []string{cfg.Policy.Dir}); err != nil {
				return nil, fmt.Errorf("failed to load operator policies: %w", err)
			}
		}
	}

	store := opts.Store
	if store == nil && cfg.Store.Path != "" {
		store, err = stores.Open(ctx, stores.Config{Path: cfg.Store.Path})
		if err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
	}

	runtime := opts.Runtime
	if runtime == nil {
		runtime = NewLogRuntime(base)
	}

	loader := target.NewLoader(contracts.NewSchemaRegistry(), base)

	a := &Agent{
		cfg:       cfg,
		version:   version,
		tel:       tel,
		logger:    base.With().Str("component", "agent").Logger(),
		prober:    prober,
		resolver:  contracts.NewResolver(prober, base),
		engine:    engine,
		store:     store,
		runtime:   runtime,
		loader:    loader,
		triggerCh: make(chan trigger, 1),
	}

	if cfg.State.Watch {
		a.watcher = target.NewWatcher(cfg.State.Path, loader, base)
	}

	if cfg.API.Enabled {
		apiCfg := api.Config{ListenAddr: cfg.API.ListenAddress}
		if cfg.Metrics.Enabled {
			apiCfg.Metrics = tel.Metrics.Handler()
		}
		a.api = api.NewServer(apiCfg, a, base)
	}

	return a, nil
}

// Run drives the reconciliation loop until ctx is cancelled, then tears
// the agent down. The target state must load on startup; afterwards a
// broken state file keeps the last good state current. Run may be
// called once.
func (a *Agent) Run(ctx context.Context) error {
	a.mu.Lock()
	a.startedAt = time.Now().UTC()
	a.mu.Unlock()

	ctx = a.tel.WithContext(ctx)

	report := sysinfo.Collect()
	a.logger.Info().
		Str("version", a.version).
		Str("device", a.cfg.Device.Name).
		Str("mode", string(a.engine.Mode())).
		Str("state_path", a.cfg.State.Path).
		Str("hostname", report.Hostname).
		Float64("uptime_seconds", report.UptimeSeconds).
		Float64("load1", report.Load.Load1).
		Float64("memory_used_percent", report.UsedMemoryPercent()).
		Msg("Agent starting")

	if a.watcher != nil {
		err := a.watcher.Start(ctx, func(state *target.State) {
			a.tel.Metrics.RecordStateReload("success")
			_ = a.tel.Events.PublishStateReloaded(a.cfg.State.Path, len(state.Services))
			a.requestResolve("state-change")
		})
		if err != nil {
			return err
		}
		defer func() { _ = a.watcher.Stop() }()
	} else {
		state, err := a.loader.Load(ctx, a.cfg.State.Path)
		if err != nil {
			return err
		}
		a.mu.Lock()
		a.state = state
		a.mu.Unlock()
	}

	var apiErrCh chan error
	if a.api != nil {
		apiErrCh = make(chan error, 1)
		go func() { apiErrCh <- a.api.Start(ctx) }()
	}

	if err := a.tel.StartMetricsServer(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to start metrics server")
	}

	// First reconciliation right away; the interval only paces repeats.
	a.requestResolve("startup")

	var tick <-chan time.Time
	if interval := a.cfg.Agent.ResolveInterval.Std(); interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("Agent shutting down")
			return a.shutdown(apiErrCh)

		case err := <-apiErrCh:
			if err != nil {
				return fmt.Errorf("api server failed: %w", err)
			}
			apiErrCh = nil

		case req := <-a.triggerCh:
			resolution, err := a.runCycle(ctx, req.source)
			if req.reply != nil {
				req.reply <- resolveReply{resolution: resolution, err: err}
			} else if err != nil {
				a.logger.Error().Err(err).Str("trigger", req.source).Msg("Resolution cycle failed")
			}

		case <-tick:
			if _, err := a.runCycle(ctx, "interval"); err != nil {
				a.logger.Error().Err(err).Msg("Scheduled resolution cycle failed")
			}
		}
	}
}

// shutdown closes the API, the store and telemetry after the run
// context is cancelled.
func (a *Agent) shutdown(apiErrCh chan error) error {
	if apiErrCh != nil {
		select {
		case <-apiErrCh:
		case <-time.After(shutdownTimeout):
			a.logger.Warn().Msg("API server did not stop in time")
		}
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close history store")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Telemetry shutdown failed")
	}

	a.logger.Info().Msg("Agent stopped")
	return nil
}

// runCycle performs one reconciliation: probe, resolve, policy gate,
// runtime transitions, persistence. Probe failure aborts the cycle;
// everything after the resolution is best effort and never loses the
// resolution itself.
func (a *Agent) runCycle(ctx context.Context, source string) (*contracts.Resolution, error) {
	state := a.currentState()
	if state == nil {
		return nil, fmt.Errorf("no target state loaded")
	}
	batch := state.Batch()

	a.tel.Metrics.RecordResolutionStarted(source)

	var deviceFacts contracts.Facts
	err := telemetry.RecordProbeOperation(ctx, "device", func() error {
		var probeErr error
		deviceFacts, probeErr = a.prober.Probe(ctx)
		return probeErr
	})
	if err != nil {
		code := ""
		var cerr *contracts.ContractError
		if errors.As(err, &cerr) {
			code = cerr.Code
		}
		_ = a.tel.Events.PublishProbeFailed("", code, err.Error())
		a.logger.Error().Err(err).Str("trigger", source).Msg("Device probe failed, cycle aborted")
		return nil, err
	}

	resolution, err := a.resolver.ResolveWithFacts(ctx, batch, deviceFacts)
	if err != nil {
		_ = a.tel.Events.PublishResolutionFailed("", err.Error())
		return nil, err
	}

	sctx, span := a.tel.Tracer.StartResolutionSpan(ctx, resolution.ID, source)
	defer span.End()

	_ = a.tel.Events.PublishResolutionStarted(resolution.ID, source, len(batch))
	a.publishServiceOutcomes(resolution, batch)

	violations, blocked := a.gate(sctx, resolution, batch)

	if err := a.apply(sctx, state, resolution, blocked); err != nil {
		a.logger.Error().Err(err).Str("resolution_id", resolution.ID).Msg("Runtime transition failed")
		telemetry.RecordError(span, err)
	}

	a.persist(sctx, resolution, batch)

	a.tel.Metrics.RecordResolutionCompleted(resolution.Valid, resolution.Duration, resolution.Passes)
	a.tel.Metrics.SetServiceCounts(float64(len(batch)), float64(len(resolution.Fulfilled)), float64(len(resolution.Unmet)))
	_ = a.tel.Events.PublishResolutionCompleted(resolution.ID, resolution.Valid, resolution.Fulfilled, resolution.Unmet, resolution.Duration)

	a.mu.Lock()
	a.lastResolution = resolution
	a.resolutions++
	a.mu.Unlock()

	a.logger.Info().
		Str("resolution_id", resolution.ID).
		Str("trigger", source).
		Bool("valid", resolution.Valid).
		Bool("blocked", blocked).
		Int("violations", len(violations)).
		Int("fulfilled", len(resolution.Fulfilled)).
		Int("unmet", len(resolution.Unmet)).
		Msg("Reconciliation cycle completed")

	return resolution, nil
}

// gate evaluates the policy engine over the resolution. An engine
// failure surfaces here only in enforce mode, and blocks.
func (a *Agent) gate(ctx context.Context, resolution *contracts.Resolution, batch map[string]contracts.Service) ([]policy.Violation, bool) {
	input := policy.NewInput(resolution, batch, &policy.Context{
		Mode:        a.engine.Mode(),
		Device:      a.cfg.Device.Name,
		Environment: a.cfg.Environment,
		Timestamp:   time.Now().UTC(),
	})

	pctx, span := a.tel.Tracer.StartPolicySpan(ctx, resolution.ID)
	defer span.End()

	violations, err := a.engine.Evaluate(pctx, input)
	if err != nil {
		telemetry.RecordError(span, err)
		a.tel.Metrics.RecordPolicyEvaluation("error")
		a.logger.Error().Err(err).Str("resolution_id", resolution.ID).Msg("Policy evaluation failed, deployment blocked")
		return nil, true
	}

	for _, v := range violations {
		a.tel.Metrics.RecordPolicyViolation(v.Policy)
		_ = a.tel.Events.PublishPolicyViolation(resolution.ID, v.Service, v.Policy, v.Message)

		evt := a.logger.Warn()
		if v.Blocking() {
			evt = a.logger.Error()
		}
		evt.Str("resolution_id", resolution.ID).
			Str("policy", v.Policy).
			Str("rule", v.Rule).
			Str("level", string(v.Level)).
			Str("service", v.Service).
			Msg(v.Message)
	}

	blocked := policy.Blocks(violations)
	if blocked {
		a.tel.Metrics.RecordPolicyEvaluation("block")
	} else {
		a.tel.Metrics.RecordPolicyEvaluation("allow")
	}
	return violations, blocked
}

// apply reconciles the runtime against the resolution: fulfilled
// services run, everything else stops. An invalid or policy-blocked
// resolution leaves the runtime untouched; acting on a half-satisfied
// deployment is the one thing the agent must never do.
func (a *Agent) apply(ctx context.Context, state *target.State, resolution *contracts.Resolution, blocked bool) error {
	if !resolution.Valid || blocked {
		a.logger.Warn().
			Str("resolution_id", resolution.ID).
			Bool("valid", resolution.Valid).
			Bool("blocked", blocked).
			Msg("Resolution not actionable, runtime left untouched")
		return nil
	}

	running, err := a.runtime.Running(ctx)
	if err != nil {
		return fmt.Errorf("failed to list running services: %w", err)
	}
	runningSet := make(map[string]bool, len(running))
	for _, name := range running {
		runningSet[name] = true
	}

	desired := make(map[string]bool, len(resolution.Fulfilled))
	for _, name := range resolution.Fulfilled {
		desired[name] = true
		spec, _ := state.Spec(name)
		if err := a.runtime.EnsureRunning(ctx, name, spec.Image); err != nil {
			return fmt.Errorf("failed to start service %s: %w", name, err)
		}
		if !runningSet[name] {
			a.tel.Metrics.RecordRuntimeTransition("start")
		}
	}

	for _, name := range running {
		if desired[name] {
			continue
		}
		if err := a.runtime.EnsureStopped(ctx, name); err != nil {
			return fmt.Errorf("failed to stop service %s: %w", name, err)
		}
		a.tel.Metrics.RecordRuntimeTransition("stop")
	}

	return nil
}

// persist writes the resolution to the history store. History is
// advisory; a failed write is logged and the cycle continues.
func (a *Agent) persist(ctx context.Context, resolution *contracts.Resolution, batch map[string]contracts.Service) {
	if a.store == nil {
		return
	}

	record, err := stores.NewResolutionRecord(resolution, batch)
	if err != nil {
		a.logger.Error().Err(err).Str("resolution_id", resolution.ID).Msg("Failed to build history record")
		return
	}
	if err := a.store.SaveResolution(ctx, record); err != nil {
		a.logger.Error().Err(err).Str("resolution_id", resolution.ID).Msg("Failed to persist resolution")
	}
}

func (a *Agent) publishServiceOutcomes(resolution *contracts.Resolution, batch map[string]contracts.Service) {
	for _, name := range resolution.Fulfilled {
		a.tel.Metrics.RecordServiceOutcome("admitted")
		_ = a.tel.Events.PublishServiceAdmitted(resolution.ID, name, batch[name].Contract.Slug)
	}
	for _, name := range resolution.Unmet {
		svc := batch[name]
		reasons := resolution.Reasons[name]
		if svc.Optional {
			a.tel.Metrics.RecordServiceOutcome("elided")
			_ = a.tel.Events.PublishServiceElided(resolution.ID, name, svc.Contract.Slug, reasons)
		} else {
			a.tel.Metrics.RecordServiceOutcome("rejected")
			_ = a.tel.Events.PublishServiceRejected(resolution.ID, name, svc.Contract.Slug, reasons)
		}
	}
}

func (a *Agent) currentState() *target.State {
	if a.watcher != nil {
		return a.watcher.Current()
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// requestResolve enqueues a cycle without blocking. A pending trigger
// already covers the request, so extras are dropped.
func (a *Agent) requestResolve(source string) {
	select {
	case a.triggerCh <- trigger{source: source}:
	default:
		a.logger.Debug().Str("trigger", source).Msg("Resolution already pending, trigger dropped")
	}
}

// Status implements api.Controller.
func (a *Agent) Status() api.Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	uptime := 0.0
	if !a.startedAt.IsZero() {
		uptime = time.Since(a.startedAt).Seconds()
	}

	return api.Status{
		Version:        a.version,
		Device:         a.cfg.Device.Name,
		Mode:           string(a.engine.Mode()),
		StartedAt:      a.startedAt,
		UptimeSeconds:  uptime,
		Resolutions:    a.resolutions,
		LastResolution: api.Summarize(a.lastResolution),
	}
}

// LastResolution implements api.Controller.
func (a *Agent) LastResolution() *contracts.Resolution {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastResolution
}

// Facts implements api.Controller with a fresh probe.
func (a *Agent) Facts(ctx context.Context) (contracts.Facts, error) {
	return a.prober.Probe(ctx)
}

// TriggerResolve implements api.Controller. The cycle runs on the agent
// loop, never concurrently with scheduled cycles.
func (a *Agent) TriggerResolve(ctx context.Context) (*contracts.Resolution, error) {
	req := trigger{source: "api", reply: make(chan resolveReply, 1)}

	select {
	case a.triggerCh <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case reply := <-req.reply:
		return reply.resolution, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
