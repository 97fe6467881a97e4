// Package agent is the reconciliation daemon. It drives resolution
// cycles on interval ticks, target state changes and API triggers:
// probe the device, resolve the declared services against fresh facts,
// gate the resolution through policy, reconcile the container runtime
// against the fulfilled set, and persist the outcome.
//
// # Usage
//
//	cfg, err := config.Load(configPath)
//	if err != nil {
//		return err
//	}
//	a, err := agent.New(ctx, cfg, agent.Options{Version: version})
//	if err != nil {
//		return err
//	}
//	return a.Run(ctx)
//
// Run blocks until the context is cancelled. Cancellation, typically
// from signal.NotifyContext, tears down the watcher, the API server,
// the store and telemetry in order.
//
// # Runtime boundary
//
// Actual container manipulation lives behind the Runtime interface.
// The default LogRuntime only records and logs the transitions the
// agent decides on; wiring a real container driver means implementing
// EnsureRunning, EnsureStopped and Running against it.
//
// # Cycle semantics
//
// A probe failure aborts the cycle and leaves the previous resolution
// standing. An invalid resolution, or one blocked by an error-level
// policy violation, is recorded and published but never acted on: the
// runtime keeps its current set until a valid, unblocked resolution
// arrives.
package agent
