// Package telemetry provides comprehensive observability instrumentation for warden.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into a unified system
// for monitoring and debugging the agent on fleet devices.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Async event system for audit and notifications
//
// # Usage
//
// Initialize telemetry at agent startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//	cfg.DeviceName = hostname
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context propagation:
//
//	logger := tel.Logger.NewComponentLogger("resolver")
//	logger = logger.WithResolutionID("res-123").WithService("inference")
//	logger.Info("Evaluating service contract")
//	logger.WithError(err).Error("Device probe failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into resolution flow and probe latency:
//
//	ctx, span := tel.Tracer.StartResolutionSpan(ctx, resolutionID, "periodic")
//	defer span.End()
//
//	// Add attributes
//	span.SetAttributes(
//	    telemetry.AttrService.String(service),
//	    telemetry.AttrContractSlug.String(slug),
//	)
//
//	// Record errors
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development), None (testing)
//
// # Metrics
//
// Prometheus metrics track agent behavior and resolution outcomes:
//
//	tel.Metrics.RecordResolutionStarted("periodic")
//	tel.Metrics.RecordResolutionCompleted(valid, duration, passes)
//	tel.Metrics.RecordProbeFailure("PROBE_TIMEOUT")
//	tel.Metrics.RecordError("validation", "MISSING_SLUG")
//
// The agent API mounts the metrics handler at /metrics; a standalone server
// can be enabled via MetricsConfig.ListenAddress.
//
// # Event Publishing
//
// The event system provides async publishing with buffering and filtering:
//
//	tel.Events.PublishResolutionStarted(resolutionID, trigger, len(services))
//	tel.Events.PublishServiceElided(resolutionID, service, slug, reasons)
//
//	// Subscribe to events
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel("warning"))
//
// Event filters: FilterByLevel, FilterByType, FilterByResolutionID, FilterByService
//
// # Context Helpers
//
// High-level helpers simplify common instrumentation patterns:
//
//	// Instrument an operation
//	ic := telemetry.StartOperation(ctx, "state.reload",
//	    attribute.String("path", statePath))
//	defer ic.End(err)
//
//	ic.Logger.Info("Reloading target state")
//
//	// Resolution context
//	ctx = telemetry.WithResolutionContext(ctx, resolutionID, trigger, len(services))
//	defer telemetry.EndResolutionContext(ctx, resolutionID, valid, fulfilled, unmet, passes, err)
//
//	// Probe operation
//	err := telemetry.RecordProbeOperation(ctx, "device", func() error {
//	    facts, err = prober.Probe(ctx)
//	    return err
//	})
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Development (verbose logging, stdout traces, full sampling)
//	cfg := telemetry.DevelopmentConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling)
//	cfg := telemetry.ProductionConfig()
//
// # Common Metrics
//
// Key metrics exposed:
//
//  - warden_resolutions_started_total{trigger}
//  - warden_resolutions_completed_total{valid}
//  - warden_resolution_duration_seconds{valid}
//  - warden_resolution_passes
//  - warden_service_outcomes_total{outcome}
//  - warden_services_fulfilled / warden_services_unmet
//  - warden_probe_duration_seconds
//  - warden_probe_failures_total{code}
//  - warden_policy_evaluations_total{decision}
//  - warden_errors_by_class_total{class}
//  - warden_last_resolution_valid
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
//
// This ensures all buffered events are published and all pending traces
// are exported before the agent exits.
//
// # Security Considerations
//
//  - Never log sensitive data (credentials, keys, tokens)
//  - Use secure connections (TLS) for trace exporters in production
//  - Limit metrics endpoint access via network policies
//
package telemetry
