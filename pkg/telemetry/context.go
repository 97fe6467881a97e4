package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry provides a unified telemetry interface combining logging, tracing, metrics, and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Initialize logger
	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	// Initialize tracer
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	// Initialize metrics
	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	// Initialize event publisher
	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	ctx = t.Logger.WithContext(ctx)
	return ctx
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown gracefully shuts down all telemetry components.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	// Shutdown in reverse order of initialization
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}

	if err := t.Tracer.Shutdown(ctx); err != nil {
		return err
	}

	// Metrics server is not explicitly shut down here as it may need to continue
	// serving metrics until the very end of the application lifecycle

	return nil
}

// Flush forces all pending telemetry data to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// StartMetricsServer starts the metrics HTTP server if metrics are enabled.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer()
}

// Context Helpers for common instrumentation patterns

// InstrumentedContext creates a context with telemetry, logger fields, and a trace span.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation with logging, tracing, and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	// Start trace span
	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	// Create logger with operation field
	logger := tel.Logger.WithField("operation", operation)

	// Add trace context to logger if available
	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &InstrumentedContext{
		Ctx:    spanCtx,
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the instrumented operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span != nil {
		if err != nil {
			RecordError(ic.Span, err)
		} else {
			RecordSuccess(ic.Span)
		}
		ic.Span.End()
	}
}

// WithResolutionContext creates a context enriched with resolution-specific telemetry.
func WithResolutionContext(ctx context.Context, resolutionID, trigger string, serviceCount int) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	// Start resolution span
	spanCtx, span := tel.Tracer.StartResolutionSpan(ctx, resolutionID, trigger)

	// Create resolution-specific logger
	logger := tel.Logger.WithResolutionID(resolutionID).WithField("trigger", trigger)
	spanCtx = logger.WithContext(spanCtx)

	// Record resolution started metric
	tel.Metrics.RecordResolutionStarted(trigger)

	// Publish resolution started event
	_ = tel.Events.PublishResolutionStarted(resolutionID, trigger, serviceCount)

	// Store the span and timer in context for later retrieval
	spanCtx = context.WithValue(spanCtx, resolutionSpanKey{}, span)
	spanCtx = context.WithValue(spanCtx, resolutionTimerKey{}, NewTimer())

	return spanCtx
}

// resolutionSpanKey is the context key for resolution spans.
type resolutionSpanKey struct{}

// resolutionTimerKey is the context key for resolution timers.
type resolutionTimerKey struct{}

// EndResolutionContext completes the resolution context, recording metrics and events.
func EndResolutionContext(ctx context.Context, resolutionID string, valid bool, fulfilled, unmet []string, passes int, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	// Get the resolution span from context
	if span, ok := ctx.Value(resolutionSpanKey{}).(trace.Span); ok {
		span.SetAttributes(
			AttrResolutionValid.Bool(valid),
			AttrPasses.Int(passes),
		)
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	// Get the timer from context
	var duration time.Duration
	if timer, ok := ctx.Value(resolutionTimerKey{}).(*Timer); ok {
		duration = timer.Duration()
	}

	// Publish events and record metrics
	if err != nil {
		tel.Metrics.RecordError("probe", "")
		_ = tel.Events.PublishResolutionFailed(resolutionID, err.Error())
		return
	}

	tel.Metrics.RecordResolutionCompleted(valid, duration, passes)
	tel.Metrics.SetServiceCounts(float64(len(fulfilled)+len(unmet)), float64(len(fulfilled)), float64(len(unmet)))
	_ = tel.Events.PublishResolutionCompleted(resolutionID, valid, fulfilled, unmet, duration)
}

// WithServiceContext creates a context enriched with service-specific telemetry.
func WithServiceContext(ctx context.Context, service, contractSlug string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	// Create service-specific logger
	logger := tel.Logger.WithService(service).WithContractSlug(contractSlug)
	return logger.WithContext(ctx)
}

// RecordProbeOperation records a device probe with metrics and tracing.
func RecordProbeOperation(ctx context.Context, probe string, fn func() error) error {
	tel := FromTelemetryContext(ctx)

	// Start span
	var span trace.Span
	if tel != nil {
		ctx, span = tel.Tracer.StartProbeSpan(ctx, probe)
		defer span.End()
	}

	// Start timer
	timer := NewTimer()

	// Execute operation
	err := fn()

	// Record metrics
	if tel != nil {
		duration := timer.Duration()
		tel.Metrics.RecordProbe(duration)
		if err != nil {
			tel.Metrics.RecordProbeFailure("")
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
	}

	return err
}
