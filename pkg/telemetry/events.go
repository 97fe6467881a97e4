package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event in the warden agent.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// ResolutionID is the associated resolution ID, if applicable.
	ResolutionID string `json:"resolution_id,omitempty"`

	// Service is the associated service name, if applicable.
	Service string `json:"service,omitempty"`

	// ContractSlug is the associated contract slug, if applicable.
	ContractSlug string `json:"contract_slug,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeResolutionStarted   = "resolution.started"
	EventTypeResolutionCompleted = "resolution.completed"
	EventTypeResolutionFailed    = "resolution.failed"
	EventTypeServiceAdmitted     = "service.admitted"
	EventTypeServiceRejected     = "service.rejected"
	EventTypeServiceElided       = "service.elided"
	EventTypeProbeFailed         = "probe.failed"
	EventTypePolicyViolation     = "policy.violation"
	EventTypeStateReloaded       = "state.reloaded"
	EventTypeError               = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start the event processing goroutine
	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	// Start the periodic flush goroutine
	if cfg.FlushInterval > 0 {
		ep.wg.Add(1)
		go ep.periodicFlush()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	// Set ID and timestamp if not already set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Apply global filters
	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	// Send to buffer if async, otherwise process immediately
	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			// Buffer full, drop event or log warning
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	// Synchronous publishing
	ep.deliverEvent(event)
	return nil
}

// PublishResolutionStarted publishes a resolution started event.
func (ep *EventPublisher) PublishResolutionStarted(resolutionID, trigger string, serviceCount int) error {
	return ep.Publish(Event{
		Type:         EventTypeResolutionStarted,
		Source:       "resolver",
		ResolutionID: resolutionID,
		Message:      fmt.Sprintf("Resolution %s started (%s) for %d services", resolutionID, trigger, serviceCount),
		Level:        EventLevelInfo,
		Data: map[string]interface{}{
			"trigger":  trigger,
			"services": serviceCount,
		},
	})
}

// PublishResolutionCompleted publishes a resolution completed event.
func (ep *EventPublisher) PublishResolutionCompleted(resolutionID string, valid bool, fulfilled, unmet []string, duration time.Duration) error {
	level := EventLevelInfo
	if !valid {
		level = EventLevelWarning
	}
	return ep.Publish(Event{
		Type:         EventTypeResolutionCompleted,
		Source:       "resolver",
		ResolutionID: resolutionID,
		Message:      fmt.Sprintf("Resolution %s completed: valid=%t, %d fulfilled, %d unmet", resolutionID, valid, len(fulfilled), len(unmet)),
		Level:        level,
		Data: map[string]interface{}{
			"valid":     valid,
			"fulfilled": fulfilled,
			"unmet":     unmet,
			"duration":  duration.Seconds(),
		},
	})
}

// PublishResolutionFailed publishes a resolution failed event.
func (ep *EventPublisher) PublishResolutionFailed(resolutionID, reason string) error {
	return ep.Publish(Event{
		Type:         EventTypeResolutionFailed,
		Source:       "resolver",
		ResolutionID: resolutionID,
		Message:      fmt.Sprintf("Resolution %s failed: %s", resolutionID, reason),
		Level:        EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishServiceAdmitted publishes a service admitted event.
func (ep *EventPublisher) PublishServiceAdmitted(resolutionID, service, contractSlug string) error {
	return ep.Publish(Event{
		Type:         EventTypeServiceAdmitted,
		Source:       "resolver",
		ResolutionID: resolutionID,
		Service:      service,
		ContractSlug: contractSlug,
		Message:      fmt.Sprintf("Service %s admitted: all requirements of %s satisfied", service, contractSlug),
		Level:        EventLevelInfo,
	})
}

// PublishServiceRejected publishes a service rejected event.
func (ep *EventPublisher) PublishServiceRejected(resolutionID, service, contractSlug string, reasons []string) error {
	return ep.Publish(Event{
		Type:         EventTypeServiceRejected,
		Source:       "resolver",
		ResolutionID: resolutionID,
		Service:      service,
		ContractSlug: contractSlug,
		Message:      fmt.Sprintf("Service %s rejected: %s", service, strings.Join(reasons, "; ")),
		Level:        EventLevelWarning,
		Data: map[string]interface{}{
			"reasons": reasons,
		},
	})
}

// PublishServiceElided publishes an optional service elided event.
func (ep *EventPublisher) PublishServiceElided(resolutionID, service, contractSlug string, reasons []string) error {
	return ep.Publish(Event{
		Type:         EventTypeServiceElided,
		Source:       "resolver",
		ResolutionID: resolutionID,
		Service:      service,
		ContractSlug: contractSlug,
		Message:      fmt.Sprintf("Optional service %s elided from resolution", service),
		Level:        EventLevelInfo,
		Data: map[string]interface{}{
			"reasons": reasons,
		},
	})
}

// PublishProbeFailed publishes a device probe failure event.
func (ep *EventPublisher) PublishProbeFailed(resolutionID, code, reason string) error {
	return ep.Publish(Event{
		Type:         EventTypeProbeFailed,
		Source:       "prober",
		ResolutionID: resolutionID,
		Message:      fmt.Sprintf("Device probe failed: %s", reason),
		Level:        EventLevelError,
		Data: map[string]interface{}{
			"code":   code,
			"reason": reason,
		},
	})
}

// PublishPolicyViolation publishes a policy violation event.
func (ep *EventPublisher) PublishPolicyViolation(resolutionID, service, policyName, reason string) error {
	return ep.Publish(Event{
		Type:         EventTypePolicyViolation,
		Source:       "policy_engine",
		ResolutionID: resolutionID,
		Service:      service,
		Message:      fmt.Sprintf("Policy violation: %s - %s", policyName, reason),
		Level:        EventLevelError,
		Data: map[string]interface{}{
			"policy": policyName,
			"reason": reason,
		},
	})
}

// PublishStateReloaded publishes a target state reloaded event.
func (ep *EventPublisher) PublishStateReloaded(path string, serviceCount int) error {
	return ep.Publish(Event{
		Type:    EventTypeStateReloaded,
		Source:  "state_loader",
		Message: fmt.Sprintf("Target state reloaded from %s (%d services)", path, serviceCount),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"path":     path,
			"services": serviceCount,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			// Flush batch if it reaches max size
			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			// Flush remaining events before shutting down
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// periodicFlush flushes events periodically.
func (ep *EventPublisher) periodicFlush() {
	defer ep.wg.Done()

	ticker := time.NewTicker(ep.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Trigger flush by draining buffer
			// This is handled by the processEvents goroutine
		case <-ep.ctx.Done():
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		// Apply subscriber-specific filter
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		// Call subscriber in a goroutine to avoid blocking
		go entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	// Signal shutdown
	ep.cancel()

	// Wait for processing to complete with timeout
	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByResolutionID creates a filter that only allows events for a specific resolution.
func FilterByResolutionID(resolutionID string) EventFilter {
	return func(event Event) bool {
		return event.ResolutionID == resolutionID
	}
}

// FilterByService creates a filter that only allows events for a specific service.
func FilterByService(service string) EventFilter {
	return func(event Event) bool {
		return event.Service == service
	}
}
