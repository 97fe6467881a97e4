package agent

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Runtime is the container runtime boundary. The agent tells it which
// services must run; actual container drivers live behind this
// interface and are out of the agent's hands.
type Runtime interface {
	// EnsureRunning makes the service run with the given image. Calling
	// it for a service that already runs the image is a no-op.
	EnsureRunning(ctx context.Context, service, image string) error

	// EnsureStopped stops the service. Calling it for a service that is
	// not running is a no-op.
	EnsureStopped(ctx context.Context, service string) error

	// Running lists the services the runtime currently runs, sorted.
	Running(ctx context.Context) ([]string, error)
}

// LogRuntime records transitions in memory and logs them without
// touching any containers. It stands in for a real container driver on
// benches and in tests: the agent's reconciliation diff runs against
// the tracked set exactly as it would against a live runtime.
type LogRuntime struct {
	mu      sync.Mutex
	running map[string]string
	logger  zerolog.Logger
}

// NewLogRuntime creates an empty logging runtime.
func NewLogRuntime(logger zerolog.Logger) *LogRuntime {
	return &LogRuntime{
		running: make(map[string]string),
		logger:  logger.With().Str("component", "runtime").Logger(),
	}
}

// EnsureRunning marks the service as running with the image.
func (r *LogRuntime) EnsureRunning(_ context.Context, service, image string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.running[service]; ok {
		if current == image {
			return nil
		}
		r.logger.Info().
			Str("service", service).
			Str("image", image).
			Str("previous_image", current).
			Msg("Service would be restarted with new image")
		r.running[service] = image
		return nil
	}

	r.logger.Info().
		Str("service", service).
		Str("image", image).
		Msg("Service would be started")
	r.running[service] = image
	return nil
}

// EnsureStopped removes the service from the running set.
func (r *LogRuntime) EnsureStopped(_ context.Context, service string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.running[service]; !ok {
		return nil
	}

	r.logger.Info().
		Str("service", service).
		Msg("Service would be stopped")
	delete(r.running, service)
	return nil
}

// Running returns the tracked running services in sorted order.
func (r *LogRuntime) Running(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.running))
	for name := range r.running {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Image returns the image the service is tracked as running, if any.
func (r *LogRuntime) Image(service string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	image, ok := r.running[service]
	return image, ok
}
