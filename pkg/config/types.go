package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the agent looks for its configuration when no
// path is given on the command line.
const DefaultPath = "/etc/edgewarden/config.yaml"

// Duration is a time.Duration that unmarshals from Go duration strings
// ("30s", "5m") as well as integer nanoseconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalYAML renders the duration as a Go duration string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML accepts either a duration string or nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case int:
		*d = Duration(v)
	case int64:
		*d = Duration(v)
	case float64:
		*d = Duration(v)
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// Config is the agent configuration loaded from the config file, with
// WARDEN_* environment variables taking precedence.
type Config struct {
	// Device identifies this device in logs, events and telemetry.
	Device DeviceConfig `yaml:"device"`

	// Agent configures the reconciliation daemon.
	Agent AgentConfig `yaml:"agent"`

	// State configures the target state document.
	State StateConfig `yaml:"state"`

	// Policy configures the deployment policy gate.
	Policy PolicyConfig `yaml:"policy"`

	// Store configures the resolution history store.
	Store StoreConfig `yaml:"store"`

	// API configures the local HTTP API.
	API APIConfig `yaml:"api"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures Prometheus metrics.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing configures OpenTelemetry tracing.
	Tracing TracingConfig `yaml:"tracing"`

	// Environment is the deployment environment.
	Environment string `yaml:"environment" validate:"omitempty,oneof=development staging production"`
}

// DeviceConfig identifies the device the agent runs on.
type DeviceConfig struct {
	// Name is the device name reported in telemetry. Defaults to the
	// hostname when empty.
	Name string `yaml:"name"`
}

// AgentConfig configures the reconciliation daemon.
type AgentConfig struct {
	// ResolveInterval is how often the daemon re-resolves the target
	// state against fresh device facts.
	ResolveInterval Duration `yaml:"resolve_interval" validate:"min=0"`

	// ProbeTimeout bounds each device probe (os-release read, uname).
	ProbeTimeout Duration `yaml:"probe_timeout" validate:"min=0"`
}

// StateConfig configures the target state document.
type StateConfig struct {
	// Path is the target state file the daemon reconciles against.
	Path string `yaml:"path" validate:"required"`

	// Watch reloads the target state when the file changes.
	Watch bool `yaml:"watch"`
}

// PolicyConfig configures the deployment policy gate.
type PolicyConfig struct {
	// Dir is a directory of operator Rego policies loaded in addition
	// to the builtin policies. A missing directory is not an error.
	Dir string `yaml:"dir"`

	// Mode is the enforcement mode (enforce, permissive). Error-level
	// violations block reconciliation in either mode; a failing policy
	// engine blocks in enforce mode and is logged and skipped in
	// permissive mode.
	Mode string `yaml:"mode" validate:"omitempty,oneof=enforce permissive"`
}

// StoreConfig configures the resolution history store.
type StoreConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path" validate:"required"`
}

// APIConfig configures the local HTTP API.
type APIConfig struct {
	// Enabled turns the local HTTP API on.
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the API bind address.
	ListenAddress string `yaml:"listen_address" validate:"omitempty,hostname_port"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level.
	Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal"`

	// Format selects console or json output.
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled turns metric collection on. The API serves the metrics
	// handler at /metrics when enabled.
	Enabled bool `yaml:"enabled"`

	// ListenAddress optionally exposes a standalone metrics server in
	// addition to the API mount.
	ListenAddress string `yaml:"listen_address" validate:"omitempty,hostname_port"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled turns tracing on.
	Enabled bool `yaml:"enabled"`

	// Exporter selects the span exporter (otlp, stdout, none).
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`

	// Endpoint is the OTLP collector endpoint.
	Endpoint string `yaml:"endpoint"`

	// SamplingRate is the trace sampling ratio.
	SamplingRate float64 `yaml:"sampling_rate" validate:"min=0,max=1"`
}
