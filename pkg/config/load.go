package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/edgewarden/edgewarden/pkg/telemetry"
)

var validate = validator.New()

// Default returns the agent configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			ResolveInterval: Duration(60 * time.Second),
			ProbeTimeout:    Duration(5 * time.Second),
		},
		State: StateConfig{
			Path:  "/etc/edgewarden/state.yaml",
			Watch: true,
		},
		Policy: PolicyConfig{
			Dir:  "/etc/edgewarden/policies",
			Mode: "permissive",
		},
		Store: StoreConfig{
			Path: "/var/lib/edgewarden/history.db",
		},
		API: APIConfig{
			Enabled:       true,
			ListenAddress: "127.0.0.1:9178",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "stdout",
			SamplingRate: 1.0,
		},
		Environment: "production",
	}
}

// Load reads the agent configuration. An empty path means DefaultPath,
// and a missing file at DefaultPath is not an error: the agent runs on
// defaults. An explicitly given path must exist. Environment variables
// with the WARDEN_ prefix override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	optional := path == ""
	if optional {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && optional:
		// No config file present, run on defaults
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.Device.Name == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Device.Name = host
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides config values from WARDEN_* environment variables.
func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("WARDEN_DEVICE_NAME"); ok {
		cfg.Device.Name = v
	}
	if v, ok := os.LookupEnv("WARDEN_ENVIRONMENT"); ok {
		cfg.Environment = v
	}
	if v, ok := os.LookupEnv("WARDEN_LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := os.LookupEnv("WARDEN_LOG_FORMAT"); ok {
		cfg.Logging.Format = v
	}
	if v, ok := os.LookupEnv("WARDEN_STATE_PATH"); ok {
		cfg.State.Path = v
	}
	if v, ok := os.LookupEnv("WARDEN_STORE_PATH"); ok {
		cfg.Store.Path = v
	}
	if v, ok := os.LookupEnv("WARDEN_POLICY_DIR"); ok {
		cfg.Policy.Dir = v
	}
	if v, ok := os.LookupEnv("WARDEN_POLICY_MODE"); ok {
		cfg.Policy.Mode = v
	}
	if v, ok := os.LookupEnv("WARDEN_API_LISTEN"); ok {
		cfg.API.ListenAddress = v
	}
	if v, ok := os.LookupEnv("WARDEN_METRICS_LISTEN"); ok {
		cfg.Metrics.ListenAddress = v
	}
	if v, ok := os.LookupEnv("WARDEN_TRACING_ENDPOINT"); ok {
		cfg.Tracing.Endpoint = v
	}
	if v, ok := os.LookupEnv("WARDEN_RESOLVE_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid WARDEN_RESOLVE_INTERVAL %q: %w", v, err)
		}
		cfg.Agent.ResolveInterval = Duration(d)
	}
	if v, ok := os.LookupEnv("WARDEN_PROBE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid WARDEN_PROBE_TIMEOUT %q: %w", v, err)
		}
		cfg.Agent.ProbeTimeout = Duration(d)
	}
	return nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Telemetry maps the agent configuration onto the telemetry stack
// configuration for the given build version.
func (c *Config) Telemetry(version string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version
	tc.Environment = c.Environment
	tc.DeviceName = c.Device.Name
	tc.Logging.Level = c.Logging.Level
	tc.Logging.Format = c.Logging.Format
	tc.Metrics.Enabled = c.Metrics.Enabled
	tc.Metrics.ListenAddress = c.Metrics.ListenAddress
	tc.Tracing.Enabled = c.Tracing.Enabled
	tc.Tracing.Exporter = c.Tracing.Exporter
	tc.Tracing.Endpoint = c.Tracing.Endpoint
	tc.Tracing.SamplingRate = c.Tracing.SamplingRate
	tc.Events.Enabled = true
	return tc
}
