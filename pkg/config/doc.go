// Package config loads and validates the agent configuration.
//
// Configuration is read from a YAML file (default /etc/edgewarden/
// config.yaml), overridden by WARDEN_* environment variables, and
// validated with struct tags. Defaults are chosen so the agent runs
// usefully with no config file at all.
//
// Operator documents (contracts, target state) are not handled here;
// they are validated against CUE schemas in pkg/contracts.
package config
