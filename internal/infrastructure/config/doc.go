// Package config loads and validates the avrbridge configuration.
//
// Configuration is layered: hardcoded defaults, then YAML file values,
// then AVRBRIDGE_* environment variable overrides. Load applies all
// three and validates the result.
package config
