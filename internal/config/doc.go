// Package config loads, normalizes, and validates kestrel's TOML
// configuration. Defaults live in defaults.go and the embedded
// sample_config.toml documents every knob for operators.
package config
