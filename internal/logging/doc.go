// Package logging wires log/slog with kestrel's console and JSON handlers.
//
// The console handler renders compact single-line output for interactive
// use; the JSON handler is intended for unattended field deployments where
// logs are collected after the fact. Shared attribute helpers keep field
// names consistent across components.
package logging
