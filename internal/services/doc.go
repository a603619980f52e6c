// Package services defines shared helpers consumed by the orchestrator and
// the components it drives.
//
// Key responsibilities:
//   - Structured error markers plus the Wrap helper that classify failures
//     so the orchestrator can decide log-and-continue vs escalate.
//   - A severity mapping that centralizes the "never crash the tick loop"
//     policy in one place.
//
// Use these helpers when wiring new tick logic so operational behaviour
// (error handling, observability, retries) stays uniform across the daemon.
package services
