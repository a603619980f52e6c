// Package supervisor owns the long-running child processes of the capture
// daemon. Children are restarted on crash with doubling, jittered backoff;
// every fault is converted into a counter so callers never observe an
// error from a poll. The optional give-up threshold is off by default,
// keeping the always-retry policy expected for unattended deployments.
package supervisor
