// Package ipc exposes daemon control over a Unix domain socket using
// JSON-RPC. The operator CLI is the only intended client; the socket
// lives under the meta directory with filesystem permissions as the
// access control.
package ipc
