package ipc

import "kestrel/internal/orchestrator"

// StatusRequest asks for the daemon's runtime snapshot.
type StatusRequest struct{}

// StatusResponse carries the orchestrator snapshot.
type StatusResponse struct {
	State orchestrator.RuntimeState `json:"state"`
}

// RotateRequest asks the daemon to end the current capture pass early.
type RotateRequest struct{}

// RotateResponse acknowledges a rotate request.
type RotateResponse struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
}

// StopRequest asks the daemon to stop after the current tick.
type StopRequest struct{}

// StopResponse acknowledges a stop request.
type StopResponse struct {
	Stopping bool   `json:"stopping"`
	Message  string `json:"message"`
}
