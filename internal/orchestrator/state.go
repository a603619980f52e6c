package orchestrator

import "time"

// Phase is the orchestrator lifecycle state.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseRunning      Phase = "running"
	PhaseDraining     Phase = "draining"
	PhaseStopped      Phase = "stopped"
)

// RuntimeState is the orchestrator's published view of one run. The tick
// loop is the only writer; listeners read consistent copies via Snapshot.
type RuntimeState struct {
	Phase     Phase     `json:"phase"`
	Mode      string    `json:"mode"`
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Ticks     int64     `json:"ticks"`
	DryRun    bool      `json:"dry_run"`

	CurrentChannel int  `json:"current_channel"`
	AdapterPresent bool `json:"adapter_present"`

	HandshakesTotal     int64  `json:"handshakes_total"`
	RotationsTotal      int64  `json:"rotations_total"`
	SimulatedTotal      int64  `json:"capture_simulated_total"`
	ConvertTotal        int64  `json:"convert_total"`
	ConvertFailedTotal  int64  `json:"convert_failed_total"`
	ConvertSkippedTotal int64  `json:"convert_skipped_total"`
	RenameTotal         int64  `json:"rename_total"`
	RenameSkippedTotal  int64  `json:"rename_skipped_total"`
	LastCaptureSeq      int64  `json:"last_capture_seq"`
	LastSSID            string `json:"last_ssid"`

	TemperatureC  float64 `json:"temperature_celsius"`
	TemperatureOK bool    `json:"temperature_ok"`

	EvidenceBytes         int64 `json:"evidence_bytes"`
	FreeBytes             int64 `json:"free_space_bytes"`
	LowSpace              bool  `json:"low_space"`
	QuotaEventsTotal      int64 `json:"quota_events_total"`
	PrunedDaysTotal       int64 `json:"quota_pruned_days_total"`
	LowSpaceWarningsTotal int64 `json:"low_space_warnings_total"`
	LogsBytesTotal        int64 `json:"logs_bytes_total"`

	PluginsEnabled int `json:"plugins_enabled"`
}

// Snapshot returns a copy of the current runtime state.
func (o *Orchestrator) Snapshot() RuntimeState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) update(fn func(s *RuntimeState)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.state)
}
