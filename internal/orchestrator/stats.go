package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// StatsFileName is the status artifact written under the meta dir.
const StatsFileName = "stats.json"

// writeStats persists the runtime snapshot atomically via a temp file so
// external readers never see a torn document.
func writeStats(metaDir string, state RuntimeState) error {
	if metaDir == "" {
		return nil
	}
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	target := filepath.Join(metaDir, StatsFileName)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, append(payload, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}
