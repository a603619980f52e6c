package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

func init() {
	Register("beacon", func() Plugin { return &beaconPlugin{} })
}

// beaconPlugin drops a heartbeat marker file so external tooling can see
// that a run started, and clears it on drain.
type beaconPlugin struct {
	path string
}

func (b *beaconPlugin) Init(options map[string]any) error {
	path, _ := options["path"].(string)
	if path == "" {
		return fmt.Errorf("beacon: option %q is required", "path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("beacon: %w", err)
	}
	stamp := time.Now().UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(path, []byte(stamp), 0o644); err != nil {
		return fmt.Errorf("beacon: %w", err)
	}
	b.path = path
	return nil
}

func (b *beaconPlugin) Shutdown() error {
	if b.path == "" {
		return nil
	}
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("beacon: %w", err)
	}
	return nil
}
