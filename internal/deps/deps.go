// Package deps reports availability of the external binaries kestrel
// shells out to. Missing optional tools degrade features instead of
// blocking startup.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"kestrel/internal/config"
)

// Requirement defines an external dependency kestrel relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements builds the dependency list for the given configuration.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	return []Requirement{
		{Name: "hcxdumptool", Command: cfg.Capture.Tools.HcxdumptoolPath, Description: "wireless capture tool", Optional: cfg.Run.DryRun},
		{Name: "hcxpcapngtool", Command: cfg.Capture.Tools.HcxpcapngtoolPath, Description: "capture conversion tool", Optional: true},
		{Name: "iw", Command: "iw", Description: "wireless interface configuration", Optional: cfg.Run.DryRun},
		{Name: "ip", Command: "ip", Description: "link management for MAC randomization", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
