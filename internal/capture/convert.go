package capture

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"kestrel/internal/services"
)

// Convert invokes the external conversion tool synchronously, producing
// the cracking-ready 22000 artifact at dest. Tool absence, a non-zero
// exit, or an I/O failure are returned as classified errors; the caller
// logs and counts them without aborting its loop.
func Convert(ctx context.Context, tool, src, dest string) error {
	if _, err := exec.LookPath(tool); err != nil {
		return services.Wrap(services.ErrNotFound, "capture", "convert", "conversion tool unavailable", err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.Wrap(services.ErrStorage, "capture", "convert", "create output directory", err)
	}
	cmd := exec.CommandContext(ctx, tool, "-o", dest, src)
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return services.Wrap(services.ErrTimeout, "capture", "convert", "conversion tool timed out", err)
		}
		return services.Wrap(services.ErrExternalTool, "capture", "convert", string(output), err)
	}
	return nil
}
