package plugin

import (
	"fmt"
	"os"
	"path/filepath"

	"kestrel/internal/fileutil"
)

func init() {
	Register("autobackup", func() Plugin { return &autobackupPlugin{} })
}

// autobackupPlugin mirrors converted artifacts into a backup directory
// when the run drains, so a yanked storage card still leaves the
// cracking-ready files behind.
type autobackupPlugin struct {
	sourceDir string
	destDir   string
	pattern   string
}

func (a *autobackupPlugin) Init(options map[string]any) error {
	a.sourceDir, _ = options["source_dir"].(string)
	a.destDir, _ = options["dest_dir"].(string)
	if a.sourceDir == "" || a.destDir == "" {
		return fmt.Errorf("autobackup: options %q and %q are required", "source_dir", "dest_dir")
	}
	a.pattern, _ = options["pattern"].(string)
	if a.pattern == "" {
		a.pattern = "*.22000"
	}
	return nil
}

func (a *autobackupPlugin) Shutdown() error {
	matches, err := filepath.Glob(filepath.Join(a.sourceDir, a.pattern))
	if err != nil {
		return fmt.Errorf("autobackup: %w", err)
	}
	var firstErr error
	for _, src := range matches {
		info, err := os.Stat(src)
		if err != nil || info.IsDir() {
			continue
		}
		dest := filepath.Join(a.destDir, filepath.Base(src))
		if err := fileutil.CopyFile(src, dest); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("autobackup: %w", err)
		}
	}
	return firstErr
}
