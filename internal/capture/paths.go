package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// DayDir returns the day partition under base for the given time (UTC).
func DayDir(base string, now time.Time) string {
	return filepath.Join(base, now.UTC().Format("2006-01-02"))
}

// NextCapturePath returns an unused indexed capture filename under the
// current day partition's capture subfolder, creating the directory as
// needed. Scanning up from index 0 prevents overwrites after a restart.
func NextCapturePath(base, outDirName string, now time.Time) (string, error) {
	dir := filepath.Join(DayDir(base, now), outDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	for i := 0; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("capture-%05d.pcapng", i))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
}

// ListCaptures returns the raw capture files in dir sorted by modification
// time ascending (oldest first).
func ListCaptures(dir string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, "*.pcapng"))
	if err != nil {
		return nil
	}
	return sortByModTime(matches)
}

// ListConverted returns the derived 22000 artifacts in dir.
func ListConverted(dir string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, "*.22000"))
	if err != nil {
		return nil
	}
	return matches
}

func sortByModTime(paths []string) []string {
	type entry struct {
		path string
		mod  time.Time
	}
	entries := make([]entry, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		entries = append(entries, entry{path: path, mod: info.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].mod.Before(entries[j].mod) })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.path
	}
	return out
}
