package storage

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"golang.org/x/sys/unix"
)

var dayPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Stats is the immutable result of one enforcement pass.
type Stats struct {
	TotalBytes       int64
	FreeBytes        int64
	PrunedDays       int
	QuotaEvents      int
	LowSpaceWarnings int
	LowSpace         bool
	Duration         time.Duration
}

// Enforcer prunes day partitions under configured ceilings. The zero value
// is usable; FreeSpace may be overridden in tests.
type Enforcer struct {
	// FreeSpace reports filesystem free bytes for a path. Defaults to
	// statfs on the evidence root.
	FreeSpace func(path string) (int64, error)
}

// Params bounds one enforcement pass.
type Params struct {
	Root          string
	MaxDays       int
	MaxBytes      int64
	LowSpaceBytes int64
	Enabled       bool
}

// EnforceQuota runs one retention pass over the day partitions beneath
// root. With Enabled false the pass is read-only and only reports sizes
// and the low-space condition. Day-count pruning runs first (oldest
// removed, newest MaxDays kept) and continues past individual removal
// failures; size pruning then removes the single oldest remaining
// partition until the aggregate fits MaxBytes, re-listing each iteration,
// and stops on the first removal failure.
func (e *Enforcer) EnforceQuota(p Params) Stats {
	start := time.Now()
	stats := Stats{}

	days := dayDirs(p.Root)
	stats.TotalBytes = totalSize(days)

	free, err := e.freeSpace(p.Root)
	if err == nil {
		stats.FreeBytes = free
		stats.LowSpace = free < p.LowSpaceBytes
	}
	if stats.LowSpace {
		stats.LowSpaceWarnings = 1
	}

	if !p.Enabled {
		stats.Duration = time.Since(start)
		return stats
	}

	// Prune by day count: keep the newest MaxDays partitions.
	if len(days) > p.MaxDays {
		for _, day := range days[:len(days)-p.MaxDays] {
			size := dirSize(day)
			if err := os.RemoveAll(day); err != nil {
				continue
			}
			stats.PrunedDays++
			stats.QuotaEvents++
			stats.TotalBytes -= size
		}
	}

	// Prune by size: remove the oldest remaining partition until the
	// aggregate fits. Re-list every iteration to tolerate concurrent
	// external changes.
	for stats.TotalBytes > p.MaxBytes {
		remaining := dayDirs(p.Root)
		if len(remaining) == 0 {
			break
		}
		oldest := remaining[0]
		size := dirSize(oldest)
		if err := os.RemoveAll(oldest); err != nil {
			break
		}
		stats.PrunedDays++
		stats.QuotaEvents++
		stats.TotalBytes -= size
	}

	stats.Duration = time.Since(start)
	return stats
}

func (e *Enforcer) freeSpace(path string) (int64, error) {
	if e.FreeSpace != nil {
		return e.FreeSpace(path)
	}
	return statfsFree(path)
}

func statfsFree(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * st.Bsize, nil
}

// dayDirs lists valid day partitions beneath root in ascending name
// order. Symlinks and non-matching entries are skipped.
func dayDirs(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() || entry.Type()&fs.ModeSymlink != 0 {
			continue
		}
		if !dayPattern.MatchString(entry.Name()) {
			continue
		}
		dirs = append(dirs, filepath.Join(root, entry.Name()))
	}
	sort.Strings(dirs)
	return dirs
}

// dirSize walks one partition without following symlinks.
func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total
}

func totalSize(dirs []string) int64 {
	var total int64
	for _, dir := range dirs {
		total += dirSize(dir)
	}
	return total
}
