package capture

import (
	"errors"
	"io/fs"
	"os"
)

// Rotate deletes the oldest files beyond maxArchives. The input must be
// sorted by modification time ascending. A file vanishing between listing
// and deletion is not an error. Returns the number of files removed.
func Rotate(files []string, maxArchives int) int {
	if maxArchives < 0 {
		maxArchives = 0
	}
	excess := len(files) - maxArchives
	removed := 0
	for i := 0; i < excess; i++ {
		if err := os.Remove(files[i]); err != nil && !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		removed++
	}
	return removed
}
