package resource

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// TruncateOversized walks dir for *.log files larger than ceiling bytes and
// truncates each in place to exactly retain bytes, keeping the most recent
// tail. Truncation rather than deletion: a writer's open descriptor and
// append offset stay valid, so no process has to reopen its log.
// Returns how many files were truncated.
func TruncateOversized(dir string, ceiling, retain int64) (int, error) {
	if retain >= ceiling {
		retain = ceiling
	}
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err // unreadable or missing root
			}
			// A vanished or unreadable entry must not stop the sweep.
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".log") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() <= ceiling {
			return nil
		}
		if err := truncateKeepTail(path, retain); err != nil {
			return nil
		}
		count++
		return nil
	})
	return count, err
}

// truncateKeepTail rewrites the file so its last retain bytes become the
// whole content. The head is what gets dropped, never the tail.
func truncateKeepTail(path string, retain int64) error {
	// #nosec G304 -- paths come from a directory walk under the configured log dir
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size <= retain {
		return nil
	}
	buf := make([]byte, retain)
	if _, err := f.ReadAt(buf, size-retain); err != nil {
		return err
	}
	if _, err := f.WriteAt(buf, 0); err != nil {
		return err
	}
	return f.Truncate(retain)
}
