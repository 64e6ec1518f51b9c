package preflight

import (
	"fmt"
	"syscall"
)

// minIndexDiskSpace is the least free space the data directory needs
// before indexing is allowed to start. The store, FTS mirror, and
// vector snapshot all grow under it.
const minIndexDiskSpace = 100 * 1024 * 1024

// CheckDiskSpace verifies the filesystem holding path has room for
// the index to grow.
func (c *Checker) CheckDiskSpace(path string) CheckResult {
	result := CheckResult{Name: "disk_space", Required: true}

	free, err := freeBytes(path)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%s free (minimum: %s)", humanBytes(free), humanBytes(minIndexDiskSpace))
	if free < minIndexDiskSpace {
		result.Status = StatusFail
	} else {
		result.Status = StatusPass
	}
	return result
}

// freeBytes returns the space available to an unprivileged writer on
// the filesystem holding path.
func freeBytes(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// humanBytes renders a byte count for check messages.
func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d bytes", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
