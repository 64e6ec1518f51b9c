package preflight

import (
	"fmt"
	"syscall"
)

// minOpenFiles is the lowest file descriptor limit the crawler and
// watcher can work under. fsnotify holds one descriptor per watched
// directory, on top of the store, sockets, and extraction handles.
const minOpenFiles = 1024

// CheckFileDescriptors verifies the process's open file limit.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{Name: "file_descriptors", Required: true}

	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (minimum: %d)", limit.Cur, minOpenFiles)
	if limit.Cur < minOpenFiles {
		result.Status = StatusFail
		result.Details = "Run 'ulimit -n 10240' to raise the limit"
	} else {
		result.Status = StatusPass
	}
	return result
}
