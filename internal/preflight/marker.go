package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// markerName is the file recording when checks last passed, kept in
// the data directory.
const markerName = ".preflight-passed"

// MarkerTTL is how long a passing result stays trusted. After it
// expires the environment gets re-checked on the next start, so a
// disk that filled up since last time is still caught.
const MarkerTTL = 24 * time.Hour

// NeedsCheck reports whether the environment should be (re)checked:
// no marker, an unreadable one, or one older than MarkerTTL.
func NeedsCheck(dataDir string) bool {
	age := MarkerAge(dataDir)
	return age == 0 || age > MarkerTTL
}

// MarkPassed records a passing check run.
func MarkPassed(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	path := filepath.Join(dataDir, markerName)
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0o644)
}

// ClearMarker forces a re-check on the next start.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, markerName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}

// MarkerAge returns how long ago checks last passed, or zero when no
// valid marker exists.
func MarkerAge(dataDir string) time.Duration {
	content, err := os.ReadFile(filepath.Join(dataDir, markerName))
	if err != nil {
		return 0
	}
	t, err := time.Parse(time.RFC3339, string(content))
	if err != nil {
		return 0
	}
	return time.Since(t)
}
