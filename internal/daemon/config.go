// Package daemon is the IPC surface of the retrieval service: a
// JSON-RPC 2.0 server on a Unix socket under the daemon data
// directory, a matching client, pidfile management, and background
// vector-index compaction. CLI commands talk to a running daemon
// through this package instead of opening the index themselves.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds the IPC settings.
type Config struct {
	// SocketPath is the Unix domain socket path.
	// Default: ~/.lantern/run/lantern.sock
	SocketPath string

	// PIDPath stores the daemon's process ID next to the socket.
	// Default: ~/.lantern/run/lantern.pid
	PIDPath string

	// Timeout bounds a single client-daemon exchange.
	// Default: 30s
	Timeout time.Duration

	// ShutdownGracePeriod is how long active connections get to finish
	// on shutdown. Default: 10s
	ShutdownGracePeriod time.Duration
}

// DefaultConfig returns the standard paths under ~/.lantern/run.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	runDir := filepath.Join(home, ".lantern", "run")

	return Config{
		SocketPath:          filepath.Join(runDir, "lantern.sock"),
		PIDPath:             filepath.Join(runDir, "lantern.pid"),
		Timeout:             30 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	return nil
}

// EnsureDir creates the directories for the socket and PID files.
func (c Config) EnsureDir() error {
	socketDir := filepath.Dir(c.SocketPath)
	if err := os.MkdirAll(socketDir, 0o755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if pidDir := filepath.Dir(c.PIDPath); pidDir != socketDir {
		if err := os.MkdirAll(pidDir, 0o755); err != nil {
			return fmt.Errorf("create PID directory: %w", err)
		}
	}
	return nil
}
