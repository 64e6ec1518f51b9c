package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/gofrs/flock"
)

// ErrPIDFileNotFound is returned when the PID file doesn't exist.
var ErrPIDFileNotFound = errors.New("PID file not found")

// ErrAlreadyRunning is returned by Acquire when another daemon holds
// the instance lock.
var ErrAlreadyRunning = errors.New("daemon already running")

// PIDFile records the daemon's process ID and enforces a single
// instance via an advisory lock next to it. A stale PID file from a
// crashed daemon does not block a new one: the lock died with the
// process.
type PIDFile struct {
	path string
	lock *flock.Flock
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the PID file path.
func (p *PIDFile) Path() string {
	return p.path
}

// Acquire takes the instance lock and writes the current PID. Returns
// ErrAlreadyRunning if another process holds the lock.
func (p *PIDFile) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create PID directory: %w", err)
	}

	locked, err := p.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return ErrAlreadyRunning
	}

	data := []byte(strconv.Itoa(os.Getpid()))
	if err := os.WriteFile(p.path, data, 0o644); err != nil {
		_ = p.lock.Unlock()
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}

// Release removes the PID file and drops the instance lock.
func (p *PIDFile) Release() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove PID file: %w", err)
	}
	return p.lock.Unlock()
}

// Read returns the PID recorded in the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrPIDFileNotFound
		}
		return 0, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}
	return pid, nil
}

// IsRunning reports whether the recorded process is alive.
func (p *PIDFile) IsRunning() bool {
	pid, err := p.Read()
	if err != nil {
		return false
	}
	return processExists(pid)
}

// Signal sends a signal to the recorded process. Used for
// pause (SIGUSR1), resume (SIGUSR2), and stop (SIGTERM) from the CLI.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	pid, err := p.Read()
	if err != nil {
		return fmt.Errorf("read PID: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := process.Signal(sig); err != nil {
		return fmt.Errorf("signal process %d: %w", pid, err)
	}
	return nil
}

// processExists probes a PID with signal 0. On Unix, FindProcess
// always succeeds, so the probe is the real check.
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
