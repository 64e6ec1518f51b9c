package watcher

import (
	"time"

	"github.com/lanternsearch/lantern/internal/policy"
)

// Operation is the kind of filesystem change observed.
type Operation int

const (
	// OpCreate indicates a new file or directory appeared.
	OpCreate Operation = iota
	// OpModify indicates an existing file changed.
	OpModify
	// OpDelete indicates a file or directory disappeared.
	OpDelete
	// OpRename indicates a file or directory moved away. The new
	// location, if watched, arrives as its own OpCreate.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed filesystem change. Paths are absolute;
// the indexed roots are disjoint subtrees, so relative paths would be
// ambiguous.
type FileEvent struct {
	// Path is the absolute path of the changed file or directory.
	Path string

	// Operation is the kind of change.
	Operation Operation

	// IsDir indicates the event is for a directory.
	IsDir bool

	// ModTime is the file's modification time at observation, zero
	// for deletes.
	ModTime time.Time

	// Timestamp is when the event was detected.
	Timestamp time.Time
}

// Options configures the watcher.
type Options struct {
	// Policy filters events: files it skips never reach the output.
	// Required.
	Policy *policy.Policy

	// DebounceWindow is how long to wait before emitting coalesced
	// events. Default: 500ms.
	DebounceWindow time.Duration

	// PollInterval is the scan cadence in polling mode. Default: 5s.
	PollInterval time.Duration

	// EventBufferSize is the output channel buffer. Default: 1000.
	EventBufferSize int
}

// DefaultOptions returns the default watcher options (without a
// policy; callers must supply one).
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 1000,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval == 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}
