// Package connector turns filesystem crawls into IngestionEvent
// batches. The FileConnector walks allowlist roots, prunes excluded
// subtrees on the directory prefix alone, respects .gitignore, and
// delivers events through a caller callback for backpressure.
package connector

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lanternsearch/lantern/internal/gitignore"
	"github.com/lanternsearch/lantern/internal/policy"
	"github.com/lanternsearch/lantern/internal/store"
)

// Mode selects how much of the tree a backfill rescans.
type Mode string

const (
	// ModeFull rescans every allowlist root from the top.
	ModeFull Mode = "full"
	// ModeIncremental continues from a resume token.
	ModeIncremental Mode = "incremental"
)

// Checkpoint statuses.
const (
	StatusIdle   = "idle"
	StatusPaused = "paused"
)

// DefaultBatchSize is the number of events delivered per onBatch call.
const DefaultBatchSize = 32

// gitignoreCacheSize caps the number of cached gitignore matchers so a
// long-running daemon cannot grow without bound.
const gitignoreCacheSize = 1000

// BackfillCheckpoint reports where a backfill run ended. A completed
// run is idle with ItemsProcessed == EstimatedTotal; a limited run is
// paused and carries a resume token (the last path emitted).
type BackfillCheckpoint struct {
	Status         string `json:"status"`
	ItemsProcessed int    `json:"itemsProcessed"`
	EstimatedTotal int    `json:"estimatedTotal"`
	ResumeToken    string `json:"resumeToken,omitempty"`
}

// ScanBatchStats accompanies each delivered batch. CandidatesSeen
// counts every path the walk looked at for this batch, so it is always
// >= EventsEmitted. A pruned subtree contributes a single excluded
// count; its contents are never enumerated.
type ScanBatchStats struct {
	CandidatesSeen            int `json:"candidatesSeen"`
	EventsEmitted             int `json:"eventsEmitted"`
	CandidatesSkippedExcluded int `json:"candidatesSkippedExcluded"`
	CandidatesSkippedPolicy   int `json:"candidatesSkippedPolicy"`
}

func (s *ScanBatchStats) add(o ScanBatchStats) {
	s.CandidatesSeen += o.CandidatesSeen
	s.EventsEmitted += o.EventsEmitted
	s.CandidatesSkippedExcluded += o.CandidatesSkippedExcluded
	s.CandidatesSkippedPolicy += o.CandidatesSkippedPolicy
}

// BatchFunc receives one batch of events with the stats gathered while
// producing it. Returning an error aborts the backfill.
type BatchFunc func(ctx context.Context, events []store.IngestionEvent, stats ScanBatchStats) error

// FileConnector crawls local filesystem roots.
type FileConnector struct {
	batchSize        int
	respectGitignore bool

	gitignoreCache *lru.Cache[string, *gitignore.Matcher]
	cacheMu        sync.RWMutex
}

// Options configures a FileConnector.
type Options struct {
	BatchSize        int  // events per onBatch call (default DefaultBatchSize)
	RespectGitignore bool // honor .gitignore files under each root
}

// New creates a FileConnector.
func New(opts Options) (*FileConnector, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitignore cache: %w", err)
	}
	return &FileConnector{
		batchSize:        opts.BatchSize,
		respectGitignore: opts.RespectGitignore,
		gitignoreCache:   cache,
	}, nil
}

// RunBackfill walks each allowlist root of pol and emits IngestionEvent
// batches through onBatch. Directories the policy excludes are pruned
// with filepath.SkipDir before their contents are enumerated; they add
// one excluded count to the batch stats.
//
// limit > 0 stops the walk after that many emitted events and returns a
// paused checkpoint with a resume token. Roots are walked in sorted
// order so the token (the last path emitted) is a global cursor: a
// resumed run skips every path at or before it.
func (c *FileConnector) RunBackfill(ctx context.Context, resumeToken string, mode Mode, pol *policy.Policy, limit int, onBatch BatchFunc) (BackfillCheckpoint, error) {
	if pol == nil {
		return BackfillCheckpoint{}, fmt.Errorf("nil policy")
	}
	if mode == ModeFull {
		resumeToken = ""
	}

	roots := make([]string, 0, len(pol.AllowlistRoots))
	for _, root := range pol.AllowlistRoots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return BackfillCheckpoint{}, fmt.Errorf("failed to resolve root %s: %w", root, err)
		}
		roots = append(roots, abs)
	}
	sort.Strings(roots)

	run := &backfillRun{
		connector:   c,
		policy:      pol,
		limit:       limit,
		resumeToken: resumeToken,
		onBatch:     onBatch,
	}

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			slog.Warn("skipping unreadable backfill root",
				slog.String("root", root),
				slog.String("error", err.Error()))
			continue
		}
		if !info.IsDir() {
			return BackfillCheckpoint{}, fmt.Errorf("root path is not a directory: %s", root)
		}

		if err := run.walkRoot(ctx, root); err != nil {
			if err == errLimitReached {
				break
			}
			return BackfillCheckpoint{}, err
		}
	}

	if err := run.flush(ctx); err != nil {
		return BackfillCheckpoint{}, err
	}

	checkpoint := BackfillCheckpoint{
		Status:         StatusIdle,
		ItemsProcessed: run.emitted,
		EstimatedTotal: run.emitted,
	}
	if run.limitReached {
		checkpoint.Status = StatusPaused
		checkpoint.ResumeToken = run.lastEmittedPath
	}
	return checkpoint, nil
}

// InvalidateGitignoreCache clears cached gitignore matchers. Call when
// .gitignore files change so fresh patterns are used.
func (c *FileConnector) InvalidateGitignoreCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.gitignoreCache.Purge()
}

// errLimitReached is the internal walk sentinel for limit cutoff.
var errLimitReached = fmt.Errorf("backfill limit reached")

// backfillRun carries the mutable state of one RunBackfill call.
type backfillRun struct {
	connector   *FileConnector
	policy      *policy.Policy
	limit       int
	resumeToken string
	onBatch     BatchFunc

	batch           []store.IngestionEvent
	batchStats      ScanBatchStats
	emitted         int
	lastEmittedPath string
	limitReached    bool
}

func (r *backfillRun) walkRoot(ctx context.Context, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil || relPath == "." {
			return nil
		}

		if d.IsDir() {
			if !r.policy.EvaluateDir(relPath).Index() {
				r.batchStats.CandidatesSeen++
				r.batchStats.CandidatesSkippedExcluded++
				return filepath.SkipDir
			}
			return nil
		}

		// Resume: everything at or before the token was already
		// emitted by the interrupted run.
		if r.resumeToken != "" && path <= r.resumeToken {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		r.batchStats.CandidatesSeen++

		if r.connector.respectGitignore && r.connector.isGitignored(relPath, root) {
			r.batchStats.CandidatesSkippedExcluded++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		decision := r.policy.Evaluate(relPath, info.Size(), info.ModTime())
		if !decision.Index() {
			r.batchStats.CandidatesSkippedPolicy++
			return nil
		}

		r.batch = append(r.batch, store.IngestionEvent{
			SourceType: store.SourceTypeFile,
			ScopeLabel: root,
			SourceID:   path,
			Title:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Path:       path,
			OccurredAt: info.ModTime(),
		})
		r.batchStats.EventsEmitted++
		r.emitted++
		r.lastEmittedPath = path

		if r.limit > 0 && r.emitted >= r.limit {
			r.limitReached = true
			return errLimitReached
		}

		if len(r.batch) >= r.connector.batchSize {
			return r.flush(ctx)
		}
		return nil
	})
}

// flush delivers the pending batch. Stats-only batches (a tail of
// skips after the last emitted event) are still delivered so callers
// see complete counts.
func (r *backfillRun) flush(ctx context.Context) error {
	if len(r.batch) == 0 && r.batchStats == (ScanBatchStats{}) {
		return nil
	}
	if r.onBatch != nil {
		if err := r.onBatch(ctx, r.batch, r.batchStats); err != nil {
			return fmt.Errorf("batch callback failed: %w", err)
		}
	}
	r.batch = nil
	r.batchStats = ScanBatchStats{}
	return nil
}

// isGitignored checks path (relative to root) against the root's
// .gitignore and every nested .gitignore above it.
func (c *FileConnector) isGitignored(relPath, root string) bool {
	if matcher := c.getGitignoreMatcher(root, ""); matcher != nil && matcher.Match(relPath, false) {
		return true
	}

	parts := strings.Split(filepath.Dir(relPath), string(filepath.Separator))
	currentDir := root
	currentBase := ""
	for _, part := range parts {
		if part == "." {
			continue
		}
		currentDir = filepath.Join(currentDir, part)
		currentBase = filepath.Join(currentBase, part)

		if matcher := c.getGitignoreMatcher(currentDir, currentBase); matcher != nil && matcher.Match(relPath, false) {
			return true
		}
	}
	return false
}

// getGitignoreMatcher gets or creates a matcher for dir, caching it.
func (c *FileConnector) getGitignoreMatcher(dir, base string) *gitignore.Matcher {
	c.cacheMu.RLock()
	matcher, ok := c.gitignoreCache.Get(dir)
	c.cacheMu.RUnlock()
	if ok {
		return matcher
	}

	gitignorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
		return nil
	}

	matcher = gitignore.New()
	if err := matcher.AddFromFile(gitignorePath, base); err != nil {
		return nil
	}

	c.cacheMu.Lock()
	c.gitignoreCache.Add(dir, matcher)
	c.cacheMu.Unlock()
	return matcher
}
