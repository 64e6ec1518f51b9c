// Package policy decides whether a filesystem path should be indexed.
// The decision function is pure: it looks only at the supplied path and
// metadata, never at file contents, so a crawler can prune whole
// subtrees on a directory prefix alone.
package policy

import (
	"path/filepath"
	"strings"
	"time"
)

// Action is the outcome of a policy evaluation.
type Action string

const (
	// ActionIndex means the file should be extracted and indexed.
	ActionIndex Action = "index"
	// ActionDeferred means the file is kept out of this pass but not
	// permanently excluded (e.g. oversized files).
	ActionDeferred Action = "deferred"
	// ActionSkip means the file is excluded; Reason says why.
	ActionSkip Action = "skip"
)

// Reason classifies a skip decision.
type Reason string

const (
	// ReasonUnsupportedFileType covers extensions outside the allow set,
	// including all source-code files. These never reach extraction and
	// are never counted as unsupported extraction telemetry.
	ReasonUnsupportedFileType Reason = "unsupported_file_type"
	// ReasonExcludedPath covers dependency and build trees
	// (node_modules, .git, vendor, dist, caches).
	ReasonExcludedPath Reason = "excluded_path"
	// ReasonSensitivePath covers credential-shaped files (.env, keys).
	ReasonSensitivePath Reason = "sensitive_path"
	// ReasonNone is set on index/deferred decisions.
	ReasonNone Reason = ""
)

// Decision is the result of evaluating one path.
type Decision struct {
	Action Action
	Reason Reason
}

// Index reports whether the decision allows indexing.
func (d Decision) Index() bool { return d.Action == ActionIndex }

// Policy is an immutable indexing policy. Construct one from a preset
// (DeveloperPreset) plus caller-supplied allowlist roots.
type Policy struct {
	// AllowlistRoots are the absolute directories a backfill walks.
	AllowlistRoots []string

	// Excludes are directory patterns pruned without descending
	// (same pattern grammar as the crawler's exclusion matching:
	// "**/name/**" matches the component anywhere, "prefix/**"
	// matches a subtree).
	Excludes []string

	// AllowedExtensions is the extension allow set, lowercase without
	// the leading dot. Anything outside it is unsupported_file_type.
	AllowedExtensions map[string]struct{}

	// SkipUnknownMime skips files whose extension is absent entirely.
	SkipUnknownMime bool

	// MaxFileSize defers files larger than this many bytes.
	MaxFileSize int64

	// MaxExtractionTimePerFile bounds a single file's extraction.
	MaxExtractionTimePerFile time.Duration
}

// DefaultMaxFileSize defers files above 64MB.
const DefaultMaxFileSize = 64 * 1024 * 1024

// DefaultMaxExtractionTime is the per-file extraction budget.
const DefaultMaxExtractionTime = 12 * time.Second

// developerExtensions is the document extension allow set for the
// "developer" preset. Source code is deliberately absent.
var developerExtensions = []string{
	"docx", "pptx", "xlsx", "doc",
	"pdf",
	"png", "jpg", "jpeg", "tiff", "tif",
	"json",
	"txt", "md", "markdown", "rtf",
	"csv",
}

// sourceCodeExtensions are always skipped as unsupported_file_type,
// even if a caller adds them to the allow set by mistake.
var sourceCodeExtensions = map[string]struct{}{
	"go": {}, "js": {}, "jsx": {}, "ts": {}, "tsx": {}, "mjs": {},
	"py": {}, "rb": {}, "rs": {}, "java": {}, "kt": {}, "c": {},
	"h": {}, "cpp": {}, "hpp": {}, "cc": {}, "cs": {}, "swift": {},
	"php": {}, "scala": {}, "ex": {}, "exs": {}, "erl": {}, "hs": {},
	"lua": {}, "sh": {}, "bash": {}, "zsh": {}, "sql": {}, "pl": {},
	"m": {}, "mm": {}, "vue": {}, "svelte": {}, "proto": {},
}

// defaultExcludes are dependency and build trees pruned without
// descending.
var defaultExcludes = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/target/**",
	"**/DerivedData/**",
	"**/.gradle/**",
	"**/.cache/**",
	"**/.npm/**",
	"**/.cargo/**",
	"**/.venv/**",
	"**/venv/**",
	"**/Pods/**",
	"**/.Trash/**",
	"**/Library/Caches/**",
}

// sensitiveFilePatterns are never indexed regardless of extension.
var sensitiveFilePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"*credentials*",
	"*secrets*",
	"*password*",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
}

// DeveloperPreset builds the standard policy for a developer machine:
// document formats only, dependency/build trees pruned, sensitive
// files skipped.
func DeveloperPreset(roots []string) *Policy {
	allowed := make(map[string]struct{}, len(developerExtensions))
	for _, ext := range developerExtensions {
		allowed[ext] = struct{}{}
	}
	return &Policy{
		AllowlistRoots:           append([]string(nil), roots...),
		Excludes:                 append([]string(nil), defaultExcludes...),
		AllowedExtensions:        allowed,
		SkipUnknownMime:          true,
		MaxFileSize:              DefaultMaxFileSize,
		MaxExtractionTimePerFile: DefaultMaxExtractionTime,
	}
}

// Evaluate decides whether a file should be indexed, deferred, or
// skipped. Pure: no I/O beyond the supplied metadata.
func (p *Policy) Evaluate(path string, size int64, modTime time.Time) Decision {
	_ = modTime // reserved for age-based tiers; partition assignment happens at upsert

	if p.isExcludedPath(path) {
		return Decision{Action: ActionSkip, Reason: ReasonExcludedPath}
	}

	base := filepath.Base(path)
	for _, pattern := range sensitiveFilePatterns {
		if matchFilePattern(base, pattern) {
			return Decision{Action: ActionSkip, Reason: ReasonSensitivePath}
		}
	}

	ext := normalizedExt(path)
	if ext == "" {
		if p.SkipUnknownMime {
			return Decision{Action: ActionSkip, Reason: ReasonUnsupportedFileType}
		}
	} else {
		if _, code := sourceCodeExtensions[ext]; code {
			return Decision{Action: ActionSkip, Reason: ReasonUnsupportedFileType}
		}
		if _, ok := p.AllowedExtensions[ext]; !ok {
			return Decision{Action: ActionSkip, Reason: ReasonUnsupportedFileType}
		}
	}

	maxSize := p.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if size > maxSize {
		return Decision{Action: ActionDeferred}
	}

	return Decision{Action: ActionIndex}
}

// EvaluateDir decides exclusion on a directory prefix alone so a
// crawler can prune the entire subtree without descending into it.
func (p *Policy) EvaluateDir(path string) Decision {
	if p.isExcludedPath(path) {
		return Decision{Action: ActionSkip, Reason: ReasonExcludedPath}
	}
	return Decision{Action: ActionIndex}
}

// ExtractionBudget returns the per-file extraction time budget.
func (p *Policy) ExtractionBudget() time.Duration {
	if p.MaxExtractionTimePerFile <= 0 {
		return DefaultMaxExtractionTime
	}
	return p.MaxExtractionTimePerFile
}

func (p *Policy) isExcludedPath(path string) bool {
	for _, pattern := range p.Excludes {
		if matchDirPattern(path, pattern) {
			return true
		}
	}
	return false
}

// matchDirPattern checks a path against a directory exclusion pattern.
func matchDirPattern(path, pattern string) bool {
	// "**/name/**" matches the component anywhere in the path.
	if strings.HasPrefix(pattern, "**/") {
		component := strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
		for _, part := range strings.Split(path, string(filepath.Separator)) {
			if part == component {
				return true
			}
		}
		return false
	}

	// "prefix/**" matches the directory itself or anything under it.
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return path == prefix || strings.HasPrefix(path, prefix+string(filepath.Separator))
	}

	return path == pattern || strings.HasPrefix(path, pattern+string(filepath.Separator))
}

// matchFilePattern checks a base name against a sensitive-file pattern.
func matchFilePattern(base, pattern string) bool {
	switch {
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*"):
		middle := strings.TrimSuffix(strings.TrimPrefix(pattern, "*"), "*")
		return strings.Contains(strings.ToLower(base), strings.ToLower(middle))
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(base, strings.TrimPrefix(pattern, "*"))
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(base, strings.TrimSuffix(pattern, "*"))
	default:
		return base == pattern
	}
}

// normalizedExt returns the lowercase extension without the dot.
func normalizedExt(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
