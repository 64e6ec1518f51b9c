// Package extract turns a file's bytes into text plus extraction
// telemetry, under a strict per-file time budget. A fixed registry of
// format extractors is consulted in order; the first whose CanHandle
// matches owns the file.
package extract

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/lanternsearch/lantern/internal/store"
)

// headProbeSize is how many leading bytes extractors may sniff.
const headProbeSize = 512

// WarningTimeoutMetadataOnly marks content produced by the timeout
// path: title only, no text body.
const WarningTimeoutMetadataOnly = "extraction_timeout_metadata_only"

// ErrUnsupported signals that an extractor recognized the file but
// could not produce any text from it.
var ErrUnsupported = errors.New("unsupported content")

// ExtractedContent is the text payload of a successful (or partial)
// extraction.
type ExtractedContent struct {
	Text       string
	Title      string
	Metadata   map[string]string
	Warnings   []string
	WasOCRUsed bool
}

// ExtractionTelemetry is the terminal record of one extraction.
type ExtractionTelemetry struct {
	Outcome store.Outcome
	Detail  string
	UsedOCR bool
}

// FileResult pairs extracted content with its telemetry. Content may
// be nil for failed/unsupported outcomes.
type FileResult struct {
	Content   *ExtractedContent
	Telemetry ExtractionTelemetry
}

// Extractor handles one family of file formats.
type Extractor interface {
	// Name identifies the extractor in logs and telemetry detail.
	Name() string

	// CanHandle reports whether this extractor owns the file. head
	// holds up to headProbeSize leading bytes (possibly empty when
	// the file was unreadable).
	CanHandle(path string, head []byte) bool

	// Extract produces content from the file. ErrUnsupported (possibly
	// wrapped) means the format was recognized but yielded no text.
	Extract(ctx context.Context, path string) (*ExtractedContent, error)
}

// titleFromFilename derives a document title from the file name,
// without the extension.
func titleFromFilename(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// normalizedExt returns the lowercase extension without the dot.
func normalizedExt(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// hasExt reports whether path's extension is one of exts (lowercase,
// no dot).
func hasExt(path string, exts ...string) bool {
	ext := normalizedExt(path)
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
