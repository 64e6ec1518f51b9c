package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf16"
)

// ole2Magic is the compound-file header of legacy Office formats.
var ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

const (
	// maxLegacyDocBytes caps how much of a .doc file is scraped.
	maxLegacyDocBytes = 16 * 1024 * 1024

	// minPrintableRun is the shortest byte run kept as text. Short
	// runs are overwhelmingly structure noise in OLE2 streams.
	minPrintableRun = 16
)

// LegacyDocExtractor scrapes readable text out of pre-OOXML Word
// documents. It does not parse the compound-file structure; it scans
// the raw stream bytes for printable runs (both single-byte and
// UTF-16LE), which recovers the document body reliably enough for
// indexing.
type LegacyDocExtractor struct{}

// Name implements Extractor.
func (e *LegacyDocExtractor) Name() string { return "legacydoc" }

// CanHandle implements Extractor.
func (e *LegacyDocExtractor) CanHandle(path string, head []byte) bool {
	if len(head) >= len(ole2Magic) && bytes.HasPrefix(head, ole2Magic) {
		return true
	}
	return hasExt(path, "doc")
}

// Extract implements Extractor.
func (e *LegacyDocExtractor) Extract(ctx context.Context, path string) (*ExtractedContent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, maxLegacyDocBytes))
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if !bytes.HasPrefix(data, ole2Magic) {
		return nil, fmt.Errorf("%w: not an OLE2 container", ErrUnsupported)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runs := scrapeUTF16Runs(data)
	runs = append(runs, scrapeASCIIRuns(data)...)

	var kept []string
	for _, run := range runs {
		if looksLikeProse(run) {
			kept = append(kept, run)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: no printable text", ErrUnsupported)
	}

	return &ExtractedContent{
		Text:     strings.Join(kept, "\n"),
		Metadata: map[string]string{"format": "doc"},
		Warnings: []string{"legacy_doc_heuristic_extraction"},
	}, nil
}

// scrapeASCIIRuns collects single-byte printable runs.
func scrapeASCIIRuns(data []byte) []string {
	var runs []string
	var current []byte
	flush := func() {
		if len(current) >= minPrintableRun {
			runs = append(runs, string(current))
		}
		current = current[:0]
	}
	for _, b := range data {
		if b >= 0x20 && b < 0x7F || b == '\t' {
			current = append(current, b)
		} else {
			flush()
		}
	}
	flush()
	return runs
}

// scrapeUTF16Runs collects UTF-16LE printable runs, which is how Word
// stores the document body in most .doc revisions.
func scrapeUTF16Runs(data []byte) []string {
	var runs []string
	var current []uint16
	flush := func() {
		if len(current) >= minPrintableRun {
			runs = append(runs, string(utf16.Decode(current)))
		}
		current = current[:0]
	}
	for i := 0; i+1 < len(data); i += 2 {
		u := uint16(data[i]) | uint16(data[i+1])<<8
		r := rune(u)
		if u >= 0x20 && u != 0x7F && (unicode.IsPrint(r) || r == '\t') {
			current = append(current, u)
		} else {
			flush()
		}
	}
	flush()
	return runs
}

// looksLikeProse filters scraped runs down to ones that read like
// document text rather than embedded identifiers or font tables.
func looksLikeProse(run string) bool {
	letters, spaces := 0, 0
	for _, r := range run {
		if unicode.IsLetter(r) {
			letters++
		}
		if r == ' ' {
			spaces++
		}
	}
	total := len([]rune(run))
	if total == 0 {
		return false
	}
	return spaces >= 1 && float64(letters)/float64(total) > 0.5
}
