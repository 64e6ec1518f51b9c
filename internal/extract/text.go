package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// maxTextBytes caps how much of a plain-text file is read.
const maxTextBytes = 8 * 1024 * 1024

// TextExtractor is the registry's last resort: plain text and
// markdown. Binary files (NUL in the head probe) are rejected.
type TextExtractor struct{}

// Name implements Extractor.
func (e *TextExtractor) Name() string { return "text" }

// CanHandle implements Extractor.
func (e *TextExtractor) CanHandle(path string, head []byte) bool {
	if bytes.ContainsRune(head, 0) {
		return false
	}
	return hasExt(path, "txt", "md", "markdown", "rtf", "csv", "log")
}

// Extract implements Extractor.
func (e *TextExtractor) Extract(ctx context.Context, path string) (*ExtractedContent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, maxTextBytes))
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Binary sniff: NUL in the first probe window means not text.
	probe := data
	if len(probe) > headProbeSize {
		probe = probe[:headProbeSize]
	}
	if bytes.ContainsRune(probe, 0) {
		return nil, fmt.Errorf("%w: binary content", ErrUnsupported)
	}

	text := string(data)
	var warnings []string
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
		warnings = append(warnings, "invalid_utf8_replaced")
	}

	format := "text"
	if hasExt(path, "md", "markdown") {
		format = "markdown"
	}

	return &ExtractedContent{
		Text:     text,
		Metadata: map[string]string{"format": format},
		Warnings: warnings,
	}, nil
}
