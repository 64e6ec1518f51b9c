package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var pdfMagic = []byte("%PDF")

// maxOCRPages bounds the rasterize-and-OCR fallback: scanned PDFs
// beyond this many pages are indexed from their leading pages only.
const maxOCRPages = 10

// ocrRasterDPI is the pdftoppm render resolution for OCR.
const ocrRasterDPI = 150

// PDFExtractor extracts the text layer via pdftotext and falls back to
// page rasterization plus OCR when the text layer is empty (scanned
// documents).
type PDFExtractor struct {
	Runner CommandRunner
	OCR    OCREngine
}

// Name implements Extractor.
func (e *PDFExtractor) Name() string { return "pdf" }

// CanHandle implements Extractor.
func (e *PDFExtractor) CanHandle(path string, head []byte) bool {
	if len(head) >= len(pdfMagic) && bytes.HasPrefix(head, pdfMagic) {
		return true
	}
	return hasExt(path, "pdf")
}

// Extract implements Extractor.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (*ExtractedContent, error) {
	runner := e.Runner
	if runner == nil {
		runner = ExecRunner{}
	}

	out, err := runner.Run(ctx, "pdftotext", path, "-")
	if err != nil {
		return nil, fmt.Errorf("text layer extraction failed: %w", err)
	}

	text := strings.TrimSpace(string(out))
	if text != "" {
		return &ExtractedContent{
			Text:     text,
			Metadata: map[string]string{"format": "pdf"},
		}, nil
	}

	// Empty text layer: likely a scanned document. Rasterize and OCR.
	if e.OCR == nil || !e.OCR.Available() {
		return nil, fmt.Errorf("%w: empty text layer and no OCR engine", ErrUnsupported)
	}
	return e.extractViaOCR(ctx, runner, path)
}

func (e *PDFExtractor) extractViaOCR(ctx context.Context, runner CommandRunner, path string) (*ExtractedContent, error) {
	tmpDir, err := os.MkdirTemp("", "lantern-pdf-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	prefix := filepath.Join(tmpDir, "page")
	_, err = runner.Run(ctx, "pdftoppm",
		"-png",
		"-r", strconv.Itoa(ocrRasterDPI),
		"-f", "1",
		"-l", strconv.Itoa(maxOCRPages),
		path, prefix)
	if err != nil {
		return nil, fmt.Errorf("rasterization failed: %w", err)
	}

	pages, err := filepath.Glob(prefix + "*.png")
	if err != nil || len(pages) == 0 {
		return nil, fmt.Errorf("%w: rasterization produced no pages", ErrUnsupported)
	}
	sort.Strings(pages)

	var text strings.Builder
	var warnings []string
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pageText, err := e.OCR.Recognize(ctx, page)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("ocr_page_failed: %s", filepath.Base(page)))
			continue
		}
		text.WriteString(pageText)
		text.WriteString("\n")
	}

	return &ExtractedContent{
		Text:       strings.TrimSpace(text.String()),
		Metadata:   map[string]string{"format": "pdf", "ocr_pages": strconv.Itoa(len(pages))},
		Warnings:   warnings,
		WasOCRUsed: true,
	}, nil
}
