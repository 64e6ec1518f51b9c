package extract

import (
	"bytes"
	"context"
	"fmt"
)

// Image magic numbers.
var (
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	tiffLE    = []byte{0x49, 0x49, 0x2A, 0x00}
	tiffBE    = []byte{0x4D, 0x4D, 0x00, 0x2A}
)

// ImageExtractor OCRs raster images.
type ImageExtractor struct {
	OCR OCREngine
}

// Name implements Extractor.
func (e *ImageExtractor) Name() string { return "image" }

// CanHandle implements Extractor.
func (e *ImageExtractor) CanHandle(path string, head []byte) bool {
	if hasExt(path, "png", "jpg", "jpeg", "tiff", "tif") {
		return true
	}
	for _, magic := range [][]byte{pngMagic, jpegMagic, tiffLE, tiffBE} {
		if len(head) >= len(magic) && bytes.HasPrefix(head, magic) {
			return true
		}
	}
	return false
}

// Extract implements Extractor.
func (e *ImageExtractor) Extract(ctx context.Context, path string) (*ExtractedContent, error) {
	if e.OCR == nil || !e.OCR.Available() {
		return nil, fmt.Errorf("%w: no OCR engine", ErrUnsupported)
	}
	text, err := e.OCR.Recognize(ctx, path)
	if err != nil {
		return nil, err
	}
	return &ExtractedContent{
		Text:       text,
		Metadata:   map[string]string{"format": normalizedExt(path)},
		WasOCRUsed: true,
	}, nil
}
