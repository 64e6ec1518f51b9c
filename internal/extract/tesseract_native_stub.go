//go:build !darwin && !linux

package extract

import "fmt"

// newNativeTesseract is unavailable off darwin/linux; the CLI engine
// or the unavailable stub is used instead.
func newNativeTesseract() (OCREngine, error) {
	return nil, fmt.Errorf("native tesseract not supported on this platform")
}
