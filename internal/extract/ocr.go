package extract

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner abstracts external tool execution so extractors can be
// tested without the tools installed.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs tools via os/exec.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// OCREngine turns an image file into text.
type OCREngine interface {
	Recognize(ctx context.Context, path string) (string, error)
	Available() bool
}

// NewOCREngine picks the best available engine: the in-process
// libtesseract binding when the shared library loads, the tesseract
// CLI when it is on PATH, otherwise an unavailable stub.
func NewOCREngine(runner CommandRunner) OCREngine {
	if native, err := newNativeTesseract(); err == nil {
		return native
	}
	if _, err := exec.LookPath("tesseract"); err == nil {
		return &CLITesseract{Runner: runner}
	}
	return unavailableOCR{}
}

// CLITesseract shells out to the tesseract binary.
type CLITesseract struct {
	Runner CommandRunner
}

// Recognize implements OCREngine.
func (t *CLITesseract) Recognize(ctx context.Context, path string) (string, error) {
	runner := t.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	out, err := runner.Run(ctx, "tesseract", path, "stdout")
	if err != nil {
		return "", fmt.Errorf("ocr failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Available implements OCREngine.
func (t *CLITesseract) Available() bool { return true }

type unavailableOCR struct{}

func (unavailableOCR) Recognize(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: no OCR engine available", ErrUnsupported)
}

func (unavailableOCR) Available() bool { return false }
