package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/lanternsearch/lantern/internal/policy"
	"github.com/lanternsearch/lantern/internal/store"
)

// DefaultWorkers is the size of the extraction worker pool.
const DefaultWorkers = 64

// Service runs format extractors under per-file time budgets.
//
// Extraction work executes on a dedicated worker pool decoupled from
// the per-call watchdog timer, so a blocking extractor cannot delay
// its own timeout or anyone else's. Workers abandoned by a timeout
// finish in the background and their results are discarded.
type Service struct {
	extractors []Extractor
	pool       *ants.Pool

	mu     sync.Mutex
	closed bool
}

type jobResult struct {
	content *ExtractedContent
	err     error
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Workers int           // worker pool size (default DefaultWorkers)
	OCR     OCREngine     // engine for image and PDF-fallback OCR (default NewOCREngine())
	Runner  CommandRunner // external tool runner (default ExecRunner)
}

// NewService builds a Service with the standard extractor registry:
// office XML formats, legacy binary doc, image OCR, PDF, JSON, plain
// text — consulted in that order.
func NewService(opts ServiceOptions) *Service {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.OCR == nil {
		opts.OCR = NewOCREngine(opts.Runner)
	}

	extractors := []Extractor{
		&OfficeExtractor{},
		&LegacyDocExtractor{},
		&ImageExtractor{OCR: opts.OCR},
		&PDFExtractor{Runner: opts.Runner, OCR: opts.OCR},
		&JSONExtractor{},
		&TextExtractor{},
	}
	return NewServiceWithExtractors(opts.Workers, extractors)
}

// NewServiceWithExtractors builds a Service with a custom registry.
func NewServiceWithExtractors(workers int, extractors []Extractor) *Service {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	pool, _ := ants.NewPool(workers)
	return &Service{
		extractors: extractors,
		pool:       pool,
	}
}

// Close stops accepting work and waits for in-flight workers.
// Abandoned workers stuck in a non-cooperative extractor are given up
// on after a grace period rather than wedging shutdown.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.pool.ReleaseTimeout(10 * time.Second); err != nil && !errors.Is(err, ants.ErrTimeout) {
		return err
	}
	return nil
}

// Extract runs the first matching extractor on path under pol's
// per-file budget. Failures are contained as terminal telemetry
// outcomes; Extract itself never returns an error.
func (s *Service) Extract(ctx context.Context, path string, pol *policy.Policy) FileResult {
	budget := policy.DefaultMaxExtractionTime
	if pol != nil {
		budget = pol.ExtractionBudget()
	}

	extractor := s.selectExtractor(path)
	if extractor == nil {
		return FileResult{Telemetry: ExtractionTelemetry{
			Outcome: store.OutcomeUnsupported,
			Detail:  "no_extractor",
		}}
	}

	// The job context is detached from the caller so an abandoned
	// worker can keep running; it is cancelled once the call settles
	// so cooperative extractors abort early.
	jobCtx, cancelJob := context.WithCancel(context.Background())

	result := make(chan jobResult, 1)

	// The watchdog timer starts before the job even reaches a pool
	// worker: waiting behind a saturated pool burns budget too.
	watchdog := time.NewTimer(budget)
	defer watchdog.Stop()

	// Submit blocks when the pool is saturated, so it runs on its own
	// goroutine and the watchdog keeps ticking.
	go func() {
		err := s.pool.Submit(func() {
			content, extractErr := extractor.Extract(jobCtx, path)
			result <- jobResult{content: content, err: extractErr}
		})
		if err != nil {
			result <- jobResult{err: err}
		}
	}()

	select {
	case res := <-result:
		cancelJob()
		return s.settle(path, extractor, res)
	case <-watchdog.C:
		cancelJob()
		slog.Debug("extraction timed out, worker abandoned",
			slog.String("path", path),
			slog.String("extractor", extractor.Name()),
			slog.Duration("budget", budget))
		return s.timeoutResult(path, extractor)
	case <-ctx.Done():
		cancelJob()
		return s.cancelResult(ctx)
	}
}

// selectExtractor probes the file head and returns the first extractor
// claiming the path, or nil.
func (s *Service) selectExtractor(path string) Extractor {
	head := readHead(path)
	for _, e := range s.extractors {
		if e.CanHandle(path, head) {
			return e
		}
	}
	return nil
}

// settle converts a worker result into a terminal FileResult,
// reclassifying empty-text results so warning-only placeholders never
// index as real content.
func (s *Service) settle(path string, extractor Extractor, res jobResult) FileResult {
	if res.err != nil {
		outcome := store.OutcomeFailed
		if errors.Is(res.err, ErrUnsupported) {
			outcome = store.OutcomeUnsupported
		}
		return FileResult{Telemetry: ExtractionTelemetry{
			Outcome: outcome,
			Detail:  fmt.Sprintf("%s: %v", extractor.Name(), res.err),
		}}
	}

	content := res.content
	if content == nil {
		return FileResult{Telemetry: ExtractionTelemetry{
			Outcome: store.OutcomeUnsupported,
			Detail:  extractor.Name() + ": no content",
		}}
	}
	if content.Title == "" {
		content.Title = titleFromFilename(path)
	}

	telemetry := ExtractionTelemetry{
		Outcome: store.OutcomeSuccess,
		UsedOCR: content.WasOCRUsed,
	}
	if strings.TrimSpace(content.Text) == "" {
		telemetry.Outcome = store.OutcomeUnsupported
		telemetry.Detail = "empty_text"
	}
	return FileResult{Content: content, Telemetry: telemetry}
}

func (s *Service) timeoutResult(path string, extractor Extractor) FileResult {
	return FileResult{
		Content: &ExtractedContent{
			Title:    titleFromFilename(path),
			Warnings: []string{WarningTimeoutMetadataOnly},
		},
		Telemetry: ExtractionTelemetry{
			Outcome: store.OutcomePartial,
			Detail:  "timeout",
		},
	}
}

func (s *Service) cancelResult(ctx context.Context) FileResult {
	return FileResult{Telemetry: ExtractionTelemetry{
		Outcome: store.OutcomeFailed,
		Detail:  fmt.Sprintf("cancelled: %v", ctx.Err()),
	}}
}

// readHead returns up to headProbeSize leading bytes of path, or nil.
func readHead(path string) []byte {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, headProbeSize)
	n, err := f.Read(buf)
	if n <= 0 || (err != nil && n == 0) {
		return nil
	}
	return buf[:n]
}
