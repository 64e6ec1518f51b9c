package store

import (
	"context"
	"fmt"
	"time"
)

// ConsistencyReport is the outcome of a store consistency check,
// reconciling document, chunk, FTS, and vector counts.
type ConsistencyReport struct {
	Documents      int
	Chunks         int
	FTSRows        int
	VectorCount    int
	EmbeddedChunks int
	OrphanedChunks int // chunks whose document row is gone
	MissingFTSRows int // searchable documents absent from the FTS mirror
	MissingVectors int // embedded chunks absent from the vector index
	Duration       time.Duration
}

// Consistent reports whether no issues were found.
func (r *ConsistencyReport) Consistent() bool {
	return r.OrphanedChunks == 0 && r.MissingFTSRows == 0 && r.MissingVectors == 0
}

// ValidateConsistency reconciles the document, chunk, FTS, and vector
// populations. Used by the doctor command; read-only.
func (s *Store) ValidateConsistency(ctx context.Context) (*ConsistencyReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	start := time.Now()
	report := &ConsistencyReport{}

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM documents`, &report.Documents},
		{`SELECT COUNT(*) FROM chunks`, &report.Chunks},
		{`SELECT COUNT(*) FROM documents_fts`, &report.FTSRows},
		{`SELECT COUNT(*) FROM chunks WHERE embedding IS NOT NULL`, &report.EmbeddedChunks},
		{`SELECT COUNT(*) FROM chunks c LEFT JOIN documents d ON d.id = c.document_id WHERE d.id IS NULL`, &report.OrphanedChunks},
		{`SELECT COUNT(*) FROM documents d LEFT JOIN documents_fts f ON f.doc_id = d.id WHERE d.searchable = 1 AND f.doc_id IS NULL`, &report.MissingFTSRows},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("consistency check failed: %w", err)
		}
	}

	if s.opts.Vectors != nil {
		report.VectorCount = s.opts.Vectors.Count()
		if report.EmbeddedChunks > report.VectorCount {
			report.MissingVectors = report.EmbeddedChunks - report.VectorCount
		}
	}

	report.Duration = time.Since(start)
	return report, nil
}
