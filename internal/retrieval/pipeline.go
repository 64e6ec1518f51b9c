package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/lanternsearch/lantern/internal/connector"
	"github.com/lanternsearch/lantern/internal/store"
)

// maxSiblingEdges caps the directory-sibling edges created per
// document so dense directories do not explode the graph.
const maxSiblingEdges = 8

// TriggerBackfill runs a crawl over the policy roots, processing
// eligible files through the pipeline. limit > 0 bounds the number of
// emitted events for this run and yields a paused checkpoint with a
// resume token; the next call continues from it.
//
// Backfill is idempotent: the current-attempt check runs before
// extraction, so re-running over an unchanged corpus processes
// nothing.
func (s *Service) TriggerBackfill(ctx context.Context, limit int) (connector.BackfillCheckpoint, error) {
	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return connector.BackfillCheckpoint{Status: connector.StatusPaused}, fmt.Errorf("retrieval: paused for system sleep")
	}
	token := s.resumeToken
	s.mu.Unlock()

	mode := connector.ModeFull
	if token != "" {
		mode = connector.ModeIncremental
	}

	s.setOperation("backfill")
	defer s.setOperation("")
	s.beginProgress(store.SourceTypeFile)

	checkpoint, err := s.connector.RunBackfill(ctx, token, mode, s.cfg.Policy, limit,
		func(batchCtx context.Context, events []store.IngestionEvent, stats connector.ScanBatchStats) error {
			for _, ev := range events {
				s.mu.Lock()
				s.inFlight++
				s.mu.Unlock()

				s.processEvent(batchCtx, ev)

				s.mu.Lock()
				s.inFlight--
				s.mu.Unlock()
				s.advanceProgress(ev.SourceType)
			}
			return batchCtx.Err()
		})

	s.mu.Lock()
	s.resumeToken = checkpoint.ResumeToken
	s.mu.Unlock()
	s.finishProgress(store.SourceTypeFile, checkpoint.EstimatedTotal)

	if err != nil {
		return checkpoint, fmt.Errorf("backfill: %w", err)
	}

	slog.Info("backfill_complete",
		slog.String("status", checkpoint.Status),
		slog.Int("items_processed", checkpoint.ItemsProcessed),
		slog.Int("estimated_total", checkpoint.EstimatedTotal))
	return checkpoint, nil
}

// processEvent runs one ingestion event through extract → chunk →
// embed → store. Per-file failures are contained as attempt outcomes;
// they never abort the caller.
func (s *Service) processEvent(ctx context.Context, ev store.IngestionEvent) {
	counters := s.countersFor(ev.SourceType)

	current, err := s.store.IsIngestionAttemptCurrent(ctx, ev.SourceType, ev.SourceID, ev.OccurredAt)
	if err != nil {
		slog.Warn("attempt_check_failed",
			slog.String("path", ev.Path),
			slog.String("error", err.Error()))
	}
	if current {
		s.mu.Lock()
		counters.SkippedCurrent++
		s.mu.Unlock()
		return
	}

	result := s.extractor.Extract(ctx, ev.Path, s.cfg.Policy)
	outcome := result.Telemetry.Outcome

	if err := s.store.RecordIngestionAttempt(ctx, ev.SourceType, ev.SourceID, ev.Path, ev.OccurredAt, outcome); err != nil {
		slog.Warn("attempt_record_failed",
			slog.String("path", ev.Path),
			slog.String("error", err.Error()))
	}

	s.mu.Lock()
	counters.EventsProcessed++
	switch outcome {
	case store.OutcomeSuccess:
		counters.Succeeded++
	case store.OutcomeUnsupported:
		counters.Unsupported++
	case store.OutcomeFailed:
		counters.Failed++
	case store.OutcomePartial:
		counters.Partial++
	}
	s.mu.Unlock()

	// Success indexes the full text; partial (timeout) indexes the
	// metadata-only stub so the title is findable until the retry.
	if result.Content == nil || (outcome != store.OutcomeSuccess && outcome != store.OutcomePartial) {
		return
	}

	if err := s.indexContent(ctx, ev, result.Content.Title, result.Content.Text, result.Content.Metadata); err != nil {
		slog.Warn("index_failed",
			slog.String("path", ev.Path),
			slog.String("error", err.Error()))
		s.mu.Lock()
		counters.Failed++
		s.mu.Unlock()
	}
}

// indexContent chunks, embeds, and upserts one document, then derives
// its graph edges.
func (s *Service) indexContent(ctx context.Context, ev store.IngestionEvent, title, text string, metadata map[string]string) error {
	if title == "" {
		title = ev.Title
	}

	docID := store.DocumentID(ev.SourceType, ev.SourceID)
	doc := &store.Document{
		ID:         docID,
		SourceType: ev.SourceType,
		SourceID:   ev.SourceID,
		Title:      title,
		Body:       text,
		Path:       ev.Path,
		UpdatedAt:  ev.OccurredAt,
		Risk:       store.RiskNone,
		Partition:  s.partitionFor(ev.OccurredAt),
		Searchable: true,
	}

	markdown := metadata["format"] == "markdown"
	spans := s.chunker.Chunk(text, markdown)

	chunks := make([]*store.Chunk, 0, len(spans))
	texts := make([]string, 0, len(spans))
	for _, span := range spans {
		chunks = append(chunks, &store.Chunk{
			ID:         store.ChunkID(docID, span.Ordinal),
			DocumentID: docID,
			Ordinal:    span.Ordinal,
			Text:       span.Text,
		})
		texts = append(texts, span.Text)
	}

	if len(texts) > 0 {
		embeddings, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			// Lexical search still works without vectors; the attempt
			// stays non-current only if extraction was partial.
			slog.Warn("embedding_failed",
				slog.String("path", ev.Path),
				slog.String("error", err.Error()))
		} else {
			for i := range chunks {
				chunks[i].Embedding = embeddings[i]
			}
		}
	}

	if err := s.store.UpsertDocument(ctx, doc, chunks); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}

	if err := s.linkDirectorySiblings(ctx, doc); err != nil {
		slog.Debug("graph_link_failed",
			slog.String("path", ev.Path),
			slog.String("error", err.Error()))
	}
	return nil
}

// partitionFor assigns the priority tier by modification age.
func (s *Service) partitionFor(updatedAt time.Time) store.Partition {
	if updatedAt.IsZero() {
		return store.PartitionCold
	}
	if s.now().Sub(updatedAt) > s.cfg.hotPartitionMaxAge() {
		return store.PartitionCold
	}
	return store.PartitionHot
}

// linkDirectorySiblings records sibling edges between the document and
// other documents in its directory, bounded per document. Edge ids are
// derived from the endpoints so re-ingestion upserts rather than
// duplicates.
func (s *Service) linkDirectorySiblings(ctx context.Context, doc *store.Document) error {
	dir := filepath.Dir(doc.Path)
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}

	siblings, err := s.store.DocumentsUnderPath(ctx, dir+string(filepath.Separator), maxSiblingEdges*4)
	if err != nil {
		return err
	}

	now := s.now()
	var edges []*store.GraphEdge
	for _, sib := range siblings {
		if sib.ID == doc.ID || len(edges) >= maxSiblingEdges {
			continue
		}
		// Direct siblings only, not documents in nested directories.
		if filepath.Dir(sib.Path) != dir {
			continue
		}
		edges = append(edges, &store.GraphEdge{
			ID:         siblingEdgeID(doc.ID, sib.ID),
			SourceNode: doc.ID,
			TargetNode: sib.ID,
			EdgeType:   "directory_sibling",
			Confidence: 0.8,
			Weight:     1,
			SourceType: doc.SourceType,
			EventTime:  doc.UpdatedAt,
			UpdatedAt:  now,
		})
	}
	if len(edges) == 0 {
		return nil
	}
	return s.store.InsertGraphEdges(ctx, edges)
}

// siblingEdgeID is order-independent so A→B and B→A collapse to one
// edge row.
func siblingEdgeID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return store.DocumentID("edge:directory_sibling", a+"|"+b)
}

// titleFromPath derives an event title from a file path.
func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
