// Package store is the persistence layer for the retrieval corpus:
// documents, chunks with embeddings, graph edges, ingestion attempts,
// and bounded queue snapshots, backed by SQLite (FTS5 for lexical
// search) plus an HNSW vector index. The store is the single writer
// and sole owner of on-disk consistency.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SourceTypeFile is the source type for filesystem documents.
const SourceTypeFile = "file"

// Partition is a document's priority tier controlling default search
// visibility.
type Partition string

const (
	PartitionHot  Partition = "hot"
	PartitionCold Partition = "cold"
)

// Risk classifies a document's sensitivity.
type Risk string

const (
	RiskNone      Risk = "none"
	RiskSensitive Risk = "sensitive"
)

// Outcome is the terminal result of an ingestion attempt.
type Outcome string

const (
	// OutcomeSuccess means content was extracted and indexed.
	OutcomeSuccess Outcome = "success"
	// OutcomeUnsupported means the format could not yield text.
	OutcomeUnsupported Outcome = "unsupported"
	// OutcomeFailed means extraction errored terminally.
	OutcomeFailed Outcome = "failed"
	// OutcomePartial means extraction was cut off (timeout). Partial
	// attempts are never treated as current and are always retried.
	OutcomePartial Outcome = "partial"
)

// Document is one logical indexed unit (a file, eventually other
// source types). Owned exclusively by the store; replaced on upsert.
type Document struct {
	ID         string    // stable, derived from source identity
	SourceType string    // "file"
	SourceID   string    // connector-scoped identity (absolute path for files)
	Title      string
	Body       string
	Path       string // source path or handle
	UpdatedAt  time.Time
	Risk       Risk
	Partition  Partition
	Searchable bool
}

// Chunk is a sub-span of a document's extracted text with its own
// embedding. A document owns an ordered chunk set, replaced wholesale
// on re-upsert.
type Chunk struct {
	ID         string
	DocumentID string
	Ordinal    int
	Text       string
	Embedding  []float32
}

// GraphEdge is a typed, weighted relation between two nodes
// (documents/entities). Edges referencing a deleted document are
// pruned with it.
type GraphEdge struct {
	ID         string
	SourceNode string
	TargetNode string
	EdgeType   string
	Confidence float64
	Weight     float64
	SourceType string
	EventTime  time.Time
	UpdatedAt  time.Time
}

// IngestionEvent is ephemeral crawl output: produced by connectors,
// consumed by the extraction pipeline. Not persisted except as a
// bounded recovery snapshot.
type IngestionEvent struct {
	SourceType string    `json:"source_type"`
	ScopeLabel string    `json:"scope_label"`
	SourceID   string    `json:"source_id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Path       string    `json:"path"`
	OccurredAt time.Time `json:"occurred_at"`
}

// IngestionAttempt is the recorded fingerprint of the last extraction
// for a source, keyed by (sourceType, sourceId).
type IngestionAttempt struct {
	SourceType string
	SourceID   string
	Path       string
	UpdatedAt  time.Time
	Outcome    Outcome
	RecordedAt time.Time
}

// LexicalResult is a single ranked full-text match.
type LexicalResult struct {
	DocumentID   string
	Score        float64
	MatchedTerms []string
}

// VectorResult is a single vector search hit (per chunk).
type VectorResult struct {
	ChunkID  string
	Distance float32 // cosine distance, 0 (identical) to 2 (opposite)
	Score    float32 // raw cosine similarity, clamped to [0, 1]
}

// LexicalIndex ranks documents by full-text match over title+body.
// The SQLite FTS5 backend is the default; Bleve is the alternative.
type LexicalIndex interface {
	Index(ctx context.Context, docs []*Document) error
	Search(ctx context.Context, query string, limit int) ([]*LexicalResult, error)
	Delete(ctx context.Context, docIDs []string) error
	Close() error
}

// VectorIndex provides nearest-neighbor search over chunk embeddings.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	Count() int
	Dimensions() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// DimensionMismatchError indicates an embedding with the wrong
// dimension count for the index.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (reindex with a matching embedder)", e.Expected, e.Got)
}

// QueueSnapshotCapacity bounds the crash-recovery ring: only the most
// recent 128 pending events are kept per snapshot.
const QueueSnapshotCapacity = 128

// DefaultQueueReclaimBytes is the snapshot storage threshold above
// which ReclaimQueueSnapshotStorageIfNeeded compacts destructively.
const DefaultQueueReclaimBytes = 4 * 1024 * 1024

// DocumentID derives the stable document id from source identity.
// Stable across re-ingestion so re-upserts never accumulate
// duplicates.
func DocumentID(sourceType, sourceID string) string {
	sum := sha256.Sum256([]byte(sourceType + ":" + sourceID))
	return hex.EncodeToString(sum[:])[:16]
}

// ChunkID derives a chunk id from its document and ordinal.
func ChunkID(documentID string, ordinal int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", documentID, ordinal)))
	return hex.EncodeToString(sum[:])[:16]
}
