// Package search implements the hybrid suggest engine: lexical and
// vector retrieval legs run in parallel, graph edges contribute a
// bounded boost, and a deterministic local reranker merges the signals
// into one stable order.
package search

import (
	"context"
	"time"

	"github.com/lanternsearch/lantern/internal/store"
	"github.com/lanternsearch/lantern/internal/telemetry"
)

// Reason explains why a suggestion surfaced.
type Reason string

const (
	ReasonLexical   Reason = "lexical"
	ReasonSemantic  Reason = "semantic"
	ReasonGraph     Reason = "graph"
	ReasonDirectory Reason = "directory"
)

// QueryType re-exports the telemetry classification for callers that
// only import search.
type QueryType = telemetry.QueryType

const (
	QueryTypeLexical  = telemetry.QueryTypeLexical
	QueryTypeSemantic = telemetry.QueryTypeSemantic
	QueryTypeMixed    = telemetry.QueryTypeMixed
)

// Request is one suggest query.
type Request struct {
	Query string

	// SourceFilters restricts results to the given source types
	// (empty = all).
	SourceFilters []string

	// Limit caps the number of suggestions (0 = default).
	Limit int

	// TypingMode marks an interactive as-you-type query: similarity
	// dominates recency and latency matters more than depth.
	TypingMode bool

	// IncludeColdPartitionFallback allows cold-partition documents to
	// fill out sparse hot results.
	IncludeColdPartitionFallback bool
}

// Suggestion is one ranked suggest result.
type Suggestion struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Path       string `json:"path"`
	Reason     Reason `json:"reason"`

	// Score is the final merged rank score.
	Score float64 `json:"score"`

	// Per-signal contributions, exposed for debugging and stats.
	LexicalScore     float64 `json:"lexical_score,omitempty"`
	VectorSimilarity float64 `json:"vector_similarity,omitempty"`
	GraphBoost       float64 `json:"graph_boost,omitempty"`

	Snippet   string    `json:"snippet,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`

	// Directory aggregation fields.
	IsDirectory bool `json:"is_directory,omitempty"`
	MemberCount int  `json:"member_count,omitempty"`
}

// Response carries the ranked suggestions plus query telemetry.
type Response struct {
	Suggestions []*Suggestion `json:"suggestions"`
	QueryType   QueryType     `json:"query_type"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Tuning holds the empirically calibrated ranking parameters. The
// values are validated against relative-ordering fixtures, not derived
// from a formula; change them only together with those tests.
type Tuning struct {
	// MinVectorSimilarity is the cosine floor below which a candidate
	// surfaced only by the vector leg is dropped entirely.
	MinVectorSimilarity float64

	// GraphBoostCap bounds the total graph contribution so edge count
	// alone can never overtake a strong direct match.
	GraphBoostCap float64

	// GraphBoostK is the half-saturation constant of the boost curve:
	// a weighted degree of k earns half the cap.
	GraphBoostK float64

	// LexicalWeight scales the normalized full-text score.
	LexicalWeight float64

	// VectorWeight scales cosine similarity.
	VectorWeight float64

	// RecencyWeight scales the recency decay in normal mode.
	RecencyWeight float64

	// TypingRecencyWeight replaces RecencyWeight in typing mode, where
	// similarity must dominate freshness.
	TypingRecencyWeight float64

	// RecencyHalfLife is the age at which the recency signal halves.
	RecencyHalfLife time.Duration

	// DirectoryMinMembers is the minimum number of matching documents
	// under one parent before the directory itself is suggested.
	DirectoryMinMembers int

	DefaultLimit int
	MaxLimit     int

	// CandidateMultiplier widens the per-leg fetch relative to the
	// requested limit so reranking has room to reorder.
	CandidateMultiplier int
}

// DefaultTuning returns the calibrated parameters.
func DefaultTuning() Tuning {
	return Tuning{
		MinVectorSimilarity: 0.30,
		GraphBoostCap:       0.15,
		GraphBoostK:         4.0,
		LexicalWeight:       0.65,
		VectorWeight:        1.0,
		RecencyWeight:       0.35,
		TypingRecencyWeight: 0.15,
		RecencyHalfLife:     30 * 24 * time.Hour,
		DirectoryMinMembers: 2,
		DefaultLimit:        10,
		MaxLimit:            50,
		CandidateMultiplier: 3,
	}
}

// Corpus is the document-side store surface the engine reads.
// *store.Store satisfies it.
type Corpus interface {
	LexicalSearch(ctx context.Context, queryText string, sourceFilters []string, partitionFilter store.Partition, limit int) ([]*store.LexicalResult, error)
	EdgesForNodes(ctx context.Context, nodeIDs []string) ([]*store.GraphEdge, error)
	FetchDocument(ctx context.Context, id string) (*store.Document, error)
	ChunksByID(ctx context.Context, ids []string) ([]*store.Chunk, error)
}

// Classifier labels a query lexical/semantic/mixed. Used for telemetry
// and the typing-mode lexical lean.
type Classifier interface {
	Classify(ctx context.Context, query string) (QueryType, error)
}
