package mcp

// SuggestInput defines the input schema for the suggest tool.
type SuggestInput struct {
	Query   string   `json:"query" jsonschema:"the suggestion query to execute"`
	Limit   int      `json:"limit,omitempty" jsonschema:"maximum number of suggestions, default 10"`
	Typing  bool     `json:"typing,omitempty" jsonschema:"true for as-you-type queries where similarity should outweigh recency"`
	Sources []string `json:"sources,omitempty" jsonschema:"restrict results to these source types"`
}

// SuggestOutput defines the output schema for the suggest tool.
type SuggestOutput struct {
	Suggestions []SuggestionOutput `json:"suggestions" jsonschema:"ranked document suggestions"`
}

// SuggestionOutput is a single ranked suggestion with its scoring
// signals, so clients can explain WHY a document surfaced.
type SuggestionOutput struct {
	DocumentID       string  `json:"document_id" jsonschema:"stable document identifier"`
	Title            string  `json:"title" jsonschema:"document title"`
	Path             string  `json:"path,omitempty" jsonschema:"filesystem path of the document"`
	Score            float64 `json:"score" jsonschema:"final merged rank score"`
	Reason           string  `json:"reason,omitempty" jsonschema:"which signal surfaced this result"`
	LexicalScore     float64 `json:"lexical_score,omitempty" jsonschema:"normalized full-text contribution"`
	VectorSimilarity float64 `json:"vector_similarity,omitempty" jsonschema:"cosine similarity contribution"`
	GraphBoost       float64 `json:"graph_boost,omitempty" jsonschema:"knowledge-graph contribution"`
	Snippet          string  `json:"snippet,omitempty" jsonschema:"matched content snippet"`
	IsDirectory      bool    `json:"is_directory,omitempty" jsonschema:"true when this entry aggregates a directory"`
}

// IndexStatsInput defines the input schema for the index_stats tool
// (no parameters).
type IndexStatsInput struct{}

// IndexStatsOutput defines the output schema for the index_stats tool.
type IndexStatsOutput struct {
	TotalDocumentCount int           `json:"total_document_count"`
	Embeddings         EmbeddingInfo `json:"embeddings"`
}

// EmbeddingInfo reports the active embedding runtime so clients can
// adjust their query strategy when only the static fallback is
// available.
type EmbeddingInfo struct {
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	Dimensions      int    `json:"dimensions"`
	Status          string `json:"status"`
	SemanticQuality string `json:"semantic_quality"`
}

// TriggerBackfillInput defines the input schema for the
// trigger_backfill tool.
type TriggerBackfillInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum items to process this pass, 0 for all"`
}

// TriggerBackfillOutput defines the output schema for the
// trigger_backfill tool.
type TriggerBackfillOutput struct {
	Status         string `json:"status"`
	ItemsProcessed int    `json:"items_processed"`
	EstimatedTotal int    `json:"estimated_total"`
	ResumeToken    string `json:"resume_token,omitempty"`
}

// StateSnapshotInput defines the input schema for the state_snapshot
// tool (no parameters).
type StateSnapshotInput struct{}

// BenchmarkInput defines the input schema for the benchmark tool.
type BenchmarkInput struct {
	Queries []string `json:"queries" jsonschema:"sample queries to time against the live index"`
}
