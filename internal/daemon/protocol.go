package daemon

import "fmt"

// JSON-RPC 2.0 method names.
const (
	MethodSuggest  = "suggest"
	MethodStats    = "stats"
	MethodStatus   = "status"
	MethodBackfill = "backfill"
	MethodBench    = "bench"
	MethodPurge    = "purge"
	MethodPause    = "pause"
	MethodResume   = "resume"
	MethodPing     = "ping"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Daemon-specific error codes.
const (
	ErrCodeSuggestFailed  = -32001
	ErrCodeBackfillFailed = -32002
	ErrCodeBenchFailed    = -32003
	ErrCodePurgeFailed    = -32004
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      string `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	return Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// SuggestParams are the parameters for the suggest method.
type SuggestParams struct {
	// Query is the suggestion query (required).
	Query string `json:"query"`

	// Limit caps the number of suggestions (0 = engine default).
	Limit int `json:"limit,omitempty"`

	// Typing marks an interactive as-you-type query where similarity
	// should dominate recency.
	Typing bool `json:"typing,omitempty"`

	// Sources restricts results to the given source types.
	Sources []string `json:"sources,omitempty"`
}

// Validate checks required fields and corrects out-of-range values.
func (p *SuggestParams) Validate() error {
	if p.Query == "" {
		return fmt.Errorf("query is required")
	}
	if p.Limit < 0 {
		p.Limit = 0
	}
	return nil
}

// BackfillParams are the parameters for the backfill method.
type BackfillParams struct {
	// Limit caps the number of items processed this pass (0 = all).
	Limit int `json:"limit,omitempty"`
}

// BackfillResult reports the checkpoint reached by a backfill pass.
type BackfillResult struct {
	Status         string `json:"status"`
	ItemsProcessed int    `json:"items_processed"`
	EstimatedTotal int    `json:"estimated_total"`
	ResumeToken    string `json:"resume_token,omitempty"`
}

// BenchParams are the parameters for the bench method.
type BenchParams struct {
	// Queries are the sample queries to time (required, non-empty).
	Queries []string `json:"queries"`
}

// Validate checks that at least one query is present.
func (p *BenchParams) Validate() error {
	if len(p.Queries) == 0 {
		return fmt.Errorf("at least one query is required")
	}
	return nil
}

// PurgeParams are the parameters for the purge method.
type PurgeParams struct {
	// Extensions name the file extensions to purge, without dots
	// (required, non-empty).
	Extensions []string `json:"extensions"`
}

// Validate checks that at least one extension is present.
func (p *PurgeParams) Validate() error {
	if len(p.Extensions) == 0 {
		return fmt.Errorf("at least one extension is required")
	}
	return nil
}

// PurgeResult reports how many documents a purge removed.
type PurgeResult struct {
	Removed int `json:"removed"`
}

// PauseResult acknowledges a pause or resume request.
type PauseResult struct {
	Paused bool `json:"paused"`
}

// StatsResult carries corpus-level index totals.
type StatsResult struct {
	TotalDocumentCount int `json:"total_document_count"`
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}
