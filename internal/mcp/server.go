package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lanternsearch/lantern/internal/connector"
	"github.com/lanternsearch/lantern/internal/embed"
	"github.com/lanternsearch/lantern/internal/retrieval"
	"github.com/lanternsearch/lantern/internal/search"
	"github.com/lanternsearch/lantern/pkg/version"
)

// Service is the slice of the retrieval service the MCP surface needs.
// *retrieval.Service satisfies it.
type Service interface {
	Suggest(ctx context.Context, req search.Request) (*search.Response, error)
	IndexStats(ctx context.Context) (retrieval.IndexStats, error)
	TriggerBackfill(ctx context.Context, limit int) (connector.BackfillCheckpoint, error)
	StateSnapshot(ctx context.Context) retrieval.StateSnapshot
	RunBenchmarkSample(ctx context.Context, queries []string) (map[string]float64, error)
}

// Server bridges AI clients (Claude Code, Cursor) with the local
// retrieval service over the Model Context Protocol.
type Server struct {
	mcp      *mcp.Server
	service  Service
	embedder embed.Embedder // may be nil, reported as unavailable
	logger   *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates an MCP server over the retrieval service. The
// embedder is used for capability signaling so clients can adjust
// their query strategy when only the static fallback is active.
func NewServer(service Service, embedder embed.Embedder) (*Server, error) {
	if service == nil {
		return nil, errors.New("retrieval service is required")
	}

	s := &Server{
		service:  service,
		embedder: embedder,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "Lantern",
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "Lantern", version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "suggest",
			Description: "Find local documents by meaning, keywords, and relatedness. Returns ranked suggestions with the signals that surfaced each one, so you can explain WHY a document matched.",
		},
		{
			Name:        "index_stats",
			Description: "Report corpus totals and which embedder is active. Use before suggesting to know whether semantic similarity is high quality or the static fallback.",
		},
		{
			Name:        "trigger_backfill",
			Description: "Run one backfill pass over the configured roots, resuming from the last checkpoint. Returns progress and a resume token.",
		},
		{
			Name:        "state_snapshot",
			Description: "Inspect the retrieval service: queue depth, in-flight work, per-source counters, and crawl progress.",
		},
		{
			Name:        "benchmark",
			Description: "Time a set of sample queries against the live index and report each query's latency.",
		},
	}
}

// CallTool invokes a tool by name with raw arguments and returns
// human-readable output. Used by the doctor command and tests; the SDK
// transport goes through the typed handlers instead.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "suggest":
		return s.handleSuggestTool(ctx, args)
	case "index_stats":
		out, err := s.buildIndexStats(ctx)
		if err != nil {
			return "", MapError(err)
		}
		return fmt.Sprintf("Documents: %d. Embedder: %s (%s, %s quality).",
			out.TotalDocumentCount, out.Embeddings.Provider,
			out.Embeddings.Status, out.Embeddings.SemanticQuality), nil
	case "trigger_backfill":
		limit := 0
		if l, ok := args["limit"].(float64); ok {
			limit = int(l)
		}
		cp, err := s.service.TriggerBackfill(ctx, limit)
		if err != nil {
			return "", MapError(err)
		}
		return fmt.Sprintf("Backfill %s: %d/%d items.", cp.Status, cp.ItemsProcessed, cp.EstimatedTotal), nil
	case "state_snapshot":
		return FormatStateSnapshot(s.service.StateSnapshot(ctx)), nil
	case "benchmark":
		report, err := s.service.RunBenchmarkSample(ctx, stringSlice(args["queries"]))
		if err != nil {
			return "", MapError(err)
		}
		return FormatBenchReport(report), nil
	default:
		return "", NewMethodNotFoundError(name)
	}
}

// handleSuggestTool serves raw-argument suggest calls with markdown
// output.
func (s *Server) handleSuggestTool(ctx context.Context, args map[string]any) (string, error) {
	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return "", NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	limit := clampLimit(0, 10, 1, 50)
	if l, ok := args["limit"].(float64); ok {
		limit = clampLimit(int(l), 10, 1, 50)
	}

	req := search.Request{
		Query:         query,
		Limit:         limit,
		SourceFilters: stringSlice(args["sources"]),
	}
	if typing, ok := args["typing"].(bool); ok {
		req.TypingMode = typing
	}

	resp, err := s.service.Suggest(ctx, req)
	if err != nil {
		return "", MapError(err)
	}
	return FormatSuggestions(query, resp.Suggestions), nil
}

func (s *Server) registerTools() {
	for _, tool := range s.ListTools() {
		switch tool.Name {
		case "suggest":
			mcp.AddTool(s.mcp, &mcp.Tool{Name: tool.Name, Description: tool.Description}, s.mcpSuggestHandler)
		case "index_stats":
			mcp.AddTool(s.mcp, &mcp.Tool{Name: tool.Name, Description: tool.Description}, s.mcpIndexStatsHandler)
		case "trigger_backfill":
			mcp.AddTool(s.mcp, &mcp.Tool{Name: tool.Name, Description: tool.Description}, s.mcpTriggerBackfillHandler)
		case "state_snapshot":
			mcp.AddTool(s.mcp, &mcp.Tool{Name: tool.Name, Description: tool.Description}, s.mcpStateSnapshotHandler)
		case "benchmark":
			mcp.AddTool(s.mcp, &mcp.Tool{Name: tool.Name, Description: tool.Description}, s.mcpBenchmarkHandler)
		}
		s.logger.Debug("registered tool", slog.String("name", tool.Name))
	}
	s.logger.Info("mcp tools registered", slog.Int("count", len(s.ListTools())))
}

// mcpSuggestHandler is the MCP SDK handler for the suggest tool.
func (s *Server) mcpSuggestHandler(ctx context.Context, _ *mcp.CallToolRequest, input SuggestInput) (
	*mcp.CallToolResult,
	SuggestOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SuggestOutput{}, NewInvalidParamsError("query parameter is required")
	}

	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("suggest started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.Int("limit", input.Limit))

	req := search.Request{
		Query:         input.Query,
		Limit:         clampLimit(input.Limit, 10, 1, 50),
		TypingMode:    input.Typing,
		SourceFilters: input.Sources,
	}

	resp, err := s.service.Suggest(ctx, req)
	if err != nil {
		s.logger.Error("suggest failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, SuggestOutput{}, MapError(err)
	}

	output := SuggestOutput{
		Suggestions: make([]SuggestionOutput, 0, len(resp.Suggestions)),
	}
	for _, sg := range resp.Suggestions {
		if sg != nil {
			output.Suggestions = append(output.Suggestions, ToSuggestionOutput(sg))
		}
	}

	s.logger.Info("suggest completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(output.Suggestions)))
	return nil, output, nil
}

// mcpIndexStatsHandler is the MCP SDK handler for the index_stats tool.
func (s *Server) mcpIndexStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatsInput) (
	*mcp.CallToolResult,
	*IndexStatsOutput,
	error,
) {
	output, err := s.buildIndexStats(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, output, nil
}

// buildIndexStats combines corpus totals with embedder capability info.
func (s *Server) buildIndexStats(ctx context.Context) (*IndexStatsOutput, error) {
	stats, err := s.service.IndexStats(ctx)
	if err != nil {
		return nil, err
	}

	info := EmbeddingInfo{
		Provider:        "none",
		Model:           "none",
		Status:          "unavailable",
		SemanticQuality: "none",
	}
	if s.embedder != nil {
		info.Model = s.embedder.ModelName()
		info.Dimensions = s.embedder.Dimensions()
		if info.Model == "static" {
			info.Provider = "static"
			info.SemanticQuality = "low"
		} else {
			info.Provider = "ollama"
			info.SemanticQuality = "high"
		}
		if s.embedder.Available(ctx) {
			info.Status = "ready"
		} else {
			info.Status = "unavailable"
		}
	}

	return &IndexStatsOutput{
		TotalDocumentCount: stats.TotalDocumentCount,
		Embeddings:         info,
	}, nil
}

// mcpTriggerBackfillHandler is the MCP SDK handler for the
// trigger_backfill tool.
func (s *Server) mcpTriggerBackfillHandler(ctx context.Context, _ *mcp.CallToolRequest, input TriggerBackfillInput) (
	*mcp.CallToolResult,
	TriggerBackfillOutput,
	error,
) {
	if input.Limit < 0 {
		return nil, TriggerBackfillOutput{}, NewInvalidParamsError("limit must not be negative")
	}

	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("trigger_backfill started",
		slog.String("request_id", requestID),
		slog.Int("limit", input.Limit))

	checkpoint, err := s.service.TriggerBackfill(ctx, input.Limit)
	if err != nil {
		s.logger.Error("trigger_backfill failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, TriggerBackfillOutput{}, MapError(err)
	}

	s.logger.Info("trigger_backfill completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("items_processed", checkpoint.ItemsProcessed))
	return nil, TriggerBackfillOutput{
		Status:         checkpoint.Status,
		ItemsProcessed: checkpoint.ItemsProcessed,
		EstimatedTotal: checkpoint.EstimatedTotal,
		ResumeToken:    checkpoint.ResumeToken,
	}, nil
}

// mcpStateSnapshotHandler is the MCP SDK handler for the state_snapshot
// tool.
func (s *Server) mcpStateSnapshotHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StateSnapshotInput) (
	*mcp.CallToolResult,
	retrieval.StateSnapshot,
	error,
) {
	return nil, s.service.StateSnapshot(ctx), nil
}

// mcpBenchmarkHandler is the MCP SDK handler for the benchmark tool.
func (s *Server) mcpBenchmarkHandler(ctx context.Context, _ *mcp.CallToolRequest, input BenchmarkInput) (
	*mcp.CallToolResult,
	map[string]float64,
	error,
) {
	if len(input.Queries) == 0 {
		return nil, nil, NewInvalidParamsError("at least one query is required")
	}

	report, err := s.service.RunBenchmarkSample(ctx, input.Queries)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, report, nil
}

// Serve runs the server on stdio until the context is canceled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting mcp server", slog.String("transport", "stdio"))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp server stopped")
	return nil
}

// stringSlice coerces a decoded JSON array into []string.
func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if str, ok := item.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

// generateRequestID creates a short unique request ID for log
// correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
