// Package client is the public Go API for talking to a running
// Lantern daemon over its Unix socket. It mirrors the daemon's RPC
// surface with plain exported types so external programs never import
// Lantern's internal packages.
package client

import (
	"context"
	"time"

	"github.com/lanternsearch/lantern/internal/daemon"
)

// DefaultTimeout bounds a single request round-trip when no timeout
// is configured.
const DefaultTimeout = 30 * time.Second

// Options configure a Client.
type Options struct {
	// SocketPath is the daemon's Unix socket. Empty uses the default
	// (~/.lantern/run/lantern.sock).
	SocketPath string

	// Timeout bounds each request. Zero uses DefaultTimeout.
	Timeout time.Duration
}

// Client talks to a running Lantern daemon. The zero value is not
// usable; construct one with New. A Client is safe for concurrent
// use.
type Client struct {
	inner *daemon.Client
}

// New creates a daemon client. It does not connect; each call dials
// the socket fresh.
func New(opts Options) *Client {
	cfg := daemon.DefaultConfig()
	if opts.SocketPath != "" {
		cfg.SocketPath = opts.SocketPath
	}
	if opts.Timeout > 0 {
		cfg.Timeout = opts.Timeout
	}
	return &Client{inner: daemon.NewClient(cfg)}
}

// Running reports whether a daemon is accepting connections on the
// socket.
func (c *Client) Running() bool {
	return c.inner.IsRunning()
}

// Ping checks that the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx)
}

// SuggestRequest parameterizes a suggestion query.
type SuggestRequest struct {
	// Query is the suggestion query (required).
	Query string

	// Limit caps the number of suggestions (0 = daemon default).
	Limit int

	// Typing marks an interactive as-you-type query where similarity
	// should dominate recency.
	Typing bool

	// Sources restricts results to the given source types.
	Sources []string
}

// Suggestion is one ranked suggest result.
type Suggestion struct {
	DocumentID string
	Title      string
	Path       string
	Reason     string
	Score      float64
	Snippet    string
	UpdatedAt  time.Time

	// Directory aggregation fields.
	IsDirectory bool
	MemberCount int
}

// SuggestResponse carries the ranked suggestions plus query timing.
type SuggestResponse struct {
	Suggestions []Suggestion
	QueryType   string
	Elapsed     time.Duration
}

// Suggest runs a suggestion query on the daemon.
func (c *Client) Suggest(ctx context.Context, req SuggestRequest) (*SuggestResponse, error) {
	resp, err := c.inner.Suggest(ctx, daemon.SuggestParams{
		Query:   req.Query,
		Limit:   req.Limit,
		Typing:  req.Typing,
		Sources: req.Sources,
	})
	if err != nil {
		return nil, err
	}

	out := &SuggestResponse{
		QueryType: string(resp.QueryType),
		Elapsed:   resp.Elapsed,
	}
	for _, s := range resp.Suggestions {
		out.Suggestions = append(out.Suggestions, Suggestion{
			DocumentID:  s.DocumentID,
			Title:       s.Title,
			Path:        s.Path,
			Reason:      string(s.Reason),
			Score:       s.Score,
			Snippet:     s.Snippet,
			UpdatedAt:   s.UpdatedAt,
			IsDirectory: s.IsDirectory,
			MemberCount: s.MemberCount,
		})
	}
	return out, nil
}

// Stats carries corpus-level index totals.
type Stats struct {
	TotalDocumentCount int
}

// Stats returns corpus-level index totals.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	result, err := c.inner.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{TotalDocumentCount: result.TotalDocumentCount}, nil
}

// SourceCounters tally per-source ingestion outcomes.
type SourceCounters struct {
	EventsProcessed int
	Succeeded       int
	Unsupported     int
	Failed          int
	Partial         int
	SkippedCurrent  int
	Deleted         int
}

// Status is a point-in-time view of the daemon.
type Status struct {
	PID              int
	Uptime           string
	Running          bool
	Paused           bool
	CurrentOperation string
	QueueDepth       int
	InFlightCount    int
	TotalDocuments   int
	Sources          map[string]SourceCounters
}

// Status returns the daemon's current state.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	result, err := c.inner.Status(ctx)
	if err != nil {
		return nil, err
	}

	status := &Status{
		PID:              result.PID,
		Uptime:           result.Uptime,
		Running:          result.Running,
		Paused:           result.Paused,
		CurrentOperation: result.CurrentOperation,
		QueueDepth:       result.QueueDepth,
		InFlightCount:    result.InFlightCount,
		TotalDocuments:   result.TotalDocuments,
		Sources:          make(map[string]SourceCounters, len(result.Sources)),
	}
	for sourceType, counters := range result.Sources {
		status.Sources[sourceType] = SourceCounters(counters)
	}
	return status, nil
}

// BackfillCheckpoint reports where a backfill pass stopped.
type BackfillCheckpoint struct {
	Status         string
	ItemsProcessed int
	EstimatedTotal int

	// ResumeToken is non-empty when the pass stopped early; passing
	// it back (implicitly, via a later Backfill call) continues from
	// that position.
	ResumeToken string
}

// Backfill runs a backfill pass on the daemon. Limit caps the number
// of items processed this pass (0 = all).
func (c *Client) Backfill(ctx context.Context, limit int) (*BackfillCheckpoint, error) {
	result, err := c.inner.Backfill(ctx, daemon.BackfillParams{Limit: limit})
	if err != nil {
		return nil, err
	}
	return &BackfillCheckpoint{
		Status:         result.Status,
		ItemsProcessed: result.ItemsProcessed,
		EstimatedTotal: result.EstimatedTotal,
		ResumeToken:    result.ResumeToken,
	}, nil
}

// Bench times each query through the daemon's suggest path and
// returns the latency in milliseconds per query.
func (c *Client) Bench(ctx context.Context, queries []string) (map[string]float64, error) {
	return c.inner.Bench(ctx, daemon.BenchParams{Queries: queries})
}

// Purge removes every indexed document whose file extension matches
// one of the given extensions (without dots). It returns the number
// of documents removed.
func (c *Client) Purge(ctx context.Context, extensions []string) (int, error) {
	result, err := c.inner.Purge(ctx, daemon.PurgeParams{Extensions: extensions})
	if err != nil {
		return 0, err
	}
	return result.Removed, nil
}

// Pause suspends background indexing until Resume is called.
func (c *Client) Pause(ctx context.Context) error {
	return c.inner.Pause(ctx)
}

// Resume restarts background indexing after a Pause.
func (c *Client) Resume(ctx context.Context) error {
	return c.inner.Resume(ctx)
}
