package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/lanternsearch/lantern/internal/search"
)

// Client talks to a running daemon over its Unix socket. One
// connection per call; the daemon answers a single request per
// connection.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient creates a daemon client from the IPC config.
func NewClient(cfg Config) *Client {
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    cfg.Timeout,
	}
}

// IsRunning checks whether the daemon is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ping checks that the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	var result PingResult
	if err := c.call(ctx, MethodPing, nil, &result); err != nil {
		return err
	}
	if !result.Pong {
		return fmt.Errorf("daemon did not pong")
	}
	return nil
}

// Suggest runs a suggestion query on the daemon.
func (c *Client) Suggest(ctx context.Context, params SuggestParams) (*search.Response, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	var result search.Response
	if err := c.call(ctx, MethodSuggest, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Stats retrieves corpus-level index totals.
func (c *Client) Stats(ctx context.Context) (*StatsResult, error) {
	var result StatsResult
	if err := c.call(ctx, MethodStats, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status retrieves the service state snapshot.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var result StatusResult
	if err := c.call(ctx, MethodStatus, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Backfill triggers a backfill pass and returns its checkpoint.
func (c *Client) Backfill(ctx context.Context, params BackfillParams) (*BackfillResult, error) {
	var result BackfillResult
	if err := c.call(ctx, MethodBackfill, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Bench runs the latency benchmark on the daemon.
func (c *Client) Bench(ctx context.Context, params BenchParams) (map[string]float64, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	var result map[string]float64
	if err := c.call(ctx, MethodBench, params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Purge removes documents for the given extensions.
func (c *Client) Purge(ctx context.Context, params PurgeParams) (*PurgeResult, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	var result PurgeResult
	if err := c.call(ctx, MethodPurge, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Pause stops the daemon from initiating new ingestion work.
func (c *Client) Pause(ctx context.Context) error {
	var result PauseResult
	return c.call(ctx, MethodPause, nil, &result)
}

// Resume restarts ingestion and reconciles missed changes.
func (c *Client) Resume(ctx context.Context) error {
	var result PauseResult
	return c.call(ctx, MethodResume, nil, &result)
}

// call performs one request/response exchange and decodes the result
// into out.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID(),
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("send %s request: %w", method, err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("receive %s response: %w", method, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s failed: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
	}
	if out == nil {
		return nil
	}

	// Result arrives as generic JSON; round-trip into the typed value.
	data, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("marshal %s result: %w", method, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// nextID generates a unique request ID.
func (c *Client) nextID() string {
	return fmt.Sprintf("req-%d", c.requestID.Add(1))
}
