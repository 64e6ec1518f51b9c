package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/lanternsearch/lantern/internal/connector"
	"github.com/lanternsearch/lantern/internal/retrieval"
	"github.com/lanternsearch/lantern/internal/search"
)

// Handler is the retrieval surface the server exposes over the
// socket. *retrieval.Service satisfies it.
type Handler interface {
	Suggest(ctx context.Context, req search.Request) (*search.Response, error)
	IndexStats(ctx context.Context) (retrieval.IndexStats, error)
	StateSnapshot(ctx context.Context) retrieval.StateSnapshot
	TriggerBackfill(ctx context.Context, limit int) (connector.BackfillCheckpoint, error)
	RunBenchmarkSample(ctx context.Context, queries []string) (map[string]float64, error)
	PurgeExtensions(ctx context.Context, extensions []string) (int, error)
	PauseForSystemSleep()
	ResumeAfterSystemWake(ctx context.Context)
}

// StatusResult is the status method's payload: the service snapshot
// plus process identity.
type StatusResult struct {
	PID    int    `json:"pid"`
	Uptime string `json:"uptime"`
	retrieval.StateSnapshot
}

// Server listens on a Unix socket and dispatches RPC requests to the
// retrieval service.
type Server struct {
	socketPath string
	listener   net.Listener
	handler    Handler
	started    time.Time

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server for the given socket path and handler.
func NewServer(socketPath string, handler Handler) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	return &Server{
		socketPath: socketPath,
		handler:    handler,
	}, nil
}

// ListenAndServe starts the server and blocks until the context is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// Clean up any stale socket from a previous run.
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	s.listener = listener
	s.started = time.Now()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	slog.Info("daemon_listening", slog.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			slog.Error("accept_error", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.wg.Wait()
	return ctx.Err()
}

// handleConnection processes a single request/response exchange.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Backfill and bench can run long; the deadline covers stalled
	// clients, not slow work.
	if err := conn.SetDeadline(time.Now().Add(10 * time.Minute)); err != nil {
		slog.Warn("set_deadline_failed", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	resp := s.handleRequest(ctx, req)
	_ = encoder.Encode(resp)
}

// handleRequest dispatches a request by method name.
func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})

	case MethodStatus:
		snap := s.handler.StateSnapshot(ctx)
		return NewSuccessResponse(req.ID, StatusResult{
			PID:           os.Getpid(),
			Uptime:        time.Since(s.started).Round(time.Second).String(),
			StateSnapshot: snap,
		})

	case MethodStats:
		stats, err := s.handler.IndexStats(ctx)
		if err != nil {
			return NewErrorResponse(req.ID, ErrCodeInternalError, err.Error())
		}
		return NewSuccessResponse(req.ID, StatsResult{TotalDocumentCount: stats.TotalDocumentCount})

	case MethodSuggest:
		return s.handleSuggest(ctx, req)

	case MethodBackfill:
		return s.handleBackfill(ctx, req)

	case MethodBench:
		return s.handleBench(ctx, req)

	case MethodPurge:
		return s.handlePurge(ctx, req)

	case MethodPause:
		s.handler.PauseForSystemSleep()
		return NewSuccessResponse(req.ID, PauseResult{Paused: true})

	case MethodResume:
		s.handler.ResumeAfterSystemWake(ctx)
		return NewSuccessResponse(req.ID, PauseResult{Paused: false})

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) handleSuggest(ctx context.Context, req Request) Response {
	var params SuggestParams
	if resp, ok := decodeParams(req, &params); !ok {
		return resp
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	result, err := s.handler.Suggest(ctx, search.Request{
		Query:         params.Query,
		Limit:         params.Limit,
		TypingMode:    params.Typing,
		SourceFilters: params.Sources,
	})
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeSuggestFailed, err.Error())
	}
	return NewSuccessResponse(req.ID, result)
}

func (s *Server) handleBackfill(ctx context.Context, req Request) Response {
	var params BackfillParams
	if resp, ok := decodeParams(req, &params); !ok {
		return resp
	}

	checkpoint, err := s.handler.TriggerBackfill(ctx, params.Limit)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeBackfillFailed, err.Error())
	}
	return NewSuccessResponse(req.ID, BackfillResult{
		Status:         checkpoint.Status,
		ItemsProcessed: checkpoint.ItemsProcessed,
		EstimatedTotal: checkpoint.EstimatedTotal,
		ResumeToken:    checkpoint.ResumeToken,
	})
}

func (s *Server) handleBench(ctx context.Context, req Request) Response {
	var params BenchParams
	if resp, ok := decodeParams(req, &params); !ok {
		return resp
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	report, err := s.handler.RunBenchmarkSample(ctx, params.Queries)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeBenchFailed, err.Error())
	}
	return NewSuccessResponse(req.ID, report)
}

func (s *Server) handlePurge(ctx context.Context, req Request) Response {
	var params PurgeParams
	if resp, ok := decodeParams(req, &params); !ok {
		return resp
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	removed, err := s.handler.PurgeExtensions(ctx, params.Extensions)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodePurgeFailed, err.Error())
	}
	return NewSuccessResponse(req.ID, PurgeResult{Removed: removed})
}

// decodeParams round-trips req.Params through JSON into dst. On
// failure the returned response carries the error and ok is false.
func decodeParams(req Request, dst any) (Response, bool) {
	data, err := json.Marshal(req.Params)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to encode params"), false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params"), false
	}
	return Response{}, true
}

// Close stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
