// Package mcp exposes the retrieval service to AI clients over the
// Model Context Protocol: five tools (suggest, index_stats,
// trigger_backfill, state_snapshot, benchmark) on a stdio transport.
package mcp

import (
	"context"
	"errors"
	"fmt"

	lanterrors "github.com/lanternsearch/lantern/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeIndexNotFound indicates no index exists yet.
	ErrCodeIndexNotFound = -32001

	// ErrCodeEmbeddingFailed indicates embedding generation failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was cancelled.
	ErrCodeTimeout = -32003

	// ErrCodeFileNotFound indicates a file no longer exists on disk.
	ErrCodeFileNotFound = -32004

	// ErrCodeFileTooLarge indicates a file exceeded the size policy.
	ErrCodeFileTooLarge = -32005

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use.
var (
	// ErrIndexNotFound indicates no index exists yet.
	ErrIndexNotFound = errors.New("index not found")

	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidParams indicates invalid parameters were provided.
	ErrInvalidParams = errors.New("invalid parameters")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var le *lanterrors.LanternError
	if errors.As(err, &le) {
		return mapLanternError(le)
	}

	switch {
	case errors.Is(err, ErrIndexNotFound):
		return &MCPError{
			Code:    ErrCodeIndexNotFound,
			Message: "Index not found. Run 'lantern backfill' first.",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{
			Code:    ErrCodeMethodNotFound,
			Message: "Tool not found.",
		}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: "Invalid parameters.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: "Internal server error.",
		}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a
// custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// mapLanternError converts a LanternError by category, carrying the
// actionable suggestion into the client-visible message.
func mapLanternError(le *lanterrors.LanternError) *MCPError {
	message := le.Message
	if le.Suggestion != "" {
		message = fmt.Sprintf("%s %s", le.Message, le.Suggestion)
	}

	switch le.Category {
	case lanterrors.CategoryIO:
		switch le.Code {
		case lanterrors.ErrCodeFileNotFound:
			return &MCPError{Code: ErrCodeFileNotFound, Message: message}
		case lanterrors.ErrCodeFileTooLarge:
			return &MCPError{Code: ErrCodeFileTooLarge, Message: message}
		case lanterrors.ErrCodeCorruptIndex:
			return &MCPError{Code: ErrCodeIndexNotFound, Message: message}
		default:
			return &MCPError{Code: ErrCodeInternalError, Message: message}
		}
	case lanterrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	case lanterrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
