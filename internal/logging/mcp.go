package logging

import (
	"log/slog"
)

// SetupMCPMode initializes logging for MCP server mode.
// The MCP protocol requires stdout to be used exclusively for JSON-RPC, so
// logs go only to file, never to stdout/stderr. Any stray writes to the
// standard streams before or during MCP operation corrupt the protocol
// stream and break the client connection.
func SetupMCPMode() (func(), error) {
	cfg := Config{
		Level:         "debug", // Always debug in MCP mode for full diagnostics
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)

	slog.Info("mcp_logging_initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level))

	return cleanup, nil
}

// SetupMCPModeWithLevel initializes MCP-safe logging with a specific level.
func SetupMCPModeWithLevel(level string) (func(), error) {
	cfg := Config{
		Level:         level,
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	return cleanup, nil
}
