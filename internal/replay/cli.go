package replay

import (
	"fmt"
	"io"
	"os"

	"github.com/phillpas/ktm/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0o600
)

// SetupLogging initialises the global logger, teeing to logFile when set.
func SetupLogging(logFile string) error {
	if logFile == "" {
		return logger.Init()
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Init(logger.WithOutput(io.MultiWriter(os.Stdout, file))); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// ShowHelp prints usage information for the replay tool.
func ShowHelp() {
	os.Stdout.WriteString(`KTM Replay Tool
===============

Replays a recorded movement log against a running prediction service, one
session per worker, and writes the resulting prediction trace.

Usage:
  go run ./cmd/replay [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -log string
        Movement log to replay (default "Log_2D.csv")
  -trace string
        Output trace CSV (default "trace.csv", empty disables it)
  -mode string
        Projection mode 1d or 2d (default: server setting)
  -workers int
        Number of concurrent sessions (default 1)
  -speed float
        Playback speed, 1 is real time (default 0, no delay)
  -hit-radius float
        Radius counted as a final hit (default 16)
  -timeout duration
        HTTP request timeout (default 30s)
  -logfile string
        Also write log output to this file
  -verbose
        Log every replayed path
  -help
        Show this help message

Examples:
  # Replay as fast as possible
  go run ./cmd/replay -log Log_2D.csv

  # Replay in real time with four concurrent sessions
  go run ./cmd/replay -speed 1 -workers 4
`)
}
