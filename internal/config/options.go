// Package config provides configuration types for the proc-macro client.
package config

import (
	"log/slog"
	"time"
)

// Options configures the proc-macro client and its supervisor.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// ServerPath is the explicit path to the proc-macro server binary.
	// If empty, the server is searched in PATH and the Rust toolchain.
	ServerPath string

	// Args are passed to the server on its first start only. A restarted
	// server is invoked with its path alone.
	Args []string

	// ResponseTimeout bounds how long the supervisor waits for a reply
	// before treating the server as hung. Zero waits forever.
	ResponseTimeout time.Duration

	// Metrics receives call and restart observations.
	// If nil, nothing is recorded.
	Metrics Metrics
}
