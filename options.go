package procmacro

import (
	"log/slog"
	"time"

	"github.com/wagiedev/proc-macro-client-go/internal/config"
)

// Option configures Options using the functional options pattern.
type Option func(*Options)

// applyOptions applies functional options to a fresh Options struct.
func applyOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// NopLogger is the logger a Client uses when WithLogger is not given. Every
// record is dropped.
func NopLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// WithServerPath sets the explicit path to the proc-macro server binary.
// If not set, the server is searched in PATH, the Rust toolchain and
// ~/.cargo/bin.
func WithServerPath(path string) Option {
	return func(o *Options) {
		o.ServerPath = path
	}
}

// WithArgs sets the arguments of the first server invocation. Restarted
// servers are invoked without arguments.
func WithArgs(args ...string) Option {
	return func(o *Options) {
		o.Args = args
	}
}

// WithResponseTimeout declares the server hung when it stays silent for d
// during a call. The server is then killed and restarted, and the call fails
// like any call interrupted by a crash. Zero (the default) waits forever.
func WithResponseTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ResponseTimeout = d
	}
}

// WithMetrics sets the receiver of call and restart observations.
// See observability/prometheus for a Prometheus exporter.
func WithMetrics(m Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// Metrics receives observations from the supervisor.
type Metrics = config.Metrics
