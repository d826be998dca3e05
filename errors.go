package procmacro

import "github.com/wagiedev/proc-macro-client-go/internal/errors"

// Re-export error types from internal package

// ServerNotFoundError indicates the proc-macro server binary was not found.
type ServerNotFoundError = errors.ServerNotFoundError

// StartupError indicates the server process could not be spawned.
type StartupError = errors.StartupError

// ExpansionError carries an error response of the server.
type ExpansionError = errors.ExpansionError

// UnexpectedResponseError indicates the server answered with the wrong
// response kind.
type UnexpectedResponseError = errors.UnexpectedResponseError

// ProcMacroError is the base interface for all client errors.
type ProcMacroError = errors.ProcMacroError

// Re-export sentinel errors from internal package.
var (
	// ErrNoSender indicates a call through an unconnected client.
	ErrNoSender = errors.ErrNoSender

	// ErrProcessClosed indicates the client was closed or its server could
	// not be restarted.
	ErrProcessClosed = errors.ErrProcessClosed

	// ErrThreadClosed indicates the supervisor died while serving a call.
	ErrThreadClosed = errors.ErrThreadClosed
)
