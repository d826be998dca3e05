package errors

import (
	"errors"
	"fmt"
)

// ProcMacroError is the base interface for all client errors.
type ProcMacroError interface {
	error
	IsProcMacroError() bool
}

// Compile-time verification that all error types implement ProcMacroError.
var (
	_ ProcMacroError = (*ServerNotFoundError)(nil)
	_ ProcMacroError = (*StartupError)(nil)
	_ ProcMacroError = (*ConnectionError)(nil)
	_ ProcMacroError = (*ExpansionError)(nil)
	_ ProcMacroError = (*UnexpectedResponseError)(nil)
	_ ProcMacroError = (*DecodeError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrNoSender indicates the broker was never connected to a supervisor.
	ErrNoSender = errors.New("no sender is found")

	// ErrProcessClosed indicates the supervisor has shut down, either because
	// its owner closed it or because the server could not be restarted.
	ErrProcessClosed = errors.New("proc macro process is closed")

	// ErrThreadClosed indicates the supervisor goroutine died while serving
	// the call and no reply will arrive.
	ErrThreadClosed = errors.New("proc macro thread is closed")

	// ErrStdioUnavailable indicates the worker pipes were already taken.
	ErrStdioUnavailable = errors.New("worker stdio unavailable")
)

// ServerNotFoundError indicates the proc-macro server binary was not found.
type ServerNotFoundError struct {
	SearchedPaths []string
}

func (e *ServerNotFoundError) Error() string {
	return fmt.Sprintf("proc-macro server not found in: %v", e.SearchedPaths)
}

// IsProcMacroError implements ProcMacroError.
func (e *ServerNotFoundError) IsProcMacroError() bool { return true }

// StartupError indicates the server process could not be spawned.
type StartupError struct {
	Path string
	Err  error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("failed to start proc-macro server %s: %v", e.Path, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// IsProcMacroError implements ProcMacroError.
func (e *StartupError) IsProcMacroError() bool { return true }

// ConnectionError indicates a write to or read from the server pipes failed.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("proc-macro server connection failed (%s): %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsProcMacroError implements ProcMacroError.
func (e *ConnectionError) IsProcMacroError() bool { return true }

// ExpansionError carries an error response. Code is "ServerErrorEnd" when the
// connection to the server broke during the call and "ExpansionError" when
// the macro itself failed.
type ExpansionError struct {
	Code    string
	Message string
}

func (e *ExpansionError) Error() string {
	return "expansion error: " + e.Message
}

// IsProcMacroError implements ProcMacroError.
func (e *ExpansionError) IsProcMacroError() bool { return true }

// UnexpectedResponseError indicates the server answered with a response kind
// the caller did not ask for.
type UnexpectedResponseError struct {
	Want string
	Got  string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("fail to get response, reason: expected %s, got %s", e.Want, e.Got)
}

// IsProcMacroError implements ProcMacroError.
func (e *UnexpectedResponseError) IsProcMacroError() bool { return true }

// DecodeError indicates a line read from the server was not a valid message.
// This error preserves the original raw data that failed to parse.
type DecodeError struct {
	RawData string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode message from server: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsProcMacroError implements ProcMacroError.
func (e *DecodeError) IsProcMacroError() bool { return true }
