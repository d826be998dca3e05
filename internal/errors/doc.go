// Package errors defines error types for the proc-macro client.
//
// This package provides structured error types that wrap the different failure
// scenarios of talking to an external proc-macro server: the server could not
// be started, the pipe broke mid-call, the server reported an expansion
// failure, or it answered with a response of the wrong shape. All error types
// support unwrapping and can be checked using errors.Is, errors.As, and
// errors.AsType.
package errors
