// Package supervisor runs the goroutine that owns the proc-macro server
// process and serializes calls to it.
//
// Run starts the server and returns two handles sharing one task channel:
//
//   - Thread owns the supervisor. Close stops accepting calls, waits for the
//     supervisor goroutine to finish and kills the server.
//   - Srv submits calls. Any number of goroutines may share it. Once the
//     supervisor is gone, calls fail fast with errors.ErrProcessClosed.
//
// Calls are served one at a time in arrival order. When a call hits a broken
// pipe the caller receives an error response with code ServerErrorEnd and
// the supervisor restarts the server before taking the next call. If the
// restart fails the supervisor stops for good.
package supervisor
