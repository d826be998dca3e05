// Package subprocess owns the proc-macro server child process.
//
// A Process spawns the server with its stdin and stdout connected to pipes
// and its stderr discarded, hands the pipes out once per spawn, and replaces
// the child in place on Restart. Every child is killed and reaped when it is
// replaced or when the Process is closed, so no server outlives its handle.
//
// A Process is not safe for concurrent use; the supervisor goroutine is its
// only user. Watchdog is the one exception.
package subprocess
