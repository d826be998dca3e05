// Package procmacro is a client for an out-of-process Rust procedural macro
// server (rust-analyzer-proc-macro-srv).
//
// Macros are loaded from compiled proc-macro libraries and run in a separate
// process so that a crashing or misbehaving macro cannot take the host down.
// The client supervises that process: calls are serialized over its stdin
// and stdout, and a server that dies mid-call is restarted before the next
// call.
//
// # Basic Usage
//
//	ctx := context.Background()
//	client, err := procmacro.ExternProcess(ctx,
//	    procmacro.WithLogger(slog.Default()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	for _, reg := range client.ByDylibPath(ctx, "/path/to/libserde_derive.so") {
//	    out, err := reg.Expander.Expand(ctx, input, nil)
//	    if err != nil {
//	        log.Printf("%s: %v", reg.Name, err)
//	        continue
//	    }
//	    fmt.Println(out)
//	}
//
// # Lifetime
//
// A Client owns the server. Expanders obtained from it only submit calls:
// they keep working while the client is open and fail with
// ErrProcessClosed after Close. A client whose server could not be
// restarted behaves the same way.
//
// # Errors
//
// Server-side macro failures are returned as *ExpansionError. A call that
// was in flight when the server died also yields an *ExpansionError, with
// code "ServerErrorEnd" and message "Server closed"; the next call goes to a
// fresh server.
package procmacro
