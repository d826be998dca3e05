// Package discovery locates the proc-macro server binary.
//
//	d := discovery.NewDiscoverer(&discovery.Config{
//	    ServerPath: "",           // Optional explicit path
//	    Logger:     slog.Default(),
//	})
//	path, err := d.Discover(ctx)
//
// Discovery searches in the following order:
//  1. Explicit path in Config.ServerPath (if provided, nothing else is tried)
//  2. System PATH
//  3. The libexec directory of the active Rust toolchain (rustc --print sysroot)
//  4. The cargo bin directory (~/.cargo/bin)
package discovery
