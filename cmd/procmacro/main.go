// Command procmacro drives a Rust proc-macro server from the command line.
//
//	procmacro list ./target/debug/deps/libserde_derive.so
//	procmacro expand ./libfoo.so Foo --input body.json
//	procmacro schema Subtree
//	procmacro mcp --metrics-addr :9464
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdin, os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "procmacro:", err)
		stop()
		os.Exit(1)
	}
}
