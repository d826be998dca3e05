package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v2"

	procmacro "github.com/wagiedev/proc-macro-client-go"
)

func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "procmacro",
		Usage:     "list and run Rust procedural macros through rust-analyzer-proc-macro-srv",
		Version:   version,
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				EnvVars: []string{"PROC_MACRO_SRV"},
				Usage:   "path of the proc-macro server (searched in PATH and the Rust toolchain if unset)",
			},
			&cli.StringSliceFlag{
				Name:  "server-arg",
				Usage: "argument for the first server invocation (repeatable)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "restart the server when a call gets no answer within this duration (0 waits forever)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "warn",
				Usage: "debug, info, warn or error",
			},
		},
		Commands: []*cli.Command{
			listCommand(),
			expandCommand(),
			schemaCommand(),
			mcpCommand(),
		},
	}
}

func newLogger(c *cli.Context) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}

	return slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level})), nil
}

// openClient starts a client from the global flags.
func openClient(c *cli.Context, log *slog.Logger, extra ...procmacro.Option) (*procmacro.Client, error) {
	opts := []procmacro.Option{
		procmacro.WithLogger(log),
		procmacro.WithServerPath(c.String("server")),
		procmacro.WithArgs(c.StringSlice("server-arg")...),
		procmacro.WithResponseTimeout(c.Duration("timeout")),
	}

	return procmacro.ExternProcess(c.Context, append(opts, extra...)...)
}
