package procmacro

import (
	"context"
	"fmt"
)

// WithClient manages client lifecycle with automatic cleanup.
//
// This helper starts a client with the provided options, executes the
// callback function, and closes the client when done. If Close fails, a
// warning is logged but does not override the callback's error.
//
// Example usage:
//
//	err := procmacro.WithClient(ctx, func(c *procmacro.Client) error {
//	    regs, err := c.LoadLibraries(ctx, libs...)
//	    if err != nil {
//	        return err
//	    }
//	    // use regs...
//	    return nil
//	},
//	    procmacro.WithLogger(log),
//	)
func WithClient(ctx context.Context, fn func(*Client) error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	client, err := ExternProcess(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to start client: %w", err)
	}

	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			log.Warn("failed to close client", "error", closeErr)
		}
	}()

	return fn(client)
}
