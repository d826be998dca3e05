package procmacro

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/proc-macro-client-go/internal/discovery"
	"github.com/wagiedev/proc-macro-client-go/internal/msg"
	"github.com/wagiedev/proc-macro-client-go/internal/supervisor"
)

// loadConcurrency bounds the ListMacro calls LoadLibraries keeps in flight.
const loadConcurrency = 8

// Client loads proc-macro libraries through a supervised server.
//
// A Client is safe for concurrent use. Calls are forwarded to the server
// one at a time in arrival order.
//
// Lifecycle: Clients are single-use. After Close, create a new one with
// ExternProcess.
type Client struct {
	log    *slog.Logger
	thread *supervisor.Thread // nil for Dummy
	srv    *supervisor.Srv
	once   sync.Once
}

// ExternProcess starts the proc-macro server and returns a client for it.
//
// The server is located with the discovery rules of WithServerPath. Returns
// *ServerNotFoundError when no server is found and *StartupError when it
// cannot be spawned.
func ExternProcess(ctx context.Context, opts ...Option) (*Client, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	path, err := discovery.NewDiscoverer(&discovery.Config{
		ServerPath: options.ServerPath,
		Logger:     log,
	}).Discover(ctx)
	if err != nil {
		return nil, err
	}

	cfg := *options
	cfg.ServerPath = path
	cfg.Logger = log

	thread, srv, err := supervisor.Run(&cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		log:    log.With("component", "client", "srv_id", srv.ID()),
		thread: thread,
		srv:    srv,
	}, nil
}

// Dummy returns a client without a server. It finds no macros.
func Dummy() *Client {
	return &Client{
		log: NopLogger(),
		srv: &supervisor.Srv{},
	}
}

// ListMacros returns every macro the library at lib exports.
func (c *Client) ListMacros(ctx context.Context, lib string) ([]Macro, error) {
	macros, err := c.srv.FindProcMacros(ctx, lib)
	if err != nil {
		return nil, fmt.Errorf("list macros of %s: %w", lib, err)
	}

	return macros, nil
}

// Expand runs the macro name from lib on subtree, whatever its kind. attrs
// holds the arguments of an attribute macro and is nil otherwise.
func (c *Client) Expand(ctx context.Context, lib, name string, subtree, attrs *Subtree) (*Subtree, error) {
	return c.srv.Expand(ctx, lib, name, subtree, attrs)
}

// ByDylibPath returns an expander for each derive macro exported by the
// library at lib. Other macro kinds are skipped.
//
// Failures are logged and yield no registrations.
func (c *Client) ByDylibPath(ctx context.Context, lib string) []Registration {
	if c.thread == nil {
		return nil
	}

	macros, err := c.srv.FindProcMacros(ctx, lib)
	if err != nil {
		c.log.Error("Failed to list proc macros", "lib", lib, "error", err)

		return nil
	}

	regs := make([]Registration, 0, len(macros))

	for _, m := range macros {
		if m.Kind != msg.KindCustomDerive {
			continue
		}

		regs = append(regs, Registration{
			Name:     m.Name,
			Expander: newExpander(c.srv, lib, m.Name),
		})
	}

	c.log.Debug("Loaded proc macros", "lib", lib, "listed", len(macros), "derives", len(regs))

	return regs
}

// LoadLibraries runs ByDylibPath for each library concurrently. The result
// maps each library to its registrations. Only cancellation of ctx fails
// the whole load.
func (c *Client) LoadLibraries(ctx context.Context, libs ...string) (map[string][]Registration, error) {
	results := make([][]Registration, len(libs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)

	for i, lib := range libs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			results[i] = c.ByDylibPath(gctx, lib)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string][]Registration, len(libs))
	for i, lib := range libs {
		out[lib] = results[i]
	}

	return out, nil
}

// Close stops the server. Expanders obtained from this client fail with
// ErrProcessClosed afterwards. It's safe to call Close multiple times.
func (c *Client) Close() error {
	if c.thread == nil {
		return nil
	}

	var err error

	c.once.Do(func() {
		c.log.Debug("Closing client")
		err = c.thread.Close()
	})

	return err
}
