package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	procmacro "github.com/wagiedev/proc-macro-client-go"
	"github.com/wagiedev/proc-macro-client-go/internal/mcpserver"
	promexp "github.com/wagiedev/proc-macro-client-go/observability/prometheus"
)

const shutdownTimeout = 5 * time.Second

var _ mcpserver.Backend = (*procmacro.Client)(nil)

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "serve list_macros and expand_macro as MCP tools on stdio",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "serve Prometheus metrics on this address (e.g. :9464)",
			},
		},
		Action: mcpAction,
	}
}

func mcpAction(c *cli.Context) error {
	log, err := newLogger(c)
	if err != nil {
		return err
	}

	reg := prom.NewRegistry()

	exporter, err := promexp.NewMetricsExporter("procmacro", reg, promexp.ExporterOptions{})
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	client, err := openClient(c, log, procmacro.WithMetrics(exporter))
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The session ends when the peer closes stdin; stop the metrics
		// endpoint with it.
		defer cancel()

		err := mcpserver.New(client, version, log).Serve(ctx, &mcp.StdioTransport{})
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	})

	if addr := c.String("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

		httpSrv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			log.Info("Serving metrics", "addr", addr)

			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}

			return nil
		})

		g.Go(func() error {
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
