package commands

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/sqltree/pkg/config"
	"github.com/Sumatoshi-tech/sqltree/pkg/observability"
	"github.com/Sumatoshi-tech/sqltree/pkg/server"
	"github.com/Sumatoshi-tech/sqltree/pkg/session"
	"github.com/Sumatoshi-tech/sqltree/pkg/syntax/treesitter"
)

// NewServeCommand creates the playground server command.
func NewServeCommand() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the live playground server",
		Long: `Start an HTTP server exposing the parse pipeline.

Endpoints:
  POST /api/parse      one-shot parse of {"sql": "..."}
  GET  /api/examples   bundled example queries
  GET  /ws             live playground socket (text edits, hover, screens)
  GET  /healthz        liveness
  GET  /readyz         ready once the grammar is loaded
  GET  /metrics        Prometheus scrape (telemetry.prometheus: true)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd, observability.ModeServe)
			if err != nil {
				return err
			}
			defer e.close()

			if cmd.Flags().Changed("host") {
				e.cfg.Server.Host = host
			}

			if cmd.Flags().Changed("port") {
				e.cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess := e.session(treesitter.NewEngine(), e.cfg.Grammar)
			defer sess.Close()

			sess.Start(ctx)

			srv := newPlaygroundServer(e, sess)

			var lc net.ListenConfig

			ln, err := lc.Listen(ctx, "tcp", e.cfg.Server.Addr())
			if err != nil {
				return fmt.Errorf("listen %s: %w", e.cfg.Server.Addr(), err)
			}

			return srv.Serve(ctx, ln, serverTimeouts(e.cfg.Server))
		},
	}

	cmd.Flags().StringVar(&host, "host", config.DefaultServerHost, "listen host")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultServerPort, "listen port")

	return cmd
}

func newPlaygroundServer(e *env, sess *session.Session) *server.Server {
	opts := []server.Option{
		server.WithLogger(e.providers.Logger),
		server.WithTracer(e.providers.Tracer),
		server.WithMetrics(e.providers.Metrics),
		server.WithReparseMetrics(e.providers.Reparse),
		server.WithInterval(e.cfg.Debounce),
		server.WithSnippetMax(e.cfg.SnippetMax),
		server.WithMaxMessageBytes(e.cfg.Server.MaxMessageBytes),
		server.WithCache(e.projections()),
	}

	if e.providers.MetricsHandler != nil {
		opts = append(opts, server.WithMetricsHandler(e.providers.MetricsHandler))
	}

	return server.New(sess, opts...)
}

func serverTimeouts(sc config.ServerConfig) server.Timeouts {
	return server.Timeouts{
		Read:  sc.ReadTimeout,
		Write: sc.WriteTimeout,
		Idle:  sc.IdleTimeout,
	}
}
