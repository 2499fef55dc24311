package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/cli/config"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/server"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Debounce time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(version string) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Serve the project index to MCP clients over stdio (the default) or
streamable HTTP.

Over HTTP the MCP endpoint is /mcp and /healthz reports whether a snapshot
is loaded. With --watch, changes to .yml, .yaml and .sql files under the
project directory trigger a refresh.

Logs are written to stderr; stdout is reserved for the stdio transport.`,
		Example: `  # Serve over stdio for a local MCP client
  dbt-core-mcp serve --project-dir ./jaffle_shop

  # Serve over HTTP and refresh on file changes
  dbt-core-mcp serve --transport http --http-addr :8080 --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, version, opts)
		},
	}

	cmd.Flags().String("transport", config.DefaultTransport, "MCP transport (stdio|http)")
	cmd.Flags().String("http-addr", config.DefaultHTTPAddr, "Listen address for the http transport")
	cmd.Flags().Bool("watch", false, "Refresh when project files change")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 500*time.Millisecond, "Quiet period before a watched change triggers a refresh")

	_ = cmd.RegisterFlagCompletionFunc("transport", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{config.TransportStdio, config.TransportHTTP}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runServe(cmd *cobra.Command, version string, opts *ServeOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := cmdCtx.Cfg
	logger := cmdCtx.Logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Build the first snapshot before accepting calls. A failure is not
	// fatal: tools report it and the next call retries.
	if res, err := cmdCtx.Engine.Refresh(ctx, false); err != nil {
		logger.Warn("initial index build failed", "error", err)
	} else {
		logger.Info("project indexed", "summary", res.Summary())
	}

	srv := server.New(server.Config{
		Engine:     cmdCtx.Engine,
		Version:    version,
		Addr:       cfg.HTTPAddr,
		Watch:      cfg.Watch,
		ProjectDir: cfg.ProjectDir,
		Debounce:   opts.Debounce,
		Logger:     logger,
	})

	switch cfg.Transport {
	case config.TransportHTTP:
		return srv.ServeHTTP(ctx)
	case config.TransportStdio:
		return ignoreCanceled(srv.ServeStdio(ctx))
	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
