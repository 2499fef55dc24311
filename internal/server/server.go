// Package server exposes the engine as an MCP server over stdio or
// streamable HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/engine"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/fetch"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/tools"
)

// Config holds configuration for the MCP server.
type Config struct {
	Engine  *engine.Engine
	Name    string
	Version string
	// Addr is the HTTP listen address, e.g. ":8080"
	Addr string
	// Watch refreshes the snapshot when project files under ProjectDir change
	Watch      bool
	ProjectDir string
	Debounce   time.Duration
	Logger     *slog.Logger
}

// Server is an MCP server over one engine.
type Server struct {
	engine *engine.Engine
	mcp    *mcp.Server
	cfg    Config
	logger *slog.Logger
}

// New creates a server with every tool and prompt registered.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Name == "" {
		cfg.Name = "dbt-core-mcp"
	}

	ct := &tools.ContextTools{Engine: cfg.Engine, Logger: logger}
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_database_context",
		Description: "Overview of the dbt project: counts, schemas, materializations, tags, root and leaf models, warehouse",
	}, ct.GetDatabaseContext)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_model_context",
		Description: "Full definition of one model: columns, data types, tests, constraints, configuration and immediate dependencies",
	}, ct.GetModelContext)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "search_models",
		Description: "Rank models by relevance to a free-text query, with optional schema, tag and materialization filters",
	}, ct.SearchModels)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_model_lineage",
		Description: "Upstream and downstream dependencies of a model up to a depth of 5, with cycles and unresolved references",
	}, ct.GetModelLineage)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_column_info",
		Description: "Data type, description, tests, constraints and metadata of one column",
	}, ct.GetColumnInfo)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_available_models",
		Description: "List model names grouped by schema, optionally for one schema",
	}, ct.ListAvailableModels)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "refresh_context",
		Description: "Re-read the project and rebuild the index",
	}, ct.RefreshContext)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_dataset_mapping",
		Description: "Group models by the warehouse dataset or schema they are built into",
	}, ct.GetDatasetMapping)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_cache_stats",
		Description: "Cache hit, miss and eviction counters",
	}, ct.GetCacheStats)

	srv.AddPrompt(&mcp.Prompt{
		Name:        "database_overview",
		Description: "High-level overview of the database structure",
	}, ct.DatabaseOverview)

	srv.AddPrompt(&mcp.Prompt{
		Name:        "sql_helper",
		Description: "Models relevant to what a SQL query should accomplish",
		Arguments: []*mcp.PromptArgument{{
			Name:        "query_intent",
			Description: "What the SQL query should accomplish",
			Required:    true,
		}},
	}, ct.SQLHelper)

	return &Server{engine: cfg.Engine, mcp: srv, cfg: cfg, logger: logger}
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// Handler returns the HTTP routes: /mcp for streamable HTTP and /healthz.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
	)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
	r.Handle("/mcp", mcpHandler)
	r.Handle("/mcp/*", mcpHandler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if s.engine.Snapshot() == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("no snapshot\n"))
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}

// ServeStdio serves MCP over stdin/stdout until ctx is done.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.logger.Info("starting MCP server", "transport", "stdio")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, egctx := errgroup.WithContext(ctx)
	s.startWatcher(egctx, eg)
	eg.Go(func() error {
		// the client closing stdin ends the session and stops the watcher
		defer cancel()
		return s.mcp.Run(egctx, &mcp.StdioTransport{})
	})
	return eg.Wait()
}

// ServeHTTP serves MCP over streamable HTTP until ctx is done.
func (s *Server) ServeHTTP(ctx context.Context) error {
	s.logger.Info("starting MCP server", "transport", "http", "addr", s.cfg.Addr)
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.startWatcher(egctx, eg)

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down MCP server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) startWatcher(ctx context.Context, eg *errgroup.Group) {
	if !s.cfg.Watch || s.cfg.ProjectDir == "" {
		return
	}
	w := &fetch.Watcher{
		Root:     s.cfg.ProjectDir,
		Debounce: s.cfg.Debounce,
		Logger:   s.logger,
		OnChange: func(ctx context.Context, paths []string) {
			s.logger.Info("project files changed, refreshing", "paths", len(paths))
			if _, err := s.engine.Refresh(ctx, true); err != nil {
				s.logger.Warn("refresh after change failed", "error", err)
			}
		},
	}
	eg.Go(func() error {
		return w.Run(ctx)
	})
}
