package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/cli/output"
)

// RefreshOptions holds options for the refresh command.
type RefreshOptions struct {
	Force bool
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand() *cobra.Command {
	opts := &RefreshOptions{}

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Re-read the project and rebuild the index",
		Long: `Fetch the project documents, parse what changed and publish a new snapshot.
Parse errors skip the affected document and are reported. A project that
cannot be indexed (invalid dbt_project.yml, duplicate names) fails the
refresh and is recorded in the build history.`,
		Example: `  dbt-core-mcp refresh
  dbt-core-mcp refresh --force --state .dbt-core-mcp/state.db`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRefresh(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", true, "Rebuild even when a snapshot for the same content is cached")

	return cmd
}

func runRefresh(cmd *cobra.Command, opts *RefreshOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := cmdCtx.Engine.Refresh(cmd.Context(), opts.Force)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(res)
	}

	r.Success(res.Summary())
	if len(res.Changed) > 0 {
		r.KeyValue("Changed", output.FormatList(res.Changed))
	}
	if len(res.Deleted) > 0 {
		r.KeyValue("Deleted", output.FormatList(res.Deleted))
	}
	for _, de := range res.DocumentErrors {
		r.Error(fmt.Sprintf("%s:%d:%d: %s", de.Path, de.Line, de.Column, de.Message))
	}
	for _, w := range res.Warnings {
		r.Warning(w.String())
	}
	return nil
}

// BuildsOptions holds options for the builds command.
type BuildsOptions struct {
	Limit int
}

// NewBuildsCommand creates the builds command.
func NewBuildsCommand() *cobra.Command {
	opts := &BuildsOptions{}

	cmd := &cobra.Command{
		Use:   "builds",
		Short: "Show recent snapshot builds",
		Long: `List the most recent snapshot builds recorded in the state database,
newest first. Use --state to keep history across runs.`,
		Example: `  dbt-core-mcp builds --state .dbt-core-mcp/state.db --limit 5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuilds(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "Number of builds to show")

	return cmd
}

func runBuilds(cmd *cobra.Command, opts *BuildsOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	builds, err := cmdCtx.Engine.Builds(cmd.Context(), opts.Limit)
	if err != nil {
		return fmt.Errorf("failed to read build history: %w", err)
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(builds)
	}

	r.Header(1, fmt.Sprintf("Builds (%d)", len(builds)))
	rows := make([][]string, 0, len(builds))
	for _, b := range builds {
		rows = append(rows, []string{
			b.StartedAt.Local().Format(time.DateTime),
			string(b.Status),
			shortID(b.Version),
			strconv.Itoa(b.Models),
			strconv.Itoa(b.Documents),
			strconv.FormatInt(b.DurationMs, 10) + "ms",
			b.Error,
		})
	}
	r.Table([]string{"Started", "Status", "Version", "Models", "Documents", "Duration", "Error"}, rows)
	return nil
}

func shortID(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
