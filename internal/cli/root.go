// Package cli provides the command-line interface for dbt-core-mcp.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/cli/commands"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/cli/config"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/cli/output"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/engine"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/warehouse"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// configKey is used to store config in context.
type configKey struct{}

// rendererKey is used to store renderer in context.
type rendererKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dbt-core-mcp",
		Short: "dbt-core-mcp - dbt project metadata for AI assistants",
		Long: `dbt-core-mcp indexes a dbt project's YAML and SQL files and answers
questions about models, sources, columns and lineage without running dbt
or connecting to a warehouse.

Run "serve" to expose the index to MCP clients, or use the query commands
directly from a shell.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			// Logs go to stderr so stdout stays clean for output and stdio MCP
			logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = context.WithValue(ctx, configKey{}, cfg)
			ctx = context.WithValue(ctx, config.LoggerKey(), logger)

			renderer := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))
			ctx = context.WithValue(ctx, rendererKey{}, renderer)
			cmd.SetContext(ctx)

			if configFile := config.GetConfigFileUsed(); configFile != "" {
				logger.Debug("using config file", "path", configFile)
			}
			if cfg.Target != "" {
				logger.Debug("using target", "target", cfg.Target)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./"+config.DefaultConfigFile+")")
	rootCmd.PersistentFlags().String("project-dir", "", "Path to the dbt project (default: nearest directory with dbt_project.yml)")
	rootCmd.PersistentFlags().StringP("target", "t", "", "Target to resolve schemas for (e.g., dev, prod)")
	rootCmd.PersistentFlags().String("schema-override", "", "Schema every model resolves to, replacing the target schema")
	rootCmd.PersistentFlags().String("warehouse-type", "", "Warehouse type for dataset mapping ("+strings.Join(warehouse.List(), "|")+")")
	rootCmd.PersistentFlags().String("state", "", "Path to the state database (default: in-memory)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text|json)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (auto|text|markdown|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "text", "markdown", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("warehouse-type", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return warehouse.List(), cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewServeCommand(Version))
	rootCmd.AddCommand(commands.NewListCommand())
	rootCmd.AddCommand(commands.NewSearchCommand())
	rootCmd.AddCommand(commands.NewModelCommand())
	rootCmd.AddCommand(commands.NewColumnCommand())
	rootCmd.AddCommand(commands.NewLineageCommand())
	rootCmd.AddCommand(commands.NewMappingCommand())
	rootCmd.AddCommand(commands.NewRefreshCommand())
	rootCmd.AddCommand(commands.NewBuildsCommand())
	rootCmd.AddCommand(commands.NewDoctorCommand())
	rootCmd.AddCommand(commands.NewDAGCommand())
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	if c := config.GetCurrentConfig(); c != nil {
		return c
	}
	return &config.Config{
		ProjectFile: "dbt_project.yml",
		Cache: config.CacheConfig{
			TTLMinutes: config.DefaultTTLMinutes,
			MaxEntries: config.DefaultMaxEntries,
		},
		SchemaStrategy: config.DefaultStrategy,
		Concurrency:    config.DefaultWorkers,
		LogLevel:       config.DefaultLogLevel,
		LogFormat:      config.DefaultLogFormat,
		OutputFormat:   config.DefaultOutput,
		Transport:      config.DefaultTransport,
		HTTPAddr:       config.DefaultHTTPAddr,
	}
}

// GetRenderer retrieves the renderer from the command context.
func GetRenderer(ctx context.Context) *output.Renderer {
	if r, ok := ctx.Value(rendererKey{}).(*output.Renderer); ok {
		return r
	}
	return output.NewRenderer(os.Stdout, os.Stderr, output.ModeAuto)
}

// CreateEngine creates an engine from the current configuration.
func CreateEngine(ctx context.Context, cfg *config.Config) (*engine.Engine, error) {
	return commands.NewEngine(cfg, config.GetLogger(ctx))
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for dbt-core-mcp.

To load completions:

Bash:
  $ source <(dbt-core-mcp completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ dbt-core-mcp completion bash > /etc/bash_completion.d/dbt-core-mcp
  # macOS:
  $ dbt-core-mcp completion bash > $(brew --prefix)/etc/bash_completion.d/dbt-core-mcp

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ dbt-core-mcp completion zsh > "${fpath[1]}/_dbt-core-mcp"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ dbt-core-mcp completion fish | source

  # To load completions for each session, execute once:
  $ dbt-core-mcp completion fish > ~/.config/fish/completions/dbt-core-mcp.fish

PowerShell:
  PS> dbt-core-mcp completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> dbt-core-mcp completion powershell > dbt-core-mcp.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
