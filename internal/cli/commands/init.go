package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/cli/config"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/cli/output"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var example bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a starter configuration file",
		Long: `Write a commented .dbt-core-mcp.yaml next to an existing dbt project.

Use --example to also create a small working dbt project (sources, staging
and mart models with tests, and an exposure) to try the tools against.`,
		Example: `  # Configure the project in the current directory
  dbt-core-mcp init

  # Create an example project in a new directory
  dbt-core-mcp init demo --example

  # Overwrite an existing configuration
  dbt-core-mcp init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			mode := output.ModeAuto
			if cfg := config.GetCurrentConfig(); cfg != nil {
				mode = output.Mode(cfg.OutputFormat)
			}
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

			if example {
				return runInitExample(r, dir, force)
			}
			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	cmd.Flags().BoolVar(&example, "example", false, "Create an example dbt project as well")

	return cmd
}

func prepareInitDir(dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, config.DefaultConfigFile)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", config.DefaultConfigFile)
	}
	return nil
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if err := prepareInitDir(dir, force); err != nil {
		return err
	}

	if err := copyTemplate("minimal", dir, force); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}

	files, _ := listTemplateFiles("minimal")
	for _, f := range files {
		r.Printf("  %s\n", f)
	}

	r.Println("")
	r.Success("Configuration written")
	if _, err := os.Stat(filepath.Join(dir, "dbt_project.yml")); err != nil {
		r.Warning("no dbt_project.yml in " + dir + "; defaults apply until one is added")
	}
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Review " + config.DefaultConfigFile)
	r.Println("  2. Run 'dbt-core-mcp doctor' to check the project")
	r.Println("  3. Run 'dbt-core-mcp serve' and point your MCP client at it")

	return nil
}

func runInitExample(r *output.Renderer, dir string, force bool) error {
	if err := prepareInitDir(dir, force); err != nil {
		return err
	}

	if err := copyTemplate("example", dir, force); err != nil {
		return fmt.Errorf("failed to create example project: %w", err)
	}

	files, _ := listTemplateFiles("example")
	groups := groupTemplateFiles(files)

	r.Header(2, "Configuration")
	for _, f := range groups["config"] {
		r.Printf("  %s\n", f)
	}

	r.Println("")
	r.Header(2, "Models")
	for _, f := range groups["models"] {
		r.Printf("  %s\n", f)
	}

	r.Println("")
	r.Success("Example project created")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  dbt-core-mcp list          View models by schema")
	r.Println("  dbt-core-mcp lineage customers --direction upstream")
	r.Println("  dbt-core-mcp doctor        Check documentation and test coverage")
	r.Println("  dbt-core-mcp serve         Serve the project over MCP")

	return nil
}
