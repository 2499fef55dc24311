// Package main is the entry point for the dbt-core-mcp server and CLI.
package main

import (
	"os"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
