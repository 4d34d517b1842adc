// Package cmd implements the supabase-mcp command line. Without a subcommand
// it serves the MCP tools over stdio.
package cmd

import (
	"context"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	envFiles     []string
	backendFlag  string
	memoryTables []string
)

var rootCmd = &cobra.Command{
	Use:   "supabase-mcp",
	Short: "MCP server exposing CRUD tools over a Supabase database",
	Long: `supabase-mcp serves read, create, update and delete tools for the tables of a
Supabase project to MCP clients. Updates and deletes always require filters.

Configuration comes from the environment or a .env file: SUPABASE_URL and
SUPABASE_SERVICE_ROLE_KEY for the REST backend, SUPABASE_DB_URL for the
direct postgres backend.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// Execute runs the root command and exits with status 1 on error.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		pterm.Error.WithWriter(os.Stderr).Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "storage backend: postgrest, postgres or memory (overrides SUPABASE_MCP_BACKEND)")
	rootCmd.PersistentFlags().StringSliceVar(&memoryTables, "memory-tables", nil, "tables to create when the memory backend is used")

	addServeFlags(rootCmd)
}
