package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"supabasemcp/config"
	"supabasemcp/logging"
	"supabasemcp/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|version]",
	Short: "Install or remove the catalog functions",
	Long: `Install the database functions behind list_tables, describe_table and the
table existence check (get_table_list, get_table_schema, check_table_exists).
Requires SUPABASE_DB_URL. User tables are never touched.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"up", "down", "version"},
	RunE: func(cmd *cobra.Command, args []string) error {
		direction := "up"
		if len(args) == 1 {
			direction = args[0]
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.DBURL == "" {
			return config.ErrMissingDBURL
		}

		logger, closeLog := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
		defer closeLog()

		switch direction {
		case "up":
			if err := migrations.Up(cfg.DBURL, logger); err != nil {
				return err
			}
			pterm.Success.Println("Catalog functions installed")
		case "down":
			if err := migrations.Down(cfg.DBURL, logger); err != nil {
				return err
			}
			pterm.Success.Println("Catalog functions removed")
		case "version":
			version, dirty, err := migrations.Version(cfg.DBURL)
			if err != nil {
				return err
			}
			pterm.Info.Printfln("Migration version %d (dirty: %t)", version, dirty)
		default:
			return fmt.Errorf("unknown migrate direction %q (want up, down or version)", direction)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
