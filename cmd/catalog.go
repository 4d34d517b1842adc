package cmd

import (
	"errors"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"supabasemcp/storage"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables of the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		env := a.service.ListTables(cmd.Context())
		if !env.Success {
			return errors.New(env.Error)
		}
		if env.Count == 0 {
			pterm.Warning.Println("No tables found")
			return nil
		}

		return renderRows(env.Data, []string{"table_schema", "table_name"})
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema <table>",
	Short: "Describe the columns of a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table := args[0]

		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.service.TableExists(cmd.Context(), table) {
			return fmt.Errorf("table %q does not exist", table)
		}

		env := a.service.DescribeTable(cmd.Context(), table)
		if !env.Success {
			return errors.New(env.Error)
		}

		pterm.DefaultSection.Println(table)
		return renderRows(env.Data, []string{"column_name", "data_type", "is_nullable", "column_default"})
	},
}

func init() {
	rootCmd.AddCommand(tablesCmd, schemaCmd)
}

// renderRows prints rows as a table. Preferred columns come first when
// present; any other column follows in name order.
func renderRows(rows []storage.Row, preferred []string) error {
	return pterm.DefaultTable.WithHasHeader().WithData(tableData(rows, preferred)).Render()
}

func tableData(rows []storage.Row, preferred []string) pterm.TableData {
	present := map[string]bool{}
	for _, column := range storage.Columns(rows) {
		present[column] = true
	}

	header := []string{}
	for _, column := range preferred {
		if present[column] {
			header = append(header, column)
			delete(present, column)
		}
	}
	for _, column := range storage.Columns(rows) {
		if present[column] {
			header = append(header, column)
		}
	}

	data := pterm.TableData{header}
	for _, row := range rows {
		line := make([]string, len(header))
		for i, column := range header {
			if v := row[column]; v != nil {
				line[i] = fmt.Sprint(v)
			}
		}
		data = append(data, line)
	}
	return data
}
