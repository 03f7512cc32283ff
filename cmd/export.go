package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/trajeval/internal/warehouse"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <run-dir>",
		Short: "Load an evaluated run into a DuckDB database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db := duckDBPath(cmd)
			if db == "" {
				return errors.New("no database: pass --duckdb or set export.duckdb")
			}
			run, err := warehouse.ExportDir(cmd.Context(), db, outputDir(args[0]), reporter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported run %s (%d tasks) to %s\n", run.ID, run.Metrics.TaskCounts, db)
			return nil
		},
	}
	cmd.Flags().StringVar(&flagDuckDB, "duckdb", "", "DuckDB file to write (overrides config)")
	return cmd
}
