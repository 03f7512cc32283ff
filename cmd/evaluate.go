package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/signalnine/trajeval/internal/report"
	"github.com/signalnine/trajeval/internal/runner"
	"github.com/signalnine/trajeval/internal/warehouse"
)

var (
	flagTotalCost float64
	flagWorkers   int
	flagFormat    string
	flagColor     bool
	flagDuckDB    string
)

func newEvaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate <run-dir>",
		Short: "Aggregate a run's task logs and compute its metrics",
		Long: "Read every task log under <run-dir>/json_result, write the run document (out.json), " +
			"the run metrics (result.json) and manifest.json under <run-dir>/result, then print the report.",
		Args: cobra.ExactArgs(1),
		RunE: runEvaluate,
	}
	cmd.Flags().Float64Var(&flagTotalCost, "total-cost", 0, "total USD cost of the run (overrides config)")
	cmd.Flags().IntVar(&flagWorkers, "workers", 1, "task logs read concurrently (overrides config)")
	cmd.Flags().StringVar(&flagFormat, "format", "table", "report format (table, markdown, json)")
	cmd.Flags().BoolVar(&flagColor, "color", false, "style the table report for a terminal")
	cmd.Flags().StringVar(&flagDuckDB, "duckdb", "", "also export the run into this DuckDB file")
	return cmd
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	runDir := args[0]
	cost, source, err := resolveCost(cmd)
	if err != nil {
		return err
	}
	workers := cfg.Workers
	if cmd.Flags().Changed("workers") {
		workers = flagWorkers
	}

	outcome, err := runner.Evaluate(cmd.Context(), runner.Options{
		RunDir:       runDir,
		InputSubdir:  cfg.Results.InputSubdir,
		OutputSubdir: cfg.Results.OutputSubdir,
		TotalCost:    cost,
		CostSource:   source,
		Workers:      workers,
		Reporter:     reporter,
	})
	if errors.Is(err, runner.ErrNoTasks) {
		fmt.Fprintf(cmd.OutOrStdout(), "No task results under %s; wrote an empty run document to %s\n",
			filepath.Join(runDir, cfg.Results.InputSubdir), outcome.OutputDir)
		return nil
	}
	if err != nil {
		return err
	}

	if db := duckDBPath(cmd); db != "" {
		if _, err := warehouse.ExportDir(cmd.Context(), db, outcome.OutputDir, reporter); err != nil {
			return err
		}
	}
	return report.Generate(outcome.OutputDir, report.Options{Format: flagFormat, Color: flagColor}, cmd.OutOrStdout())
}

func resolveCost(cmd *cobra.Command) (float64, string, error) {
	return runner.ResolveCost(runner.CostRequest{
		Flag:    flagTotalCost,
		FlagSet: cmd.Flags().Changed("total-cost"),
		Config:  cfg.Cost,
	}, reporter)
}

func duckDBPath(cmd *cobra.Command) string {
	if cmd.Flags().Changed("duckdb") {
		return flagDuckDB
	}
	return cfg.Export.DuckDB
}

func outputDir(runDir string) string {
	return filepath.Join(runDir, cfg.Results.OutputSubdir)
}
