package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/trajeval/internal/report"
	"github.com/signalnine/trajeval/internal/runner"
)

func newRescoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rescore <run-dir>",
		Short: "Recompute a run's metrics from its existing run document",
		Long:  "Read <run-dir>/result/out.json and rewrite result.json, typically with a corrected --total-cost. Task logs are not re-read.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cost, source, err := resolveCost(cmd)
			if err != nil {
				return err
			}
			outDir := outputDir(args[0])
			if _, err := runner.Rescore(outDir, cost, source, reporter); err != nil {
				if errors.Is(err, runner.ErrNoTasks) {
					fmt.Fprintf(cmd.OutOrStdout(), "No task results in %s\n", outDir)
					return nil
				}
				return err
			}
			return report.Generate(outDir, report.Options{Format: flagFormat, Color: flagColor}, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Float64Var(&flagTotalCost, "total-cost", 0, "total USD cost of the run (overrides config)")
	cmd.Flags().StringVar(&flagFormat, "format", "table", "report format (table, markdown, json)")
	cmd.Flags().BoolVar(&flagColor, "color", false, "style the table report for a terminal")
	return cmd
}
