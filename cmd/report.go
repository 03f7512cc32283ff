package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/signalnine/trajeval/internal/report"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <run-dir>",
		Short: "Summarize an evaluated run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := filepath.EvalSymlinks(args[0])
			if err != nil {
				return fmt.Errorf("resolving run dir: %w", err)
			}
			return report.Generate(outputDir(resolved), report.Options{Format: flagFormat, Color: flagColor}, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	cmd.Flags().BoolVar(&flagColor, "color", false, "style the table report for a terminal")
	return cmd
}
