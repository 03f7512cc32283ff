package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/signalnine/trajeval/internal/runner"
	"github.com/signalnine/trajeval/internal/task"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <run-dir>",
		Short: "List the task logs of a run and their task ids",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputDir := filepath.Join(args[0], cfg.Results.InputSubdir)
			files, err := runner.TaskFiles(inputDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Task logs in %s:\n", inputDir)
			skipped := 0
			for _, name := range files {
				id, err := task.IDFromFilename(name)
				if err != nil {
					skipped++
					fmt.Fprintf(out, "  %-6s %s (skipped: no task id)\n", "-", name)
					continue
				}
				fmt.Fprintf(out, "  %-6d %s\n", id, name)
			}
			fmt.Fprintf(out, "\n%d task log(s), %d without a task id\n", len(files), skipped)
			return nil
		},
	}
}
