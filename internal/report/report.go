package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/signalnine/trajeval/internal/metrics"
	"github.com/signalnine/trajeval/internal/result"
)

// Output formats.
const (
	FormatTable    = "table"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

type Options struct {
	Format string
	// Color enables terminal styling of the table format.
	Color bool
}

// Run is everything a report shows about one evaluated run.
type Run struct {
	OutputDir string                `json:"output_dir"`
	Tasks     []metrics.TaskSummary `json:"tasks"`
	Metrics   metrics.RunMetrics    `json:"metrics"`
	Skipped   []result.SkippedFile  `json:"skipped"`
	TotalCost float64               `json:"total_cost"`
}

// Load reads an evaluated run from its output directory. result.json and
// manifest.json are optional; missing metrics are recomputed from out.json.
func Load(outputDir string) (*Run, error) {
	tasks, err := result.ReadRun(filepath.Join(outputDir, result.OutFile))
	if err != nil {
		return nil, err
	}
	run := &Run{
		OutputDir: outputDir,
		Tasks:     metrics.Summarize(tasks),
		Skipped:   []result.SkippedFile{},
	}

	manifest, err := result.ReadManifest(filepath.Join(outputDir, result.ManifestFile))
	switch {
	case err == nil:
		run.Skipped = manifest.Skipped
		run.TotalCost = manifest.TotalCost
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	m, err := result.ReadMetrics(filepath.Join(outputDir, result.MetricsFile))
	switch {
	case err == nil:
		run.Metrics = m
	case errors.Is(err, os.ErrNotExist):
		run.Metrics = metrics.Compute(tasks, run.TotalCost)
	default:
		return nil, err
	}
	return run, nil
}

// Generate reads the run in outputDir and writes a summary report.
func Generate(outputDir string, opts Options, w io.Writer) error {
	run, err := Load(outputDir)
	if err != nil {
		return err
	}
	return Write(run, opts, w)
}

// Write renders run in the requested format.
func Write(run *Run, opts Options, w io.Writer) error {
	switch opts.Format {
	case FormatMarkdown:
		return writeMarkdown(run, w)
	case FormatJSON:
		return writeJSON(run, w)
	case FormatTable, "":
		return writeTable(run, w, opts.Color)
	default:
		return fmt.Errorf("unknown report format %q", opts.Format)
	}
}

func stylize(text string, color bool, c lipgloss.Color) string {
	if !color {
		return text
	}
	return lipgloss.NewStyle().Foreground(c).Bold(true).Render(text)
}

func writeTable(run *Run, w io.Writer, color bool) error {
	fmt.Fprintln(w, stylize("Run "+run.OutputDir, color, lipgloss.Color("33")))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tNAME\tSTATUS\tSTEPS\tFINAL SCORE\tRATE\tEFFICIENCY\tREWARDS")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, s := range run.Tasks {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%.3f\t%.3f\t%d\n",
			s.TaskID, truncate(s.TaskName, 40), s.Status, s.Steps, s.FinalScore, s.ScoreRate, s.Efficiency, s.Rewards)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	m := run.Metrics
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "tasks\t%d\n", m.TaskCounts)
	fmt.Fprintf(tw, "task success rate\t%.0f%%\n", m.TaskSuccessRate*100)
	fmt.Fprintf(tw, "task near success rate\t%.0f%%\n", m.TaskNearSuccessRate*100)
	fmt.Fprintf(tw, "key node completion rate\t%.4f\n", m.KeyNodeCompletionRate)
	fmt.Fprintf(tw, "average step score rate\t%.4f\n", m.AverageStepScoreRate)
	fmt.Fprintf(tw, "average efficiency score\t%.4f\n", m.AverageEfficiency)
	fmt.Fprintf(tw, "usd efficiency score\t$%.4f\n", m.USDEfficiency)
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(run.Skipped) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, stylize(fmt.Sprintf("%d task log(s) skipped", len(run.Skipped)), color, lipgloss.Color("196")))
		for _, s := range run.Skipped {
			fmt.Fprintf(w, "  %s: %s\n", s.File, s.Reason)
		}
	}
	return nil
}

func writeMarkdown(run *Run, w io.Writer) error {
	fmt.Fprintln(w, "| Task | Name | Status | Steps | Final Score | Rate | Efficiency | Rewards |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|")
	for _, s := range run.Tasks {
		fmt.Fprintf(w, "| %d | %s | %s | %d | %s | %.3f | %.3f | %d |\n",
			s.TaskID, escapePipes(s.TaskName), s.Status, s.Steps, s.FinalScore, s.ScoreRate, s.Efficiency, s.Rewards)
	}
	m := run.Metrics
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Metric | Value |")
	fmt.Fprintln(w, "|---|---|")
	fmt.Fprintf(w, "| task_counts | %d |\n", m.TaskCounts)
	fmt.Fprintf(w, "| task_success_rate | %.4f |\n", m.TaskSuccessRate)
	fmt.Fprintf(w, "| task_near_success_rate | %.4f |\n", m.TaskNearSuccessRate)
	fmt.Fprintf(w, "| key_node_completion_rate | %.4f |\n", m.KeyNodeCompletionRate)
	fmt.Fprintf(w, "| average_step_score_rate | %.4f |\n", m.AverageStepScoreRate)
	fmt.Fprintf(w, "| average_efficiency_score | %.4f |\n", m.AverageEfficiency)
	fmt.Fprintf(w, "| usd_efficiency_score | %.4f |\n", m.USDEfficiency)
	return nil
}

func writeJSON(run *Run, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
