// Package runner drives an evaluation: it aggregates every task log of a run,
// writes the canonical run document and derives the run metrics.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/signalnine/trajeval/internal/diag"
	"github.com/signalnine/trajeval/internal/metrics"
	"github.com/signalnine/trajeval/internal/result"
	"github.com/signalnine/trajeval/internal/task"
)

// ErrNoTasks is returned when a run yields no task results. The empty run
// document and the manifest are still written; result.json is not.
var ErrNoTasks = errors.New("no task results in run")

type Options struct {
	RunDir       string
	InputSubdir  string
	OutputSubdir string
	TotalCost    float64
	CostSource   string
	Workers      int
	Reporter     diag.Reporter
	// Now defaults to time.Now.
	Now func() time.Time
}

func (o *Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// InputDir is where the raw task logs of the run live.
func (o *Options) InputDir() string { return filepath.Join(o.RunDir, o.InputSubdir) }

// OutputDir is where out.json, result.json and manifest.json are written.
func (o *Options) OutputDir() string { return filepath.Join(o.RunDir, o.OutputSubdir) }

type Outcome struct {
	OutputDir string
	Tasks     []task.Result
	// Metrics is nil when the run produced no tasks.
	Metrics  *metrics.RunMetrics
	Manifest *result.Manifest
	// Skipped collects the per-file failures, nil when every log was read.
	Skipped error
}

// Aggregation is the outcome of reading one directory of task logs.
type Aggregation struct {
	Tasks     []task.Result
	Processed []string
	Skipped   []result.SkippedFile
	Err       error
}

// TaskFiles lists the *.json files of dir in name order.
func TaskFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading input dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		files = append(files, e.Name())
	}
	return files, nil
}

// AggregateDir turns every task log in dir into a TaskResult. A file that
// cannot be read is reported, recorded as skipped and does not stop the run.
// Results are sorted by task id regardless of completion order.
func AggregateDir(ctx context.Context, dir string, workers int, rep diag.Reporter) (*Aggregation, error) {
	rep = diag.OrNop(rep)
	files, err := TaskFiles(dir)
	if err != nil {
		return nil, err
	}

	type loaded struct {
		res task.Result
		err error
	}
	out := make([]loaded, len(files))
	jobs := make([]Job, len(files))
	for i, name := range files {
		jobs[i] = func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := task.LoadFile(filepath.Join(dir, name), rep)
			out[i] = loaded{res: res, err: err}
			return nil
		}
	}
	if errs := RunPool(workers, jobs); len(errs) > 0 {
		return nil, errs[0]
	}

	agg := &Aggregation{
		Processed: []string{},
		Skipped:   []result.SkippedFile{},
	}
	var merr *multierror.Error
	for i, l := range out {
		if l.err != nil {
			rep.Warn("skipping task log", "file", files[i], "error", l.err.Error())
			agg.Skipped = append(agg.Skipped, result.SkippedFile{File: files[i], Reason: l.err.Error()})
			merr = multierror.Append(merr, l.err)
			continue
		}
		rep.Debug("aggregated task", "file", files[i], "task_id", l.res.ID, "steps", len(l.res.Steps))
		agg.Processed = append(agg.Processed, files[i])
		agg.Tasks = append(agg.Tasks, l.res)
	}
	task.Sort(agg.Tasks)
	agg.Err = merr.ErrorOrNil()
	return agg, nil
}

// Evaluate runs the whole pipeline for one run directory. A missing or
// unreadable input directory is the only fatal error; an empty run returns
// the outcome together with ErrNoTasks.
func Evaluate(ctx context.Context, opts Options) (*Outcome, error) {
	rep := diag.OrNop(opts.Reporter)
	started := opts.now()
	inputDir := opts.InputDir()

	info, err := os.Stat(inputDir)
	if err != nil {
		return nil, fmt.Errorf("reading input dir %s: %w", inputDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input %s is not a directory", inputDir)
	}

	agg, err := AggregateDir(ctx, inputDir, opts.Workers, rep)
	if err != nil {
		return nil, err
	}

	outDir := opts.OutputDir()
	if err := result.EnsureOutputDir(outDir); err != nil {
		return nil, err
	}
	if _, err := result.WriteRun(outDir, agg.Tasks); err != nil {
		return nil, err
	}

	manifest := result.NewManifest(inputDir, started)
	manifest.Processed = agg.Processed
	manifest.Skipped = agg.Skipped
	manifest.TotalCost = opts.TotalCost
	manifest.CostSource = opts.CostSource

	outcome := &Outcome{
		OutputDir: outDir,
		Tasks:     agg.Tasks,
		Manifest:  manifest,
		Skipped:   agg.Err,
	}

	if len(agg.Tasks) == 0 {
		rep.Warn("no task results, skipping run metrics", "input_dir", inputDir, "skipped", len(agg.Skipped))
		if err := removeStaleMetrics(outDir); err != nil {
			return nil, err
		}
		manifest.FinishedAt = opts.now().UTC()
		if err := result.WriteManifest(outDir, manifest); err != nil {
			return nil, err
		}
		return outcome, ErrNoTasks
	}

	m := metrics.Compute(agg.Tasks, opts.TotalCost)
	if _, err := result.WriteMetrics(outDir, m); err != nil {
		return nil, err
	}
	outcome.Metrics = &m

	manifest.FinishedAt = opts.now().UTC()
	if err := result.WriteManifest(outDir, manifest); err != nil {
		return nil, err
	}
	rep.Info("run evaluated",
		"tasks", len(agg.Tasks),
		"skipped", len(agg.Skipped),
		"task_success_rate", m.TaskSuccessRate,
		"output_dir", outDir,
	)
	return outcome, nil
}

// removeStaleMetrics deletes a result.json left over from an earlier run.
func removeStaleMetrics(outDir string) error {
	err := os.Remove(filepath.Join(outDir, result.MetricsFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale %s: %w", result.MetricsFile, err)
	}
	return nil
}

// Rescore recomputes result.json from an existing out.json with a new total
// cost. The manifest, when present, is updated with the new cost.
func Rescore(outDir string, totalCost float64, costSource string, rep diag.Reporter) (*Outcome, error) {
	rep = diag.OrNop(rep)
	tasks, err := result.ReadRun(filepath.Join(outDir, result.OutFile))
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{OutputDir: outDir, Tasks: tasks}
	if len(tasks) == 0 {
		rep.Warn("run document has no tasks", "output_dir", outDir)
		if err := removeStaleMetrics(outDir); err != nil {
			return nil, err
		}
		return outcome, ErrNoTasks
	}

	m := metrics.Compute(tasks, totalCost)
	if _, err := result.WriteMetrics(outDir, m); err != nil {
		return nil, err
	}
	outcome.Metrics = &m

	manifestPath := filepath.Join(outDir, result.ManifestFile)
	manifest, err := result.ReadManifest(manifestPath)
	switch {
	case err == nil:
		manifest.TotalCost = totalCost
		manifest.CostSource = costSource
		if err := result.WriteManifest(outDir, manifest); err != nil {
			return nil, err
		}
		outcome.Manifest = manifest
	case errors.Is(err, os.ErrNotExist):
		rep.Debug("no manifest to update", "path", manifestPath)
	default:
		rep.Warn("manifest not updated", "path", manifestPath, "error", err.Error())
	}
	rep.Info("run rescored", "tasks", len(tasks), "total_cost", totalCost)
	return outcome, nil
}
