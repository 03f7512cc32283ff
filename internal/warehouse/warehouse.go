// Package warehouse exports evaluated runs into a DuckDB database so runs can
// be compared with SQL.
package warehouse

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"

	"github.com/signalnine/trajeval/internal/diag"
	"github.com/signalnine/trajeval/internal/metrics"
	"github.com/signalnine/trajeval/internal/result"
	"github.com/signalnine/trajeval/internal/task"
)

//go:embed schema.sql
var schemaDDL string

// Store is an open DuckDB export database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging duckdb %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Run identifies one exported run.
type Run struct {
	ID         string
	OutputDir  string
	ExportedAt time.Time
	TotalCost  float64
	CostSource string
	Metrics    metrics.RunMetrics
}

// WriteRun replaces every row of run.ID with run and its tasks and steps.
func (s *Store) WriteRun(ctx context.Context, run Run, tasks []task.Result) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning export: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"steps", "tasks", "runs"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", run.ID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	m := run.Metrics
	if _, err = tx.ExecContext(ctx, `INSERT INTO runs VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.OutputDir, run.ExportedAt.UTC(), run.TotalCost, run.CostSource,
		m.TaskCounts, m.AverageStepScoreRate, m.AverageEfficiency, m.USDEfficiency,
		m.KeyNodeCompletionRate, m.TaskSuccessRate, m.TaskNearSuccessRate,
	); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	rows := metrics.Summarize(tasks)
	for i, t := range tasks {
		r := rows[i]
		if _, err = tx.ExecContext(ctx, `INSERT INTO tasks VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, t.ID, t.Name, t.Status, r.Steps, r.FinalScore, r.ScoreRate,
			r.Numerator, r.Denominator, r.Efficiency, r.Finished, r.NearSuccess, r.Rewards,
			string(t.Evaluation),
		); err != nil {
			return fmt.Errorf("inserting task %d: %w", t.ID, err)
		}
		for j, st := range t.Steps {
			var rewardScore sql.NullFloat64
			if !st.StepReward.IsEmpty() {
				if v, perr := strconv.ParseFloat(strings.TrimSpace(st.StepReward.Score), 64); perr == nil {
					rewardScore = sql.NullFloat64{Float64: v, Valid: true}
				}
			}
			if _, err = tx.ExecContext(ctx, `INSERT INTO steps VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				run.ID, i, t.ID, j, st.StepIndex,
				st.Trace.Thought, st.Trace.ActionSummary, st.Trace.Reflection,
				st.ActionSignature, st.Selector, st.ElementValue, st.StepURL, st.Error,
				st.Score, st.ScoreRate, rewardScore, st.StepReward.Description,
				string(st.MatchResult),
			); err != nil {
				return fmt.Errorf("inserting step %d of task %d: %w", j, t.ID, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing export: %w", err)
	}
	return nil
}

// Count returns the number of rows of table that belong to runID. table is
// one of runs, tasks or steps.
func (s *Store) Count(ctx context.Context, table, runID string) (int, error) {
	switch table {
	case "runs", "tasks", "steps":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+table+" WHERE run_id = ?", runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	return n, nil
}

// DB exposes the underlying connection for ad hoc queries.
func (s *Store) DB() *sql.DB { return s.db }

// ExportDir loads the evaluated run in outputDir and writes it to the
// database at dbPath. The run id comes from the manifest when there is one.
func ExportDir(ctx context.Context, dbPath, outputDir string, rep diag.Reporter) (Run, error) {
	rep = diag.OrNop(rep)
	tasks, err := result.ReadRun(filepath.Join(outputDir, result.OutFile))
	if err != nil {
		return Run{}, err
	}

	run := Run{OutputDir: outputDir, ExportedAt: time.Now()}
	manifest, err := result.ReadManifest(filepath.Join(outputDir, result.ManifestFile))
	switch {
	case err == nil:
		run.ID = manifest.RunID
		run.TotalCost = manifest.TotalCost
		run.CostSource = manifest.CostSource
	case errors.Is(err, os.ErrNotExist):
		run.ID = uuid.NewString()
		rep.Warn("no manifest, exporting under a new run id", "run_id", run.ID)
	default:
		return Run{}, err
	}

	m, err := result.ReadMetrics(filepath.Join(outputDir, result.MetricsFile))
	switch {
	case err == nil:
		run.Metrics = m
	case errors.Is(err, os.ErrNotExist):
		run.Metrics = metrics.Compute(tasks, run.TotalCost)
	default:
		return Run{}, err
	}

	store, err := Open(ctx, dbPath)
	if err != nil {
		return Run{}, err
	}
	defer store.Close()
	if err := store.WriteRun(ctx, run, tasks); err != nil {
		return Run{}, err
	}
	rep.Info("exported run", "run_id", run.ID, "tasks", len(tasks), "db", dbPath)
	return run, nil
}
