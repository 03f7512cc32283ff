package warehouse_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/trajeval/internal/diag"
	"github.com/signalnine/trajeval/internal/metrics"
	"github.com/signalnine/trajeval/internal/result"
	"github.com/signalnine/trajeval/internal/step"
	"github.com/signalnine/trajeval/internal/task"
	"github.com/signalnine/trajeval/internal/warehouse"
)

func sampleTasks() []task.Result {
	return []task.Result{
		{ID: 1, Name: "book flight", Status: "finished", Evaluation: json.RawMessage(`[]`), Steps: []step.Record{
			{StepIndex: 0, ActionSignature: "goto[https://a.test]", Score: "1/2", ScoreRate: 0.5, MatchResult: json.RawMessage("null")},
			{StepIndex: 1, ActionSignature: "click[2]", Score: "1/2", ScoreRate: 0.5,
				StepReward: step.Reward{Score: "high", Description: "on track"}, MatchResult: json.RawMessage("null")},
			{StepIndex: 2, ActionSignature: "click[4]", Score: "2/2", ScoreRate: 1,
				StepReward: step.Reward{Score: "10", Description: "finished"}, MatchResult: json.RawMessage(`{"ok": true}`)},
		}},
		{ID: 2, Name: "empty", Status: "running", Evaluation: json.RawMessage(`[]`), Steps: []step.Record{}},
	}
}

func TestWriteRunReplacesRows(t *testing.T) {
	ctx := context.Background()
	store, err := warehouse.Open(ctx, filepath.Join(t.TempDir(), "runs.duckdb"))
	require.NoError(t, err)
	defer store.Close()

	tasks := sampleTasks()
	run := warehouse.Run{
		ID:         "run-1",
		OutputDir:  "/runs/a/result",
		ExportedAt: time.Now(),
		TotalCost:  2,
		Metrics:    metrics.Compute(tasks, 2),
	}
	require.NoError(t, store.WriteRun(ctx, run, tasks))
	require.NoError(t, store.WriteRun(ctx, run, tasks))

	for table, want := range map[string]int{"runs": 1, "tasks": 2, "steps": 3} {
		n, err := store.Count(ctx, table, "run-1")
		require.NoError(t, err)
		assert.Equal(t, want, n, table)
	}

	var action string
	var reward float64
	require.NoError(t, store.DB().QueryRowContext(ctx,
		"SELECT action, reward_score FROM steps WHERE run_id = ? AND reward_score IS NOT NULL", "run-1",
	).Scan(&action, &reward))
	assert.Equal(t, "click[4]", action)
	assert.Equal(t, 10.0, reward)

	var description string
	require.NoError(t, store.DB().QueryRowContext(ctx,
		"SELECT reward_description FROM steps WHERE run_id = ? AND action = 'click[2]' AND reward_score IS NULL", "run-1",
	).Scan(&description))
	assert.Equal(t, "on track", description)

	var rate float64
	require.NoError(t, store.DB().QueryRowContext(ctx,
		"SELECT task_success_rate FROM runs WHERE run_id = ?", "run-1").Scan(&rate))
	assert.Equal(t, 0.5, rate)

	_, err = store.Count(ctx, "users; DROP TABLE runs", "run-1")
	assert.Error(t, err)
}

func TestExportDir(t *testing.T) {
	ctx := context.Background()
	outDir := t.TempDir()
	tasks := sampleTasks()
	_, err := result.WriteRun(outDir, tasks)
	require.NoError(t, err)
	manifest := result.NewManifest("/runs/a/json_result", time.Now())
	manifest.TotalCost = 1
	require.NoError(t, result.WriteManifest(outDir, manifest))

	dbPath := filepath.Join(t.TempDir(), "runs.duckdb")
	run, err := warehouse.ExportDir(ctx, dbPath, outDir, nil)
	require.NoError(t, err)
	assert.Equal(t, manifest.RunID, run.ID)
	assert.Equal(t, 2, run.Metrics.TaskCounts)
	assert.Equal(t, 0.5, run.Metrics.USDEfficiency)

	store, err := warehouse.Open(ctx, dbPath)
	require.NoError(t, err)
	defer store.Close()
	n, err := store.Count(ctx, "tasks", manifest.RunID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestExportDirWithoutManifest(t *testing.T) {
	outDir := t.TempDir()
	_, err := result.WriteRun(outDir, sampleTasks())
	require.NoError(t, err)
	rec := diag.NewRecorder()

	run, err := warehouse.ExportDir(context.Background(), filepath.Join(t.TempDir(), "x.duckdb"), outDir, rec)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.True(t, rec.Has(diag.LevelWarn, "no manifest"))
}

func TestExportDirMissingRun(t *testing.T) {
	_, err := warehouse.ExportDir(context.Background(), filepath.Join(t.TempDir(), "x.duckdb"), t.TempDir(), nil)
	assert.Error(t, err)
}
