package cmd_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalnine/trajeval/cmd"
	"github.com/signalnine/trajeval/internal/metrics"
	"github.com/signalnine/trajeval/internal/result"
)

func writeLog(t *testing.T, runDir, name, status string, scores ...string) {
	t.Helper()
	var steps []map[string]any
	for i, s := range scores {
		steps = append(steps, map[string]any{
			"step_index":     i,
			"current_trace":  "{'thought': 'look', 'action': 'click the button'}",
			"execute_action": fmt.Sprintf("{'action_type': <ActionType.CLICK: 1>, 'element_id': '%d'}", i),
			"score":          s,
			"step_reward":    "{}",
		})
	}
	data, err := json.Marshal(map[string]any{"task_name": name, "status": status, "step_list": steps})
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(runDir, "json_result")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := cmd.NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func readMetrics(t *testing.T, runDir string) metrics.RunMetrics {
	t.Helper()
	m, err := result.ReadMetrics(filepath.Join(runDir, "result", result.MetricsFile))
	if err != nil {
		t.Fatalf("reading metrics: %v", err)
	}
	return m
}

func TestEvaluatePrintsReport(t *testing.T) {
	runDir := t.TempDir()
	writeLog(t, runDir, "1_a.json", "finished", "1/4", "4/4")
	writeLog(t, runDir, "2_b.json", "running", "1/4")

	out, err := execute(t, "evaluate", runDir, "--total-cost", "2", "--workers", "2")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !strings.Contains(out, "task success rate") {
		t.Errorf("expected report in output:\n%s", out)
	}
	m := readMetrics(t, runDir)
	if m.TaskCounts != 2 {
		t.Errorf("task_counts: got %d, want 2", m.TaskCounts)
	}
	if m.TaskSuccessRate != 0.5 {
		t.Errorf("task_success_rate: got %v, want 0.5", m.TaskSuccessRate)
	}
	manifest, err := result.ReadManifest(filepath.Join(runDir, "result", result.ManifestFile))
	if err != nil {
		t.Fatal(err)
	}
	if manifest.TotalCost != 2 || manifest.CostSource != "flag" {
		t.Errorf("manifest cost: got %v from %q", manifest.TotalCost, manifest.CostSource)
	}
}

func TestEvaluateEmptyRunSucceeds(t *testing.T) {
	runDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(runDir, "json_result"), 0o755); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "evaluate", runDir)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !strings.Contains(out, "No task results") {
		t.Errorf("expected empty-run notice, got:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(runDir, "result", result.OutFile)); err != nil {
		t.Errorf("expected out.json: %v", err)
	}
}

func TestEvaluateMissingInputFails(t *testing.T) {
	if _, err := execute(t, "evaluate", t.TempDir()); err == nil {
		t.Error("expected error for a run without json_result")
	}
}

func TestEvaluateRejectsNegativeCost(t *testing.T) {
	runDir := t.TempDir()
	writeLog(t, runDir, "1_a.json", "finished", "1/1")
	if _, err := execute(t, "evaluate", runDir, "--total-cost", "-1"); err == nil {
		t.Error("expected error for negative cost")
	}
}

func TestRescoreUpdatesCost(t *testing.T) {
	runDir := t.TempDir()
	writeLog(t, runDir, "1_a.json", "finished", "2/4", "4/4")
	if _, err := execute(t, "evaluate", runDir); err != nil {
		t.Fatal(err)
	}
	if got := readMetrics(t, runDir).USDEfficiency; got != 0 {
		t.Errorf("usd efficiency without cost: got %v, want 0", got)
	}

	if _, err := execute(t, "rescore", runDir, "--total-cost", "4", "--format", "json"); err != nil {
		t.Fatalf("rescore: %v", err)
	}
	if got := readMetrics(t, runDir).USDEfficiency; got != 1 {
		t.Errorf("usd efficiency: got %v, want 1", got)
	}
}

func TestReportFormats(t *testing.T) {
	runDir := t.TempDir()
	writeLog(t, runDir, "4_search.json", "finished", "1/1")
	if _, err := execute(t, "evaluate", runDir); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "report", runDir, "--format", "markdown")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.Contains(out, "| task_counts | 1 |") {
		t.Errorf("expected markdown metrics:\n%s", out)
	}
	if _, err := execute(t, "report", runDir, "--format", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestListShowsTaskIDs(t *testing.T) {
	runDir := t.TempDir()
	writeLog(t, runDir, "12_flight.json", "finished", "1/1")
	writeLog(t, runDir, "notes.json", "finished")

	out, err := execute(t, "list", runDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "12_flight.json") || !strings.Contains(out, "notes.json (skipped: no task id)") {
		t.Errorf("unexpected list output:\n%s", out)
	}
	if !strings.Contains(out, "2 task log(s), 1 without a task id") {
		t.Errorf("expected totals line:\n%s", out)
	}
}

func TestExportRequiresDatabase(t *testing.T) {
	if _, err := execute(t, "export", t.TempDir()); err == nil {
		t.Error("expected error without --duckdb")
	}
}

func TestExplicitConfigMustExist(t *testing.T) {
	root := cmd.NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml"), "list", t.TempDir()})
	if err := root.Execute(); err == nil {
		t.Error("expected error for a missing explicit config")
	}
}

func TestConfigSubdirs(t *testing.T) {
	runDir := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "trajeval.yaml")
	cfgYAML := "results:\n  input_subdir: logs\n  output_subdir: evaluated\nworkers: 2\n"
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	logs := filepath.Join(runDir, "logs")
	if err := os.MkdirAll(logs, 0o755); err != nil {
		t.Fatal(err)
	}
	data := `{"task_name": "t", "status": "finished", "step_list": [{"step_index": 0, "score": "1/1"}]}`
	if err := os.WriteFile(filepath.Join(logs, "5_t.json"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	root := cmd.NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfgPath, "evaluate", runDir})
	if err := root.Execute(); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(runDir, "evaluated", result.MetricsFile)); err != nil {
		t.Errorf("expected metrics under the configured output dir: %v", err)
	}
}

func TestConfigEnvFileIsValidated(t *testing.T) {
	t.Setenv("TRAJEVAL_WORKERS", "")
	os.Unsetenv("TRAJEVAL_WORKERS")

	dir := t.TempDir()
	envPath := filepath.Join(dir, "secrets.env")
	if err := os.WriteFile(envPath, []byte("TRAJEVAL_WORKERS=-2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "trajeval.yaml")
	if err := os.WriteFile(cfgPath, []byte("secrets:\n  env_file: "+envPath+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	root := cmd.NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfgPath, "list", t.TempDir()})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "workers") {
		t.Errorf("expected workers validation error, got %v", err)
	}
}
