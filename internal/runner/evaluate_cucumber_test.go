//go:build cucumber

package runner_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/signalnine/trajeval/internal/result"
	"github.com/signalnine/trajeval/internal/runner"
)

// TestEvaluateScenarios runs the evaluation feature scenarios.
func TestEvaluateScenarios(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "evaluate",
		ScenarioInitializer: InitializeEvaluateScenario,
		Options: &godog.Options{
			Format:    "pretty",
			Paths:     []string{filepath.Join("features", "evaluate.feature")},
			Strict:    true,
			TestingT:  t,
			Randomize: 0,
		},
	}
	if suite.Run() != 0 {
		t.Fatalf("non-zero godog status")
	}
}

// InitializeEvaluateScenario wires steps for the evaluation feature.
func InitializeEvaluateScenario(ctx *godog.ScenarioContext) {
	state := &evaluateState{}
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		state.reset()
		return ctx, nil
	})
	ctx.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		state.cleanup()
		return ctx, err
	})

	ctx.Step(`^an empty run directory$`, state.givenEmptyRunDirectory)
	ctx.Step(`^a task log "([^"]+)" with status "([^"]+)" and step scores:$`, state.givenTaskLog)
	ctx.Step(`^a malformed task log "([^"]+)"$`, state.givenMalformedTaskLog)
	ctx.Step(`^a total cost of ([0-9.]+)$`, state.givenTotalCost)
	ctx.Step(`^the run is evaluated$`, state.whenTheRunIsEvaluated)
	ctx.Step(`^the run document lists task ids ([\d,]+)$`, state.thenRunDocumentListsTaskIDs)
	ctx.Step(`^the result reports ([a-z_]+) of (\d+)/(\d+)$`, state.thenResultReportsFraction)
	ctx.Step(`^the result reports ([a-z_]+) of (\d+)$`, state.thenResultReportsCount)
	ctx.Step(`^(\d+) task logs? (?:is|are) reported as skipped$`, state.thenSkipped)
	ctx.Step(`^the run is reported as empty$`, state.thenRunIsEmpty)
	ctx.Step(`^no result document is written$`, state.thenNoResultDocument)
}

// evaluateState holds scenario state for the evaluation feature.
type evaluateState struct {
	runDir  string
	cost    float64
	outcome *runner.Outcome
	err     error
}

func (s *evaluateState) reset() {
	s.cleanup()
	s.runDir = ""
	s.cost = 0
	s.outcome = nil
	s.err = nil
}

func (s *evaluateState) cleanup() {
	if s.runDir != "" {
		_ = os.RemoveAll(s.runDir)
	}
}

func (s *evaluateState) inputDir() string  { return filepath.Join(s.runDir, "json_result") }
func (s *evaluateState) outputDir() string { return filepath.Join(s.runDir, "result") }

func (s *evaluateState) givenEmptyRunDirectory() error {
	dir, err := os.MkdirTemp("", "trajeval-run-*")
	if err != nil {
		return err
	}
	s.runDir = dir
	return os.MkdirAll(s.inputDir(), 0o755)
}

func (s *evaluateState) givenTaskLog(name, status string, table *godog.Table) error {
	var steps []map[string]any
	for i, row := range table.Rows {
		if i == 0 {
			continue
		}
		steps = append(steps, map[string]any{
			"step_index":     i - 1,
			"current_trace":  "{'thought': 'continue', 'action': 'click next'}",
			"execute_action": "{'action_type': <ActionType.CLICK: 1>, 'element_id': '3'}",
			"score":          row.Cells[0].Value,
			"step_reward":    "{}",
		})
	}
	data, err := json.Marshal(map[string]any{
		"task_name": name,
		"status":    status,
		"step_list": steps,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.inputDir(), name), data, 0o644)
}

func (s *evaluateState) givenMalformedTaskLog(name string) error {
	return os.WriteFile(filepath.Join(s.inputDir(), name), []byte(`{"task_name": `), 0o644)
}

func (s *evaluateState) givenTotalCost(cost float64) error {
	s.cost = cost
	return nil
}

func (s *evaluateState) whenTheRunIsEvaluated() error {
	s.outcome, s.err = runner.Evaluate(context.Background(), runner.Options{
		RunDir:       s.runDir,
		InputSubdir:  "json_result",
		OutputSubdir: "result",
		TotalCost:    s.cost,
		CostSource:   runner.CostFromFlag,
		Workers:      2,
	})
	if s.err != nil && !errors.Is(s.err, runner.ErrNoTasks) {
		return s.err
	}
	return nil
}

func (s *evaluateState) thenRunDocumentListsTaskIDs(list string) error {
	tasks, err := result.ReadRun(filepath.Join(s.outputDir(), result.OutFile))
	if err != nil {
		return err
	}
	var got []string
	for _, t := range tasks {
		got = append(got, strconv.Itoa(t.ID))
	}
	if strings.Join(got, ",") != list {
		return fmt.Errorf("task ids: got %s, want %s", strings.Join(got, ","), list)
	}
	return nil
}

func (s *evaluateState) metric(key string) (float64, error) {
	data, err := os.ReadFile(filepath.Join(s.outputDir(), result.MetricsFile))
	if err != nil {
		return 0, err
	}
	var doc map[string]float64
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, err
	}
	v, ok := doc[key]
	if !ok {
		return 0, fmt.Errorf("result document has no %s", key)
	}
	return v, nil
}

func (s *evaluateState) thenResultReportsFraction(key string, num, den int) error {
	got, err := s.metric(key)
	if err != nil {
		return err
	}
	want := float64(num) / float64(den)
	if math.Abs(got-want) > 1e-9 {
		return fmt.Errorf("%s: got %v, want %v", key, got, want)
	}
	return nil
}

func (s *evaluateState) thenResultReportsCount(key string, want int) error {
	got, err := s.metric(key)
	if err != nil {
		return err
	}
	if got != float64(want) {
		return fmt.Errorf("%s: got %v, want %d", key, got, want)
	}
	return nil
}

func (s *evaluateState) thenSkipped(n int) error {
	if s.outcome == nil || s.outcome.Manifest == nil {
		return fmt.Errorf("run was not evaluated")
	}
	if got := len(s.outcome.Manifest.Skipped); got != n {
		return fmt.Errorf("skipped: got %d, want %d", got, n)
	}
	return nil
}

func (s *evaluateState) thenRunIsEmpty() error {
	if !errors.Is(s.err, runner.ErrNoTasks) {
		return fmt.Errorf("expected an empty run, got %v", s.err)
	}
	return nil
}

func (s *evaluateState) thenNoResultDocument() error {
	_, err := os.Stat(filepath.Join(s.outputDir(), result.MetricsFile))
	if err == nil {
		return fmt.Errorf("%s was written", result.MetricsFile)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
