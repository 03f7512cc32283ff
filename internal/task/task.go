// Package task aggregates one raw task log into a TaskResult.
package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/signalnine/trajeval/internal/diag"
	"github.com/signalnine/trajeval/internal/rawlog"
	"github.com/signalnine/trajeval/internal/step"
)

// StatusFinished is the task status that counts as a successful run.
const StatusFinished = "finished"

// Defaults for task documents with missing metadata.
const (
	UnknownName   = "Unknown Task"
	UnknownStatus = "Unknown Status"
	EmptyScore    = "0/0"
)

// ErrNoTaskID is returned when a log file name does not start with a task id.
var ErrNoTaskID = errors.New("file name has no leading task id")

// Result is one evaluated task.
type Result struct {
	ID         int             `json:"task_id"`
	Name       string          `json:"task_name"`
	Status     string          `json:"task_status"`
	Steps      []step.Record   `json:"step_list"`
	Evaluation json.RawMessage `json:"evaluation"`

	// ReferenceLength is the expected trajectory length from the raw log.
	ReferenceLength int `json:"-"`
	// Source is the base name of the log file the task was read from.
	Source string `json:"-"`
}

// FinalScore is the last step's score, or "0/0" for a task without steps.
func (r Result) FinalScore() string {
	if len(r.Steps) == 0 {
		return EmptyScore
	}
	return r.Steps[len(r.Steps)-1].Score
}

// FinalScoreRate is the last step's score rate, or 0 for a task without steps.
func (r Result) FinalScoreRate() float64 {
	if len(r.Steps) == 0 {
		return 0
	}
	return r.Steps[len(r.Steps)-1].ScoreRate
}

// Finished reports whether the task ended with the finished status.
func (r Result) Finished() bool { return r.Status == StatusFinished }

// Aggregate builds the TaskResult for a decoded task document. It never
// fails; missing metadata falls back to the Unknown* defaults.
func Aggregate(doc rawlog.TaskDocument, id int, rep diag.Reporter) Result {
	rep = diag.OrNop(rep)
	res := Result{
		ID:         id,
		Name:       orDefault(doc.TaskName, UnknownName),
		Status:     orDefault(doc.Status, UnknownStatus),
		Steps:      make([]step.Record, 0, len(doc.StepList)),
		Evaluation: doc.Evaluation(),
	}
	if n, ok := doc.ReferenceTaskLength.Int(); ok {
		res.ReferenceLength = n
	}
	for _, entry := range doc.StepList {
		res.Steps = append(res.Steps, step.Parse(entry, rep))
	}
	if len(res.Steps) == 0 {
		rep.Warn("task has no steps", "task_id", id, "task_name", res.Name)
	}
	return res
}

func orDefault(f rawlog.Field, def string) string {
	if !f.Present() {
		return def
	}
	return f.String()
}

// LoadFile reads, decodes and aggregates one task log file.
func LoadFile(path string, rep diag.Reporter) (Result, error) {
	base := filepath.Base(path)
	id, err := IDFromFilename(base)
	if err != nil {
		return Result{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("reading %s: %w", base, err)
	}
	doc, err := rawlog.Decode(data)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", base, err)
	}
	res := Aggregate(doc, id, rep)
	res.Source = base
	return res, nil
}

// IDFromFilename parses the leading numeric token of a log file name:
// "12_search_flights.json" is task 12.
func IDFromFilename(name string) (int, error) {
	name = filepath.Base(name)
	end := 0
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}
	if end == 0 || end == len(name) || (name[end] != '_' && name[end] != '.') {
		return 0, fmt.Errorf("%q: %w", name, ErrNoTaskID)
	}
	id, err := strconv.Atoi(name[:end])
	if err != nil {
		return 0, fmt.Errorf("%q: %w", name, ErrNoTaskID)
	}
	return id, nil
}

// Sort orders tasks ascending by id. Tasks sharing an id keep both entries,
// ordered by source file name.
func Sort(tasks []Result) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].ID != tasks[j].ID {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].Source < tasks[j].Source
	})
}
