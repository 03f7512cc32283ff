// Package metrics rolls a run's task results up into run-level quality and
// cost-efficiency metrics.
package metrics

import (
	"math"

	"github.com/signalnine/trajeval/internal/step"
	"github.com/signalnine/trajeval/internal/task"
)

// RunMetrics is the flat run-level result document. It is always recomputed
// from the full task collection; values are not rounded.
type RunMetrics struct {
	TaskCounts            int     `json:"task_counts"`
	AverageStepScoreRate  float64 `json:"average_step_score_rate"`
	AverageEfficiency     float64 `json:"average_efficiency_score"`
	USDEfficiency         float64 `json:"usd_efficiency_score"`
	KeyNodeCompletionRate float64 `json:"key_node_completion_rate"`
	TaskSuccessRate       float64 `json:"task_success_rate"`
	TaskNearSuccessRate   float64 `json:"task_near_success_rate"`
}

// TaskSummary holds the per-task values the run metrics are built from.
type TaskSummary struct {
	TaskID      int     `json:"task_id"`
	TaskName    string  `json:"task_name"`
	Status      string  `json:"task_status"`
	Steps       int     `json:"steps"`
	FinalScore  string  `json:"final_score"`
	ScoreRate   float64 `json:"final_score_rate"`
	Numerator   float64 `json:"score_numerator"`
	Denominator float64 `json:"score_denominator"`
	Efficiency  float64 `json:"efficiency_score"`
	Finished    bool    `json:"finished"`
	NearSuccess bool    `json:"near_success"`
	Rewards     int     `json:"rewarded_steps"`
}

// Summarize derives one summary row per task, in input order. A final score
// that cannot be parsed contributes 0/0; an "n/0" score still contributes n.
func Summarize(tasks []task.Result) []TaskSummary {
	out := make([]TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		s := TaskSummary{
			TaskID:     t.ID,
			TaskName:   t.Name,
			Status:     t.Status,
			Steps:      len(t.Steps),
			FinalScore: t.FinalScore(),
			ScoreRate:  finite(t.FinalScoreRate()),
			Finished:   t.Finished(),
		}
		if num, den, ok := step.SplitScore(s.FinalScore); ok {
			s.Numerator, s.Denominator = num, den
		}
		if s.Numerator != 0 {
			s.Efficiency = finite(float64(s.Steps) / s.Numerator)
		}
		s.NearSuccess = s.Denominator != 0 && s.Denominator-s.Numerator == 1
		for _, r := range t.Steps {
			if !r.StepReward.IsEmpty() {
				s.Rewards++
			}
		}
		out = append(out, s)
	}
	return out
}

// Compute derives the run metrics for tasks and the run's total cost.
func Compute(tasks []task.Result, totalCost float64) RunMetrics {
	rows := Summarize(tasks)
	m := RunMetrics{TaskCounts: len(rows)}
	if len(rows) == 0 {
		return m
	}

	var sumNum, sumDen, sumRate, sumEff float64
	var finished, near int
	for _, r := range rows {
		sumNum += r.Numerator
		sumDen += r.Denominator
		sumRate += r.ScoreRate
		sumEff += r.Efficiency
		if r.Finished {
			finished++
		}
		if r.NearSuccess {
			near++
		}
	}
	n := float64(len(rows))
	m.KeyNodeCompletionRate = ratio(sumNum, sumDen)
	m.TaskSuccessRate = float64(finished) / n
	m.TaskNearSuccessRate = float64(near) / n
	m.AverageStepScoreRate = sumRate / n
	m.AverageEfficiency = sumEff / n
	m.USDEfficiency = ratio(totalCost, sumNum)
	return m
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return finite(a / b)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
