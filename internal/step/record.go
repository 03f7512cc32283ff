// Package step turns one raw agent step into its canonical record: the
// planning trace, the executed action signature, the judge's score and reward,
// and the browser context (selector, element value, URL, error).
package step

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/signalnine/trajeval/internal/action"
	"github.com/signalnine/trajeval/internal/diag"
	"github.com/signalnine/trajeval/internal/rawlog"
)

// UnknownIndex marks a step_index that could not be read as an integer.
const UnknownIndex = -1

// Trace is the planning output recorded with a step.
type Trace struct {
	Thought       string `json:"thought"`
	ActionSummary string `json:"action"`
	Reflection    string `json:"reflection"`
}

// Reward is the judge's per-step reward. The zero value is the empty reward
// and serializes as {}. Score keeps the judge's text as-is; it need not be
// numeric.
type Reward struct {
	Score       string `json:"score"`
	Description string `json:"description"`
}

// IsEmpty reports whether the reward carries no judgement.
func (r Reward) IsEmpty() bool { return r.Score == "" && r.Description == "" }

type rewardJSON Reward

func (r Reward) MarshalJSON() ([]byte, error) {
	if r.IsEmpty() {
		return []byte("{}"), nil
	}
	return json.Marshal(rewardJSON(r))
}

// UnmarshalJSON accepts the score as a JSON string or number.
func (r *Reward) UnmarshalJSON(data []byte) error {
	var obj map[string]rawlog.Field
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decoding reward: %w", err)
	}
	*r = Reward{
		Score:       obj["score"].String(),
		Description: obj["description"].String(),
	}
	return nil
}

// Record is one canonical step.
type Record struct {
	StepIndex       int             `json:"step_index"`
	Trace           Trace           `json:"trace_description"`
	Selector        string          `json:"selector"`
	ElementValue    string          `json:"element_value"`
	ActionSignature string          `json:"action"`
	Score           string          `json:"task_score"`
	ScoreRate       float64         `json:"task_score_rate"`
	StepReward      Reward          `json:"current_reward_score_description"`
	StepURL         string          `json:"url"`
	MatchResult     json.RawMessage `json:"match_result"`
	Error           string          `json:"error"`
}

// Parse builds the canonical record for one raw step entry. It never fails:
// unreadable fields fall back to their documented defaults.
func Parse(entry rawlog.StepEntry, rep diag.Reporter) Record {
	rep = diag.OrNop(rep)
	rec := Record{
		StepIndex:       UnknownIndex,
		Trace:           ParseTrace(entry.CurrentTrace, rep),
		Selector:        text(entry.Selector),
		ElementValue:    text(entry.ElementValue),
		ActionSignature: action.Decode(entry.ExecuteAction),
		Score:           text(entry.Score),
		StepReward:      ParseReward(entry.StepReward, rep),
		StepURL:         text(entry.StepURL),
		MatchResult:     passThrough(entry.MatchFuncResult),
		Error:           text(entry.ErrorMessage),
	}
	if idx, ok := entry.StepIndex.Int(); ok && idx >= 0 {
		rec.StepIndex = idx
	} else {
		rep.Warn("step_index is not a non-negative integer", "value", entry.StepIndex.String())
	}
	rec.ScoreRate = ScoreRate(rec.Score)
	return rec
}

// text stringifies a context field. Null, missing and the literal None all
// read as "".
func text(f rawlog.Field) string {
	s := f.String()
	if s == "None" {
		return ""
	}
	return s
}

func passThrough(f rawlog.Field) json.RawMessage {
	if f.Kind == rawlog.Missing || len(bytes.TrimSpace(f.Raw)) == 0 {
		return json.RawMessage("null")
	}
	return append(json.RawMessage(nil), f.Raw...)
}
