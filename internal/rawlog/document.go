package rawlog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TaskDocument is one raw per-task log file.
type TaskDocument struct {
	TaskName            Field           `json:"task_name"`
	Status              Field           `json:"status"`
	ReferenceTaskLength Field           `json:"reference_task_length"`
	EvaluateSteps       json.RawMessage `json:"evaluate_steps"`
	StepList            []StepEntry     `json:"step_list"`
}

// StepEntry is one raw agent step as logged by the action-execution layer.
type StepEntry struct {
	StepIndex       Field `json:"step_index"`
	CurrentTrace    Field `json:"current_trace"`
	ExecuteAction   Field `json:"execute_action"`
	Selector        Field `json:"selector"`
	MatchFuncResult Field `json:"match_func_result"`
	ElementValue    Field `json:"element_value"`
	ErrorMessage    Field `json:"error_message"`
	StepURL         Field `json:"step_url"`
	Score           Field `json:"score"`
	StepReward      Field `json:"step_reward"`
}

// Decode parses a task document. Any structural error (invalid JSON, a
// step_list that is not an array of objects) fails the whole document.
func Decode(data []byte) (TaskDocument, error) {
	var doc TaskDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return TaskDocument{}, fmt.Errorf("decoding task document: %w", err)
	}
	return doc, nil
}

// Evaluation returns evaluate_steps unmodified, or an empty JSON array when
// the document has none.
func (d TaskDocument) Evaluation() json.RawMessage {
	trimmed := bytes.TrimSpace(d.EvaluateSteps)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("[]")
	}
	return append(json.RawMessage(nil), trimmed...)
}
