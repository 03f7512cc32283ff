package pricing

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// UsageRecord is one LLM call logged by the planner or the reward judge.
type UsageRecord struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// ParseUsageLogs reads a JSONL usage log. Lines that are not usage records
// are ignored.
func ParseUsageLogs(logPath string) ([]UsageRecord, error) {
	f, err := os.Open(logPath)
	if err != nil {
		return nil, fmt.Errorf("reading usage log: %w", err)
	}
	defer f.Close()

	var records []UsageRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec UsageRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Model != "" {
			records = append(records, rec)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning usage log: %w", err)
	}
	return records, nil
}

func TotalUsage(records []UsageRecord) (inputTokens, outputTokens int) {
	for _, r := range records {
		inputTokens += r.InputTokens
		outputTokens += r.OutputTokens
	}
	return
}
