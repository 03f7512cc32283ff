package result

import "time"

// Output file names inside a run's result directory.
const (
	OutFile      = "out.json"
	MetricsFile  = "result.json"
	ManifestFile = "manifest.json"
)

// Manifest records how a run's outputs were produced.
type Manifest struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	InputDir   string        `json:"input_dir"`
	Processed  []string      `json:"processed"`
	Skipped    []SkippedFile `json:"skipped"`
	TotalCost  float64       `json:"total_cost"`
	CostSource string        `json:"cost_source"`
}

// SkippedFile is a task log that could not be aggregated.
type SkippedFile struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}
