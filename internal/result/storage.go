// Package result persists evaluated runs: the canonical task document
// (out.json), the flat run metrics (result.json) and the run manifest.
package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/signalnine/trajeval/internal/metrics"
	"github.com/signalnine/trajeval/internal/step"
	"github.com/signalnine/trajeval/internal/task"
)

// EnsureOutputDir creates dir if needed. Calling it on an existing directory
// is not an error.
func EnsureOutputDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	return nil
}

// MarshalRun encodes tasks as the canonical run document, sorted ascending by
// task id. The input slice is not reordered.
func MarshalRun(tasks []task.Result) ([]byte, error) {
	sorted := make([]task.Result, len(tasks))
	copy(sorted, tasks)
	task.Sort(sorted)
	for i := range sorted {
		if sorted[i].Steps == nil {
			sorted[i].Steps = []step.Record{}
		}
		if len(sorted[i].Evaluation) == 0 {
			sorted[i].Evaluation = json.RawMessage("[]")
		}
	}
	return encode(sorted)
}

// UnmarshalRun decodes a canonical run document.
func UnmarshalRun(data []byte) ([]task.Result, error) {
	var tasks []task.Result
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("parsing run document: %w", err)
	}
	for i := range tasks {
		if tasks[i].Steps == nil {
			tasks[i].Steps = []step.Record{}
		}
		if len(tasks[i].Evaluation) == 0 || string(tasks[i].Evaluation) == "null" {
			tasks[i].Evaluation = json.RawMessage("[]")
		}
	}
	task.Sort(tasks)
	return tasks, nil
}

// WriteRun writes out.json into dir.
func WriteRun(dir string, tasks []task.Result) (string, error) {
	data, err := MarshalRun(tasks)
	if err != nil {
		return "", fmt.Errorf("marshaling run: %w", err)
	}
	path := filepath.Join(dir, OutFile)
	if err := writeFile(path, data); err != nil {
		return "", fmt.Errorf("writing %s: %w", OutFile, err)
	}
	return path, nil
}

// ReadRun reads a canonical run document from path.
func ReadRun(path string) ([]task.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run: %w", err)
	}
	return UnmarshalRun(data)
}

// WriteMetrics writes result.json into dir.
func WriteMetrics(dir string, m metrics.RunMetrics) (string, error) {
	data, err := encode(m)
	if err != nil {
		return "", fmt.Errorf("marshaling metrics: %w", err)
	}
	path := filepath.Join(dir, MetricsFile)
	if err := writeFile(path, data); err != nil {
		return "", fmt.Errorf("writing %s: %w", MetricsFile, err)
	}
	return path, nil
}

func ReadMetrics(path string) (metrics.RunMetrics, error) {
	var m metrics.RunMetrics
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("reading metrics: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parsing metrics: %w", err)
	}
	return m, nil
}

// NewManifest starts a manifest with a fresh run id.
func NewManifest(inputDir string, started time.Time) *Manifest {
	return &Manifest{
		RunID:     uuid.NewString(),
		StartedAt: started.UTC(),
		InputDir:  inputDir,
		Processed: []string{},
		Skipped:   []SkippedFile{},
	}
}

func WriteManifest(dir string, m *Manifest) error {
	data, err := encode(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := writeFile(filepath.Join(dir, ManifestFile), data); err != nil {
		return fmt.Errorf("writing %s: %w", ManifestFile, err)
	}
	return nil
}

func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeFile replaces path atomically through a temporary sibling.
func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
