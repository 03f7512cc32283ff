// Package pricing turns the LLM usage recorded during a run into the run's
// total cost in USD.
package pricing

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

type ModelPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Table maps provider -> model -> price per 1K tokens.
type Table struct {
	Providers map[string]map[string]ModelPricing
}

func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}
	var providers map[string]map[string]ModelPricing
	if err := yaml.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}
	return &Table{Providers: providers}, nil
}

func (t *Table) lookup(provider, model string) (ModelPricing, bool) {
	if t == nil || t.Providers == nil {
		return ModelPricing{}, false
	}
	p, ok := t.Providers[provider][model]
	return p, ok
}

// Cost calculates total cost for a request. Prices are per 1K tokens.
func (t *Table) Cost(provider, model string, inputTokens, outputTokens int) float64 {
	p, ok := t.lookup(provider, model)
	if !ok {
		return 0
	}
	return (float64(inputTokens)/1000.0)*p.Input + (float64(outputTokens)/1000.0)*p.Output
}

// TotalCost prices every usage record. Records whose provider/model pair has
// no price cost nothing and are listed, deduplicated, in unpriced.
func (t *Table) TotalCost(records []UsageRecord) (total float64, unpriced []string) {
	seen := map[string]bool{}
	for _, r := range records {
		if _, ok := t.lookup(r.Provider, r.Model); !ok {
			key := r.Provider + "/" + r.Model
			if !seen[key] {
				seen[key] = true
				unpriced = append(unpriced, key)
			}
			continue
		}
		total += t.Cost(r.Provider, r.Model, r.InputTokens, r.OutputTokens)
	}
	sort.Strings(unpriced)
	return total, unpriced
}
