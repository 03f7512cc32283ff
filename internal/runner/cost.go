package runner

import (
	"fmt"

	"github.com/signalnine/trajeval/internal/config"
	"github.com/signalnine/trajeval/internal/diag"
	"github.com/signalnine/trajeval/internal/pricing"
)

// Cost sources recorded in the manifest.
const (
	CostFromFlag     = "flag"
	CostFromConfig   = "config"
	CostFromUsageLog = "usage_log"
	CostNone         = "none"
)

// CostRequest carries every place a run's total cost can come from.
type CostRequest struct {
	// Flag is used when FlagSet is true.
	Flag    float64
	FlagSet bool
	Config  config.Cost
}

// ResolveCost picks the run's total cost: an explicit flag, then the
// configured total, then the usage log priced by the pricing table, then 0.
func ResolveCost(req CostRequest, rep diag.Reporter) (float64, string, error) {
	rep = diag.OrNop(rep)
	switch {
	case req.FlagSet:
		if req.Flag < 0 {
			return 0, "", fmt.Errorf("total cost must not be negative, got %g", req.Flag)
		}
		return req.Flag, CostFromFlag, nil
	case req.Config.TotalUSD != nil:
		return *req.Config.TotalUSD, CostFromConfig, nil
	case req.Config.UsageLog != "":
		table, err := pricing.Load(req.Config.PricingFile)
		if err != nil {
			return 0, "", err
		}
		records, err := pricing.ParseUsageLogs(req.Config.UsageLog)
		if err != nil {
			return 0, "", err
		}
		total, unpriced := table.TotalCost(records)
		for _, m := range unpriced {
			rep.Warn("no price for model, counted as free", "model", m)
		}
		in, out := pricing.TotalUsage(records)
		rep.Debug("priced usage log", "records", len(records), "input_tokens", in, "output_tokens", out, "total_cost", total)
		return total, CostFromUsageLog, nil
	default:
		return 0, CostNone, nil
	}
}
