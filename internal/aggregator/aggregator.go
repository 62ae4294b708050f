package aggregator

import "speech-compliance-go/internal/types"

// RunSummary is the run-level view of a batch of item results.
type RunSummary struct {
	RunID          string         `json:"run_id,omitempty"`
	Items          int            `json:"items"`
	Succeeded      int            `json:"succeeded"`
	Failed         int            `json:"failed"`
	Skipped        int            `json:"skipped"`
	Violations     int            `json:"violations"`
	ExtractionCost float64        `json:"extraction_cost"`
	ItemCost       float64        `json:"item_cost"`
	TotalCost      float64        `json:"total_cost"`
	ByKind         map[string]int `json:"violations_by_kind"`
	FailedItems    []string       `json:"failed_items,omitempty"`
}

// Aggregate folds item results into a summary. The extraction cost of the
// shared rule set is counted once.
func Aggregate(results []types.ItemResult, extractionCost float64) RunSummary {
	s := RunSummary{
		Items:          len(results),
		ExtractionCost: extractionCost,
		ByKind:         map[string]int{},
	}
	for _, r := range results {
		switch r.Status {
		case types.StatusSucceeded:
			s.Succeeded++
		case types.StatusFailed:
			s.Failed++
			s.FailedItems = append(s.FailedItems, r.Item.Locator)
		case types.StatusSkipped:
			s.Skipped++
		}
		s.Violations += r.Violations
		if r.Violations > 0 {
			s.ByKind[string(r.Item.Kind)] += r.Violations
		}
		s.ItemCost += r.Cost
	}
	s.TotalCost = s.ExtractionCost + s.ItemCost
	return s
}
