package actionable

import (
	"fmt"

	"speech-compliance-go/internal/aggregator"
)

type ActionCard struct {
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}

// Generate turns a run summary into follow-up cards for the operator.
func Generate(s aggregator.RunSummary) []ActionCard {
	var cards []ActionCard
	attempted := s.Succeeded + s.Failed
	if attempted > 0 {
		rate := float64(s.Failed) / float64(attempted)
		if rate >= 0.35 {
			cards = append(cards, ActionCard{
				Insight: fmt.Sprintf("High failure rate (%.0f%% of %d items)", rate*100, attempted),
				Action:  "Check proxies and API credentials, then rerun; completed items are skipped when STATE_DB is set",
				Impact:  "Recover coverage of the worklist",
			})
		} else if s.Failed > 0 {
			cards = append(cards, ActionCard{
				Insight: fmt.Sprintf("%d item(s) failed after all retries", s.Failed),
				Action:  "Inspect the failed items ledger and rerun",
				Impact:  "Complete the worklist",
			})
		}
	}
	if s.Violations > 0 {
		cards = append(cards, ActionCard{
			Insight: fmt.Sprintf("%d potential violation(s) recorded", s.Violations),
			Action:  "Run the review pass to confirm them",
			Impact:  "Filter false positives before reporting",
		})
	}
	if len(cards) == 0 {
		return []ActionCard{{
			Insight: "No violations or failures",
			Action:  "None",
			Impact:  "n/a",
		}}
	}
	return cards
}
