package llm

import (
	"context"
	"strings"

	"speech-compliance-go/internal/cost"
)

// Mock answers without network access. USE_MOCK_LLM=true wires it in for
// offline demos; tests pass their own Respond func.
type Mock struct {
	Respond func(systemPrompt, userPrompt string) (string, error)
}

var _ Completer = (*Mock)(nil)

func (m *Mock) Complete(_ context.Context, systemPrompt, userPrompt string) (Completion, error) {
	respond := m.Respond
	if respond == nil {
		respond = DemoResponse
	}
	text, err := respond(systemPrompt, userPrompt)
	if err != nil {
		return Completion{}, err
	}
	return Completion{
		Text:         text,
		InputTokens:  cost.EstimateTokens(systemPrompt) + cost.EstimateTokens(userPrompt),
		OutputTokens: cost.EstimateTokens(text),
	}, nil
}

var promiseWords = []string{"guarantee", "definitely", "risk-free", "zaruč", "určitě", "jistý zisk"}

// DemoResponse is a deterministic stand-in for the three prompt families the
// scanner sends: rule summaries, segment checks and reviews.
func DemoResponse(systemPrompt, userPrompt string) (string, error) {
	lower := strings.ToLower(userPrompt)
	switch {
	case strings.Contains(lower, "summarize"):
		return "- Investment content must not promise or guarantee profit.\n" +
			"- Personal investment advice requires a licence.\n" +
			"- Past returns must not be presented as a reliable indicator of future returns.", nil
	case strings.Contains(lower, "correct") && strings.Contains(lower, "incorrect"):
		return "CORRECT\n- The statement presents profit as certain.", nil
	}
	// only look at the quoted transcript, the rule list itself mentions guarantees
	if i := strings.LastIndex(lower, "transcript"); i >= 0 {
		lower = lower[i:]
	}
	for _, w := range promiseWords {
		if strings.Contains(lower, w) {
			return "Violation\nViolated reason: the statement presents investment profit as certain.", nil
		}
	}
	return "No Violations", nil
}
