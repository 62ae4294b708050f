package classifier

import (
	"context"
	"fmt"
	"strings"

	"speech-compliance-go/internal/cost"
	"speech-compliance-go/internal/llm"
	"speech-compliance-go/internal/types"
)

const systemPrompt = "You are a legal assistant specializing in %s law."

const userPrompt = `You have legal rules extracted from a government article and a transcript segment from a video, both written in %[1]s. Check whether the transcript segment violates any of the legal rules.

If you find a violation, respond with "Violation" and explain how it violates the rules on a new line beginning with "Violated reason: ". If there is no violation, respond only with "No Violations"; no further explanation is needed.

Legal rules:
%[2]s

Transcript segment:
"%[3]s"`

// Classifier checks one transcript segment against the rule set per call.
type Classifier struct {
	completer llm.Completer
	rates     cost.Rates
	language  string
}

type Option func(*Classifier)

func WithRates(r cost.Rates) Option { return func(c *Classifier) { c.rates = r } }

// WithLanguage sets the jurisdiction/language named in the prompts.
func WithLanguage(lang string) Option { return func(c *Classifier) { c.language = lang } }

func New(completer llm.Completer, opts ...Option) *Classifier {
	c := &Classifier{completer: completer, rates: cost.DefaultRates, language: "Czech"}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify returns the outcome and the estimated cost of the call. Errors are
// wrapped in types.ErrClassification; callers decide whether they are fatal.
func (c *Classifier) Classify(ctx context.Context, segmentText string, rules types.RuleSet) (types.Outcome, float64, error) {
	system := fmt.Sprintf(systemPrompt, c.language)
	user := BuildPrompt(c.language, segmentText, rules)

	out, err := c.completer.Complete(ctx, system, user)
	if err != nil {
		return types.Outcome{}, 0, types.Wrap(types.ErrClassification, err)
	}
	return ParseVerdict(out.Text), out.Cost(c.rates), nil
}

// BuildPrompt renders the per-segment user prompt.
func BuildPrompt(language, segmentText string, rules types.RuleSet) string {
	var b strings.Builder
	for _, r := range rules.Rules {
		b.WriteString("- ")
		b.WriteString(strings.TrimLeft(r, "-•* "))
		b.WriteString("\n")
	}
	return fmt.Sprintf(userPrompt, language, strings.TrimRight(b.String(), "\n"), segmentText)
}
