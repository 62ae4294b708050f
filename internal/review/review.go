// Package review gives persisted violations a second opinion and copies the
// confirmed ones into a separate sheet.
package review

import (
	"context"
	"fmt"
	"strings"

	"speech-compliance-go/internal/cost"
	"speech-compliance-go/internal/llm"
	"speech-compliance-go/internal/logger"
	"speech-compliance-go/internal/sink"
	"speech-compliance-go/internal/types"
)

const systemPrompt = "You are a legal assistant specializing in %s law."

const userPrompt = `Video Transcript: %s
Current Analysis: %s

Please analyze if this legal analysis is correct or incorrect based on %s law.
Provide a clear "CORRECT" or "INCORRECT" at the start of your response, followed by bullet points explaining why.`

type Summary struct {
	Reviewed  int     `json:"reviewed"`
	Confirmed int     `json:"confirmed"`
	Rejected  int     `json:"rejected"`
	Skipped   int     `json:"skipped"`
	Errors    int     `json:"errors"`
	Cost      float64 `json:"cost"`
}

type Reviewer struct {
	completer llm.Completer
	sink      sink.Sink
	rates     cost.Rates
	language  string
	log       *logger.Logger
}

func New(completer llm.Completer, s sink.Sink, rates cost.Rates, language string, log *logger.Logger) *Reviewer {
	if rates == (cost.Rates{}) {
		rates = cost.DefaultRates
	}
	if language == "" {
		language = "Czech"
	}
	if log == nil {
		log = logger.New()
	}
	return &Reviewer{completer: completer, sink: s, rates: rates, language: language, log: log.Component("review")}
}

// Review reads every row of sheet and appends those judged CORRECT to
// reviewedSheet. Rows already present in reviewedSheet are skipped, and the
// source sheet is left as it is.
func (r *Reviewer) Review(ctx context.Context, sheet, reviewedSheet string) (Summary, error) {
	var sum Summary
	rows, err := r.sink.ReadRows(sheet)
	if err != nil {
		return sum, err
	}
	already, err := r.sink.ReadRows(reviewedSheet)
	if err != nil {
		return sum, err
	}
	seen := make(map[string]bool, len(already))
	for _, row := range already {
		seen[key(row)] = true
	}
	if err := r.sink.EnsureSchema(reviewedSheet); err != nil {
		return sum, err
	}

	log := r.log.WithField("sheet", sheet).WithField("reviewed_sheet", reviewedSheet)
	log.WithField("rows", len(rows)).Info("reviewing persisted violations")

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if seen[key(row)] {
			sum.Skipped++
			continue
		}
		rlog := log.WithField("item_id", row.ItemID).WithField("start", row.Start)
		out, err := r.completer.Complete(ctx,
			fmt.Sprintf(systemPrompt, r.language),
			fmt.Sprintf(userPrompt, row.Transcript, row.Reason, r.language))
		if err != nil {
			sum.Errors++
			rlog.WithField("error", err.Error()).Warn("review request failed, row left unreviewed")
			continue
		}
		sum.Reviewed++
		sum.Cost += out.Cost(r.rates)
		if !ParseReview(out.Text) {
			sum.Rejected++
			rlog.Debug("analysis rejected")
			continue
		}
		if err := r.sink.AppendRows(reviewedSheet, []types.ViolationRecord{row}); err != nil {
			return sum, err
		}
		seen[key(row)] = true
		sum.Confirmed++
	}
	log.WithField("confirmed", sum.Confirmed).
		WithField("rejected", sum.Rejected).
		WithField("errors", sum.Errors).
		WithField("cost", sum.Cost).
		Info("review finished")
	return sum, nil
}

// ParseReview reports whether a review response starts with CORRECT.
func ParseReview(text string) bool {
	t := strings.TrimLeft(strings.TrimSpace(text), "*#>_` ")
	return strings.HasPrefix(strings.ToUpper(t), "CORRECT")
}

func key(r types.ViolationRecord) string {
	return fmt.Sprintf("%s|%.3f|%s", r.ItemID, r.Start, r.Transcript)
}
