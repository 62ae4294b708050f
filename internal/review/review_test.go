package review

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"speech-compliance-go/internal/cost"
	"speech-compliance-go/internal/llm"
	"speech-compliance-go/internal/logger"
	"speech-compliance-go/internal/sink"
	"speech-compliance-go/internal/types"
)

func TestParseReview(t *testing.T) {
	cases := map[string]bool{
		"CORRECT\n- matches rule 2": true,
		"**CORRECT** because":       true,
		"  correct, the speaker...": true,
		"INCORRECT\n- no promise":   false,
		"The analysis is CORRECT":   false,
		"":                          false,
	}
	for in, want := range cases {
		if got := ParseReview(in); got != want {
			t.Errorf("ParseReview(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestReviewCopiesConfirmedRows(t *testing.T) {
	wb := sink.NewWorkbook(filepath.Join(t.TempDir(), "results.xlsx"), logger.Discard())
	rows := []types.ViolationRecord{
		{ItemID: "a", Transcript: "keep me", Reason: "promise", Start: 1},
		{ItemID: "a", Transcript: "drop me", Reason: "weak", Start: 5},
		{ItemID: "b", Transcript: "flaky", Reason: "x", Start: 2},
	}
	if err := wb.AppendRows("Patreon", rows); err != nil {
		t.Fatal(err)
	}

	mock := &llm.Mock{Respond: func(_, user string) (string, error) {
		switch {
		case strings.Contains(user, "keep me"):
			return "CORRECT\n- clear promise", nil
		case strings.Contains(user, "flaky"):
			return "", errors.New("gateway down")
		}
		return "INCORRECT\n- not a promise", nil
	}}
	r := New(mock, wb, cost.DefaultRates, "Czech", logger.Discard())

	sum, err := r.Review(context.Background(), "Patreon", "Reviewed")
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if sum.Reviewed != 2 || sum.Confirmed != 1 || sum.Rejected != 1 || sum.Errors != 1 || sum.Cost <= 0 {
		t.Fatalf("summary = %+v", sum)
	}
	reviewed, _ := wb.ReadRows("Reviewed")
	if len(reviewed) != 1 || reviewed[0].Transcript != "keep me" {
		t.Fatalf("reviewed = %+v", reviewed)
	}
	source, _ := wb.ReadRows("Patreon")
	if len(source) != 3 {
		t.Fatalf("source sheet modified: %+v", source)
	}

	// a second pass does not duplicate confirmed rows
	sum, err = r.Review(context.Background(), "Patreon", "Reviewed")
	if err != nil || sum.Skipped != 1 {
		t.Fatalf("second pass = %+v, %v", sum, err)
	}
	reviewed, _ = wb.ReadRows("Reviewed")
	if len(reviewed) != 1 {
		t.Fatalf("reviewed after second pass = %d rows", len(reviewed))
	}
}
