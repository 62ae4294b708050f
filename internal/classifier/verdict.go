package classifier

import (
	"strings"

	"speech-compliance-go/internal/types"
)

const (
	violationKeyword = "Violation"
	reasonMarker     = "Violated reason"
)

// ParseVerdict turns a model answer into an Outcome. An answer that starts with
// the violation keyword is positive; the reason is whatever follows the reason
// marker, or the rest of the answer when the marker is missing. Anything else
// is treated as no violation.
func ParseVerdict(response string) types.Outcome {
	s := strings.TrimSpace(response)
	s = strings.TrimLeft(s, "*#>_` \t\r\n")
	if len(s) < len(violationKeyword) || !strings.EqualFold(s[:len(violationKeyword)], violationKeyword) {
		return types.Outcome{}
	}

	if i := indexFold(s, reasonMarker); i >= 0 {
		return types.Outcome{Violation: true, Reason: cleanReason(s[i+len(reasonMarker):])}
	}

	rest := s[len(violationKeyword):]
	// "Violations: ..." and "Violation - ..." keep only the explanation
	rest = strings.TrimPrefix(rest, "s")
	return types.Outcome{Violation: true, Reason: cleanReason(rest)}
}

func cleanReason(s string) string {
	s = strings.TrimLeft(s, "*_")
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, ":-–")
	s = strings.TrimLeft(s, "*_")
	return strings.TrimSpace(s)
}

// indexFold is a case-insensitive strings.Index that keeps byte offsets of s.
func indexFold(s, substr string) int {
	n := len(substr)
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], substr) {
			return i
		}
	}
	return -1
}
