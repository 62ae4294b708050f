package types

import (
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// ParseKind accepts the names used in worklists and query strings.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "video", "youtube", "yt":
		return KindVideo, nil
	case "audio", "file", "patreon":
		return KindAudio, nil
	}
	return "", fmt.Errorf("unknown item kind %q", s)
}

// InferKind treats http(s) locators as videos and everything else as local audio.
func InferKind(locator string) Kind {
	l := strings.ToLower(strings.TrimSpace(locator))
	if strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://") {
		return KindVideo
	}
	return KindAudio
}

type WorkItem struct {
	Kind    Kind   `json:"kind"`
	Locator string `json:"locator"`
}

type AudioAsset struct {
	ID        string `json:"id"`
	LocalPath string `json:"local_path"`
}

type Sentence struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type Paragraph struct {
	Speaker   int        `json:"speaker"`
	Start     float64    `json:"start"`
	End       float64    `json:"end"`
	Sentences []Sentence `json:"sentences"`
}

type Transcript struct {
	FullText   string      `json:"full_text"`
	Paragraphs []Paragraph `json:"paragraphs"`
}

// Validate checks the timing invariants: start <= end on every span and
// non-decreasing sentence starts inside a paragraph.
func (t Transcript) Validate() error {
	for pi, p := range t.Paragraphs {
		if p.Start > p.End {
			return fmt.Errorf("paragraph %d: start %.3f after end %.3f", pi, p.Start, p.End)
		}
		prev := -1.0
		for si, s := range p.Sentences {
			if s.Start > s.End {
				return fmt.Errorf("paragraph %d sentence %d: start %.3f after end %.3f", pi, si, s.Start, s.End)
			}
			if s.Start < prev {
				return fmt.Errorf("paragraph %d sentence %d: start %.3f before previous %.3f", pi, si, s.Start, prev)
			}
			prev = s.Start
		}
	}
	return nil
}

type RuleSet struct {
	Rules          []string `json:"rules"`
	ExtractionCost float64  `json:"extraction_cost"`
}

// Segment is the unit submitted to the classifier.
type Segment struct {
	Index int     `json:"index"`
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type Outcome struct {
	Violation bool   `json:"violation"`
	Reason    string `json:"reason,omitempty"`
}

type ViolationRecord struct {
	ItemID        string  `json:"id"`
	Transcript    string  `json:"transcript"`
	Reason        string  `json:"violated_reason"`
	Start         float64 `json:"start"`
	End           float64 `json:"end"`
	SourceLink    string  `json:"video_link"`
	TimestampLink string  `json:"timestamp_link"`
}

type FailureRecord struct {
	URL       string    `json:"url"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

type ItemStatus string

const (
	StatusSucceeded ItemStatus = "succeeded"
	StatusFailed    ItemStatus = "failed"
	StatusSkipped   ItemStatus = "skipped"
)

// ItemResult is what the orchestrator reports for one work item.
type ItemResult struct {
	Item       WorkItem   `json:"item"`
	Status     ItemStatus `json:"status"`
	ItemID     string     `json:"item_id,omitempty"`
	Attempts   int        `json:"attempts"`
	Violations int        `json:"violations"`
	Cost       float64    `json:"cost"`
	DurationMs int64      `json:"duration_ms"`
	Error      string     `json:"error,omitempty"`
	Err        error      `json:"-"`
}
