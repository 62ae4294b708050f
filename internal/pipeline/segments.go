package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"speech-compliance-go/internal/media"
	"speech-compliance-go/internal/types"
)

// Granularity selects the transcript unit submitted to the classifier.
type Granularity string

const (
	GranularitySentence  Granularity = "sentence"
	GranularityParagraph Granularity = "paragraph"
)

func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sentence", "sentences":
		return GranularitySentence, nil
	case "paragraph", "paragraphs":
		return GranularityParagraph, nil
	}
	return "", fmt.Errorf("unknown segment granularity %q", s)
}

// BuildSegments flattens a transcript into chronologically ordered segments.
// Indexes are positions in the returned slice.
func BuildSegments(tr types.Transcript, g Granularity) []types.Segment {
	var out []types.Segment
	for _, p := range tr.Paragraphs {
		if g == GranularityParagraph {
			if len(p.Sentences) == 0 {
				continue
			}
			texts := make([]string, 0, len(p.Sentences))
			for _, s := range p.Sentences {
				if t := strings.TrimSpace(s.Text); t != "" {
					texts = append(texts, t)
				}
			}
			out = append(out, types.Segment{
				Index: len(out),
				Text:  strings.Join(texts, " "),
				Start: p.Start,
				End:   p.End,
			})
			continue
		}
		for _, s := range p.Sentences {
			out = append(out, types.Segment{
				Index: len(out),
				Text:  strings.TrimSpace(s.Text),
				Start: s.Start,
				End:   s.End,
			})
		}
	}
	return out
}

// Links builds the source and timestamp links of a violation row.
type Links struct {
	// AudioBase, when set, is prefixed to the file name of audio items.
	AudioBase string
}

func (l Links) Source(item types.WorkItem) string {
	if item.Kind == types.KindAudio && l.AudioBase != "" {
		return l.AudioBase + media.LocalName(item.Locator)
	}
	return item.Locator
}

func (l Links) Timestamp(item types.WorkItem, start float64) string {
	if item.Kind == types.KindAudio {
		return l.Source(item)
	}
	return item.Locator + "&t=" + strconv.FormatInt(int64(math.Floor(start)), 10)
}

// shapeRows keeps the flagged segments in segment order.
func shapeRows(item types.WorkItem, itemID string, segs []types.Segment, outcomes []types.Outcome, links Links) []types.ViolationRecord {
	var rows []types.ViolationRecord
	for i, seg := range segs {
		if !outcomes[i].Violation {
			continue
		}
		rows = append(rows, types.ViolationRecord{
			ItemID:        itemID,
			Transcript:    seg.Text,
			Reason:        outcomes[i].Reason,
			Start:         seg.Start,
			End:           seg.End,
			SourceLink:    links.Source(item),
			TimestampLink: links.Timestamp(item, seg.Start),
		})
	}
	return rows
}
