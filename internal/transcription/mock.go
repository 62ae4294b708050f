package transcription

import (
	"context"
	"os"
	"strings"

	"speech-compliance-go/internal/types"
)

// Mock returns a canned transcript; USE_MOCK_TRANSCRIBE=true selects it.
type Mock struct {
	Transcript *types.Transcript
}

var _ Transcriber = (*Mock)(nil)

func (m *Mock) Transcribe(_ context.Context, localPath string) (types.Transcript, error) {
	if _, err := os.Stat(localPath); err != nil {
		return types.Transcript{}, types.Wrap(types.ErrTranscription, err)
	}
	if m.Transcript != nil {
		return *m.Transcript, nil
	}
	sentences := []types.Sentence{
		{Text: "Welcome back to the channel.", Start: 0.4, End: 2.1},
		{Text: "You will definitely make money with this stock.", Start: 2.3, End: 5.0},
		{Text: "Do your own research before investing.", Start: 5.4, End: 8.2},
	}
	texts := make([]string, len(sentences))
	for i, s := range sentences {
		texts[i] = s.Text
	}
	return types.Transcript{
		FullText:   strings.Join(texts, " "),
		Paragraphs: []types.Paragraph{{Speaker: 0, Start: 0.4, End: 8.2, Sentences: sentences}},
	}, nil
}
