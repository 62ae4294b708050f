package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"speech-compliance-go/internal/types"
)

type fakeMedia struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]int // locator -> failing calls before success; -1 always
}

func (f *fakeMedia) Acquire(_ context.Context, item types.WorkItem) (types.AudioAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[item.Locator]++
	if n := f.fail[item.Locator]; n < 0 || f.calls[item.Locator] <= n {
		return types.AudioAsset{}, types.Wrap(types.ErrAcquisition, errors.New("403 Forbidden"))
	}
	return types.AudioAsset{ID: item.Locator, LocalPath: "/tmp/" + item.Locator + ".m4a"}, nil
}

type fakeTranscriber struct {
	byPath map[string]types.Transcript
	err    error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, path string) (types.Transcript, error) {
	if f.err != nil {
		return types.Transcript{}, f.err
	}
	return f.byPath[path], nil
}

// inflightTranscriber records how many transcriptions overlap.
type inflightTranscriber struct {
	hold time.Duration

	mu       sync.Mutex
	inFlight int
	maxSeen  int
	total    int
}

func (f *inflightTranscriber) Transcribe(ctx context.Context, _ string) (types.Transcript, error) {
	f.mu.Lock()
	f.inFlight++
	f.total++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(f.hold)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	return sentences("fine"), ctx.Err()
}

func (f *inflightTranscriber) peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxSeen
}

func (f *inflightTranscriber) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

type classifyFunc func(text string) (types.Outcome, float64, error)

type fakeClassifier struct {
	fn    classifyFunc
	mu    sync.Mutex
	texts []string
}

func (f *fakeClassifier) Classify(_ context.Context, text string, _ types.RuleSet) (types.Outcome, float64, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return f.fn(text)
}

func (f *fakeClassifier) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type memSink struct {
	mu       sync.Mutex
	rows     map[string][]types.ViolationRecord
	schemas  map[string]int
	failLeft int
}

func newMemSink() *memSink {
	return &memSink{rows: map[string][]types.ViolationRecord{}, schemas: map[string]int{}}
}

func (s *memSink) EnsureSchema(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[name]++
	return nil
}

func (s *memSink) AppendRows(name string, rows []types.ViolationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLeft > 0 {
		s.failLeft--
		return types.Wrap(types.ErrPersistence, errors.New("quota exceeded"))
	}
	s.rows[name] = append(s.rows[name], rows...)
	return nil
}

func (s *memSink) ReadRows(name string) ([]types.ViolationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ViolationRecord(nil), s.rows[name]...), nil
}

type memLedger struct {
	mu      sync.Mutex
	records []types.FailureRecord
}

func (l *memLedger) Record(r types.FailureRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r)
	return nil
}

func (l *memLedger) List() ([]types.FailureRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.FailureRecord(nil), l.records...), nil
}

type memState struct {
	done   map[string]bool
	marked map[string]types.ItemStatus
}

func (s *memState) Done(_ context.Context, locator string) (bool, error) {
	return s.done[locator], nil
}

func (s *memState) MarkSucceeded(_ context.Context, res types.ItemResult) error {
	s.marked[res.Item.Locator] = types.StatusSucceeded
	return nil
}

func (s *memState) MarkFailed(_ context.Context, res types.ItemResult) error {
	s.marked[res.Item.Locator] = types.StatusFailed
	return nil
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	return nil
}

func sentences(texts ...string) types.Transcript {
	p := types.Paragraph{}
	for i, t := range texts {
		start := float64(i * 2)
		p.Sentences = append(p.Sentences, types.Sentence{Text: t, Start: start, End: start + 1.5})
	}
	if len(p.Sentences) > 0 {
		p.End = p.Sentences[len(p.Sentences)-1].End
	}
	return types.Transcript{Paragraphs: []types.Paragraph{p}}
}
