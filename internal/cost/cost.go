package cost

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Rates are USD per 1000 tokens.
type Rates struct {
	InputPer1K  float64
	OutputPer1K float64
}

// DefaultRates mirror the gpt-4o list prices the scanner was budgeted against.
var DefaultRates = Rates{InputPer1K: 0.01, OutputPer1K: 0.03}

func (r Rates) Compute(inputTokens, outputTokens int) float64 {
	return (float64(inputTokens)*r.InputPer1K + float64(outputTokens)*r.OutputPer1K) / 1000
}

// Encoding is the BPE encoding of the gpt-4o family.
const Encoding = "o200k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// tokenizer loads the encoding once; nil when its ranks cannot be loaded.
func tokenizer() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		if e, err := tiktoken.GetEncoding(Encoding); err == nil {
			enc = e
		}
	})
	return enc
}

// EstimateTokens counts tokens with the gpt-4o tokenizer when the service
// does not report usage. Without the tokenizer it falls back to roughly one
// token per four characters, never fewer than the number of words.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	if t := tokenizer(); t != nil {
		return len(t.EncodeOrdinary(text))
	}
	return approxTokens(text)
}

func approxTokens(text string) int {
	byChars := (utf8.RuneCountInString(text) + 3) / 4
	words := len(strings.Fields(text))
	if words > byChars {
		return words
	}
	return byChars
}

// Meter accumulates cost across concurrent calls.
type Meter struct {
	mu    sync.Mutex
	total float64
	calls int
}

func (m *Meter) Add(c float64) {
	m.mu.Lock()
	m.total += c
	m.calls++
	m.mu.Unlock()
}

// Charge adds a cost that did not come from a completion call.
func (m *Meter) Charge(c float64) {
	m.mu.Lock()
	m.total += c
	m.mu.Unlock()
}

func (m *Meter) Total() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

func (m *Meter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
