package cost

import (
	"math"
	"sync"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-12 }

func TestComputeAndAccumulate(t *testing.T) {
	r := DefaultRates
	first := r.Compute(1000, 200) // 0.01 + 0.006
	second := r.Compute(500, 100) // 0.005 + 0.003
	if !almostEqual(first, 0.016) || !almostEqual(second, 0.008) {
		t.Fatalf("first=%v second=%v", first, second)
	}

	var m Meter
	m.Add(first)
	m.Add(second)
	if !almostEqual(m.Total(), 0.024) {
		t.Fatalf("total = %v, want 0.024", m.Total())
	}
	if m.Calls() != 2 {
		t.Fatalf("calls = %d", m.Calls())
	}
}

func TestMeterConcurrentAdds(t *testing.T) {
	var m Meter
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Add(0.5)
		}()
	}
	wg.Wait()
	if m.Total() != 50 || m.Calls() != 100 {
		t.Fatalf("total=%v calls=%d", m.Total(), m.Calls())
	}
}

func TestApproxTokens(t *testing.T) {
	if got := approxTokens("abcdefgh"); got != 2 {
		t.Fatalf("approxTokens = %d, want 2", got)
	}
	if got := approxTokens("a b c d e"); got != 5 {
		t.Fatalf("approxTokens = %d, want word count 5", got)
	}
}

func TestEstimateTokensUsesTokenizer(t *testing.T) {
	if EstimateTokens("") != 0 {
		t.Fatal("empty text should be zero tokens")
	}
	if tokenizer() == nil {
		t.Skip(Encoding + " ranks unavailable offline")
	}
	cases := map[string]int{
		"hello world":   2,
		"Hello, world!": 4,
	}
	for text, want := range cases {
		if got := EstimateTokens(text); got != want {
			t.Fatalf("EstimateTokens(%q) = %d, want %d", text, got, want)
		}
	}
}

func TestChargeIsNotACall(t *testing.T) {
	var m Meter
	m.Charge(0.5)
	m.Add(0.01)
	if !almostEqual(m.Total(), 0.51) || m.Calls() != 1 {
		t.Fatalf("total=%v calls=%d", m.Total(), m.Calls())
	}
}
