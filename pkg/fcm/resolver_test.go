package fcm

import (
	"testing"
)

func newBackoffModel(t *testing.T) *Model {
	t.Helper()
	m := newTestModel(t, 2, 0.1, WithBackoff())
	m.Learn("ABAB")
	return m
}

func TestBackoffLearnBuildsAllOrders(t *testing.T) {
	m := newBackoffModel(t)

	stats := m.Stats()
	// Start indices 0 and 1 each record one transition per length 1..2.
	if s := stats.Orders[2]; s.Contexts != 2 || s.Transitions != 2 {
		t.Errorf("Orders[2] = %+v, want {Contexts:2 Transitions:2}", s)
	}
	if s := stats.Orders[1]; s.Contexts != 2 || s.Transitions != 2 {
		t.Errorf("Orders[1] = %+v, want {Contexts:2 Transitions:2}", s)
	}
	if stats.AlphabetSize != 2 {
		t.Errorf("AlphabetSize = %d, want 2", stats.AlphabetSize)
	}
}

func TestBackoffResolvesAtFullOrder(t *testing.T) {
	m := newBackoffModel(t)

	// "AB" exists at length 2: (1+0.1)/(1+0.1*2).
	if got := m.GetProbability("AB", "A"); !almostEqual(got, 1.1/1.2) {
		t.Errorf("GetProbability(AB, A) = %v, want %v", got, 1.1/1.2)
	}
}

// A context unseen at its own length whose suffix was seen must resolve to
// the shorter order's statistics, not to the uniform fallback.
func TestBackoffFallsBackToShorterContext(t *testing.T) {
	m := newBackoffModel(t)

	// "CB" was never seen at length 2, but its suffix "B" was seen at
	// length 1 (followed once by "A").
	if got := m.GetProbability("CB", "A"); !almostEqual(got, 1.1/1.2) {
		t.Errorf("GetProbability(CB, A) = %v, want order-1 value %v", got, 1.1/1.2)
	}
	if got := m.GetProbability("CB", "B"); !almostEqual(got, 0.1/1.2) {
		t.Errorf("GetProbability(CB, B) = %v, want order-1 value %v", got, 0.1/1.2)
	}
}

func TestBackoffUniformFallback(t *testing.T) {
	m := newBackoffModel(t)

	// Neither "ZZ" nor its suffix "Z" has ever been seen.
	if got := m.GetProbability("ZZ", "A"); !almostEqual(got, 0.5) {
		t.Errorf("GetProbability(ZZ, A) = %v, want 0.5", got)
	}
}

// A context longer than k is reduced to its last k symbols before
// resolution.
func TestBackoffTruncatesLongContext(t *testing.T) {
	m := newBackoffModel(t)

	long := m.GetProbability("XYZAB", "A")
	short := m.GetProbability("AB", "A")
	if !almostEqual(long, short) {
		t.Errorf("long context resolved differently: %v vs %v", long, short)
	}
}

// Once a context is resolved at some order, the smoothed distribution over
// the full alphabet must sum to one at that order, locked or not.
func TestBackoffFullAlphabetSumsToOne(t *testing.T) {
	m := newTestModel(t, 2, 0.1, WithBackoff())
	m.Learn("ABRACADABRA")
	m.Lock()

	for _, ctx := range []string{"AB", "RA", "XA", "ZZ"} {
		sum := 0.0
		for _, symbol := range m.Alphabet() {
			sum += m.GetProbability(ctx, symbol)
		}
		if !almostEqual(sum, 1.0) {
			t.Errorf("sum over alphabet for context %q = %v, want 1", ctx, sum)
		}
	}
}

// A symbol absent from the frozen row of a resolved context gets the
// zero-count smoothed value at that order, not the uniform fallback.
func TestBackoffLockedSymbolMiss(t *testing.T) {
	m := newBackoffModel(t)
	m.Lock()

	if got := m.GetProbability("AB", "B"); !almostEqual(got, 0.1/1.2) {
		t.Errorf("locked GetProbability(AB, B) = %v, want %v", got, 0.1/1.2)
	}
}

func TestBackoffRecursiveDiagnostic(t *testing.T) {
	m := newBackoffModel(t)
	if !m.Recursive() {
		t.Error("Recursive() = false for the backoff model")
	}
	if !m.Stats().Recursive {
		t.Error("Stats().Recursive = false for the backoff model")
	}
}
