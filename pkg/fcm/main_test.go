package fcm

import (
	"math"
	"math/rand/v2"
	"testing"
)

// newTestModel builds a model with a fixed-seed randomness source so that
// sampling is deterministic across runs.
func newTestModel(t *testing.T, k int, alpha float64, opts ...Option) *Model {
	t.Helper()
	opts = append(opts, WithRand(rand.New(rand.NewPCG(1, 2))))
	m, err := New(k, alpha, opts...)
	if err != nil {
		t.Fatalf("New(%d, %g) error = %v", k, alpha, err)
	}
	return m
}

// newTrainedModel is a convenience helper for the reference case used
// throughout the tests:
// k=2, alpha=0.1, trained on "ABAB".
func newTrainedModel(t *testing.T, opts ...Option) *Model {
	t.Helper()
	m := newTestModel(t, 2, 0.1, opts...)
	m.Learn("ABAB")
	return m
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// symbolLen counts symbols, not bytes, so multi-byte output can be
// length-checked.
func symbolLen(s string) int {
	return len(NewUTF8Tokenizer().Split([]byte(s)))
}
