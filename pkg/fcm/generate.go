package fcm

import (
	"strings"
)

// FallbackSymbol is returned by the sampler when the model has never
// observed a symbol.
const FallbackSymbol = " "

// Predict generates n new symbols by autoregressive sampling and returns
// them concatenated; the prior itself is not echoed. The prior is
// normalized to exactly k symbols first: left-padded with BlankSymbol when
// short, truncated to its last k symbols when long. After each draw the
// rolling window slides by one.
func (m *Model) Predict(prior string, n int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n <= 0 {
		return ""
	}

	window := m.tok.Split([]byte(prior))
	if len(window) > m.k {
		window = window[len(window)-m.k:]
	} else if len(window) < m.k {
		padded := make([]string, m.k-len(window), m.k)
		for i := range padded {
			padded[i] = BlankSymbol
		}
		window = append(padded, window...)
	}

	var out strings.Builder
	for i := 0; i < n; i++ {
		next := m.sampleNext(window)
		out.WriteString(next)
		window = append(window[1:], next)
	}
	return out.String()
}

// sampleNext draws one symbol for the rolling window by inverse-CDF over
// the strategy's candidate set: symbols observed at the exact context for
// the fixed-order model, the full alphabet for the backoff model. An
// unresolvable window falls back to a uniform draw over the alphabet. The
// caller must hold at least a read lock.
func (m *Model) sampleNext(window []string) string {
	r, ok := m.res.resolve(window)
	if !ok {
		return m.randomSymbol()
	}
	candidates := m.res.candidates(r)
	if candidates == nil {
		candidates = m.sortedAlphabet()
	}
	if len(candidates) == 0 {
		return m.randomSymbol()
	}

	frozen := m.state == stateFrozen
	weights := make([]float64, len(candidates))
	var totalMass float64
	for i, symbol := range candidates {
		w := m.res.probability(r, symbol, frozen, m.alpha, len(m.alphabet))
		weights[i] = w
		totalMass += w
	}
	if totalMass <= 0 {
		return m.randomSymbol()
	}

	m.rngMu.Lock()
	draw := m.rng.Float64() * totalMass
	m.rngMu.Unlock()
	for i, symbol := range candidates {
		draw -= weights[i]
		if draw < 0 {
			return symbol
		}
	}
	return candidates[len(candidates)-1]
}

func (m *Model) randomSymbol() string {
	if len(m.alphabet) == 0 {
		return FallbackSymbol
	}
	symbols := m.sortedAlphabet()
	m.rngMu.Lock()
	i := m.rng.IntN(len(symbols))
	m.rngMu.Unlock()
	return symbols[i]
}
