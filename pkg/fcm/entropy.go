package fcm

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"

	"github.com/natefinch/atomic"
)

// AverageInformationContent scores text against the model and returns the
// mean information content in bits per symbol: the average of -log2(p)
// over every position that has a full k-symbol context before it. Text of
// k or fewer symbols scores 0.
func (m *Model) AverageInformationContent(text string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	symbols := m.tok.Split([]byte(text))
	if len(symbols) <= m.k {
		return 0
	}
	var total float64
	for i := m.k; i < len(symbols); i++ {
		total += -math.Log2(m.probability(symbols[i-m.k:i], symbols[i]))
	}
	return total / float64(len(symbols)-m.k)
}

// SymbolInformation returns the information content, in bits, of every
// scoreable position of text, in order. Text of k or fewer symbols yields
// nil.
func (m *Model) SymbolInformation(text string) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	symbols := m.tok.Split([]byte(text))
	if len(symbols) <= m.k {
		return nil
	}
	info := make([]float64, 0, len(symbols)-m.k)
	for i := m.k; i < len(symbols); i++ {
		info = append(info, -math.Log2(m.probability(symbols[i-m.k:i], symbols[i])))
	}
	return info
}

// ExportSymbolInformation writes the per-symbol information content of
// text to path as a three-column CSV (position, symbol, bits). The file is
// written atomically.
func (m *Model) ExportSymbolInformation(text, path string) error {
	m.mu.RLock()
	k := m.k
	symbols := m.tok.Split([]byte(text))
	var bits []float64
	if len(symbols) > k {
		bits = make([]float64, 0, len(symbols)-k)
		for i := k; i < len(symbols); i++ {
			bits = append(bits, -math.Log2(m.probability(symbols[i-k:i], symbols[i])))
		}
	}
	m.mu.RUnlock()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"position", "symbol", "bits"})
	for i, b := range bits {
		pos := k + i
		_ = w.Write([]string{
			strconv.Itoa(pos),
			symbols[pos],
			strconv.FormatFloat(b, 'g', -1, 64),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to encode symbol information: %w", err)
	}

	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("failed to write symbol information file: %w", err)
	}
	return nil
}
