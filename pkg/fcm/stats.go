package fcm

// OrderStats summarizes one context length of a model.
type OrderStats struct {
	Contexts    int // unique contexts at this length
	Transitions int // total trained transitions at this length
}

// ModelStats is a point-in-time summary of a model. For the fixed-order
// variant Orders holds a single entry at the model order; for the backoff
// variant it holds one entry per context length 1..k.
type ModelStats struct {
	K            int
	Alpha        float64
	Recursive    bool
	Locked       bool
	Empty        bool
	AlphabetSize int
	Contexts     int
	Transitions  int
	Orders       map[int]OrderStats
}

// Stats returns a snapshot of the model's diagnostic counters.
func (m *Model) Stats() ModelStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := ModelStats{
		K:            m.k,
		Alpha:        m.alpha,
		Recursive:    m.recursive,
		Locked:       m.state == stateFrozen,
		AlphabetSize: len(m.alphabet),
		Orders:       make(map[int]OrderStats),
	}
	for order, tab := range m.res.orders() {
		s := OrderStats{Contexts: len(tab.counts)}
		for _, total := range tab.totals {
			s.Transitions += total
		}
		stats.Orders[order] = s
		stats.Contexts += s.Contexts
		stats.Transitions += s.Transitions
	}
	stats.Empty = stats.Contexts == 0
	return stats
}
