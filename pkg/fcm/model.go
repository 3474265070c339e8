package fcm

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
)

// BlankSymbol pads a generation prior that is shorter than the model order.
const BlankSymbol = " "

// modelState is the two-state learn/freeze lifecycle. A learning model
// accepts mutation; a frozen model is read-only and answers probability
// queries from its derived table.
type modelState int

const (
	stateLearning modelState = iota
	stateFrozen
)

// Model is an order-k finite-context model with Laplace smoothing. A Model
// is built for exclusive-owner mutation: while learning, exactly one
// goroutine should mutate it; once locked it is safe for concurrent
// readers. The internal RWMutex guards only the learning/frozen boundary,
// never a unit of application work.
type Model struct {
	mu sync.RWMutex

	k         int
	alpha     float64
	state     modelState
	recursive bool
	alphabet  map[string]struct{}
	res       resolver

	tok    Tokenizer
	logger *slog.Logger

	// rng is shared by every sampling call; rand.Rand is not safe for
	// concurrent use, so draws go through rngMu even when the model mutex
	// is only read-held.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Model at construction time.
type Option func(*Model)

// WithBackoff selects the recursive variant, which keeps one frequency
// table per context length 1..k and resolves queries against the longest
// context with data.
func WithBackoff() Option {
	return func(m *Model) { m.recursive = true }
}

// WithTokenizer replaces the default UTF-8 character tokenizer.
func WithTokenizer(t Tokenizer) Option {
	return func(m *Model) {
		if t != nil {
			m.tok = t
		}
	}
}

// WithRand injects the randomness source used for sampling, making
// generation deterministic under a seeded source.
func WithRand(r *rand.Rand) Option {
	return func(m *Model) {
		if r != nil {
			m.rng = r
		}
	}
}

// New creates an unlocked, empty model of order k with smoothing
// pseudocount alpha. k must be positive and alpha non-negative.
func New(k int, alpha float64, opts ...Option) (*Model, error) {
	if k < 1 {
		return nil, fmt.Errorf("model order must be positive, got %d", k)
	}
	if alpha < 0 {
		return nil, fmt.Errorf("smoothing pseudocount must be non-negative, got %g", alpha)
	}
	m := &Model{
		k:        k,
		alpha:    alpha,
		alphabet: make(map[string]struct{}),
		tok:      NewUTF8Tokenizer(),
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.res = m.newResolver(m.k)
	return m, nil
}

func (m *Model) newResolver(k int) resolver {
	if m.recursive {
		return newBackoffResolver(k)
	}
	return newFixedResolver(k)
}

// SetLogger sets the logger for the model. By default, all logs are
// discarded.
func (m *Model) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// SetRand replaces the randomness source used for sampling, like WithRand
// but after construction.
func (m *Model) SetRand(r *rand.Rand) {
	if r == nil {
		return
	}
	m.rngMu.Lock()
	m.rng = r
	m.rngMu.Unlock()
}

// Learn tokenizes text and accumulates its context->symbol transitions.
// It is a logged no-op when the model is locked, when text is empty, or
// when the tokenized input has k or fewer symbols. Because smoothing reads
// the alphabet size at query time, counts recorded before the alphabet
// grew are smoothed with the larger alphabet; this is intentional.
func (m *Model) Learn(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == stateFrozen {
		m.logger.Warn("Learn ignored: model is locked")
		return
	}
	if text == "" {
		m.logger.Debug("Learn ignored: input text is empty")
		return
	}
	symbols := m.tok.Split([]byte(text))
	if len(symbols) <= m.k {
		m.logger.Debug("Learn ignored: input shorter than model order",
			slog.Int("symbols", len(symbols)),
			slog.Int("order", m.k),
		)
		return
	}

	for i := 0; i+m.k < len(symbols); i++ {
		m.res.observe(symbols, i, m.alphabet)
	}

	m.logger.Info("Learning completed",
		slog.Int("symbols", len(symbols)),
		slog.Int("contexts", m.contextCount()),
		slog.Int("alphabet_size", len(m.alphabet)),
	)
}

// Lock derives the probability tables from the current counts and freezes
// the model. Safe and idempotent to call repeatedly.
func (m *Model) Lock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.res.freeze(m.alpha, len(m.alphabet))
	m.state = stateFrozen
}

// Unlock returns the model to its learning state. The frozen probability
// tables are kept but lie dormant until the next Lock.
func (m *Model) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = stateLearning
}

// Clear drops all frequency and probability tables. The alphabet and the
// (k, alpha) parameters survive. A locked model is left untouched.
func (m *Model) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == stateFrozen {
		m.logger.Warn("Clear ignored: model is locked")
		return
	}
	m.res.clear()
}

// GetProbability returns the smoothed probability of symbol following
// context. A locked model answers from its frozen table, with any miss
// falling back to the uniform 1/|alphabet|; an unlocked model computes
// (count+alpha)/(total+alpha*|alphabet|) on demand. An empty model
// returns 0.
func (m *Model) GetProbability(context, symbol string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.probability(m.tok.Split([]byte(context)), symbol)
}

// probability answers a query for an already-tokenized context. The caller
// must hold at least a read lock.
func (m *Model) probability(context []string, symbol string) float64 {
	if len(m.alphabet) == 0 {
		return 0
	}
	r, ok := m.res.resolve(context)
	if !ok {
		return 1.0 / float64(len(m.alphabet))
	}
	return m.res.probability(r, symbol, m.state == stateFrozen, m.alpha, len(m.alphabet))
}

// K returns the model order.
func (m *Model) K() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.k
}

// Alpha returns the smoothing pseudocount.
func (m *Model) Alpha() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.alpha
}

// Recursive reports whether this is the backoff variant.
func (m *Model) Recursive() bool {
	return m.recursive
}

// IsLocked reports whether the model is frozen.
func (m *Model) IsLocked() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == stateFrozen
}

// IsEmpty reports whether the model holds no contexts at all.
func (m *Model) IsEmpty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contextCount() == 0
}

// AlphabetSize returns the number of distinct symbols observed so far.
func (m *Model) AlphabetSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.alphabet)
}

// Alphabet returns the observed symbols in sorted order.
func (m *Model) Alphabet() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedAlphabet()
}

// ContextCount returns the number of unique contexts across all lengths.
func (m *Model) ContextCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contextCount()
}

// TotalTransitions returns the total number of trained transitions across
// all lengths.
func (m *Model) TotalTransitions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, tab := range m.res.orders() {
		for _, n := range tab.totals {
			total += n
		}
	}
	return total
}

func (m *Model) contextCount() int {
	count := 0
	for _, tab := range m.res.orders() {
		count += len(tab.counts)
	}
	return count
}

func (m *Model) sortedAlphabet() []string {
	symbols := make([]string, 0, len(m.alphabet))
	for symbol := range m.alphabet {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
