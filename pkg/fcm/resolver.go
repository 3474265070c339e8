package fcm

import (
	"sort"
	"strings"
)

// table holds the counts, per-context totals, and frozen probabilities for
// a single context length. Every increment updates the total alongside the
// count, so the sum of a context's counts always equals its total.
type table struct {
	counts map[string]map[string]int
	totals map[string]int
	probs  map[string]map[string]float64
}

func newTable() *table {
	return &table{
		counts: make(map[string]map[string]int),
		totals: make(map[string]int),
		probs:  make(map[string]map[string]float64),
	}
}

func (t *table) observe(ctx, symbol string) {
	row := t.counts[ctx]
	if row == nil {
		row = make(map[string]int)
		t.counts[ctx] = row
	}
	row[symbol]++
	t.totals[ctx]++
}

// freeze rebuilds the probability table from the current counts.
func (t *table) freeze(alpha float64, alphabetSize int) {
	t.probs = make(map[string]map[string]float64, len(t.counts))
	for ctx, row := range t.counts {
		total := t.totals[ctx]
		frozen := make(map[string]float64, len(row))
		for symbol, count := range row {
			frozen[symbol] = laplace(count, total, alpha, alphabetSize)
		}
		t.probs[ctx] = frozen
	}
}

// laplace is the additive smoothing formula shared by every estimate.
func laplace(count, total int, alpha float64, alphabetSize int) float64 {
	return (float64(count) + alpha) / (float64(total) + alpha*float64(alphabetSize))
}

// resolution identifies the table row a query was resolved against.
type resolution struct {
	context string
	order   int
}

// resolver is the context-resolution strategy that distinguishes the
// fixed-order model from the recursive backoff variant. All methods assume
// the owning Model holds the appropriate lock.
type resolver interface {
	// observe records the transitions for the window starting at index
	// start, inserting every observed next-symbol into alphabet. Valid for
	// start+k < len(symbols).
	observe(symbols []string, start int, alphabet map[string]struct{})
	// resolve picks the context row used to answer a query, or reports
	// that no row matches.
	resolve(context []string) (resolution, bool)
	// probability returns the smoothed probability of symbol at a
	// previously resolved context, reading the frozen table when frozen.
	probability(r resolution, symbol string, frozen bool, alpha float64, alphabetSize int) float64
	// candidates lists the symbols the one-step sampler may draw at a
	// resolved context; nil means the full alphabet.
	candidates(r resolution) []string
	// freeze derives the probability tables from the current counts.
	freeze(alpha float64, alphabetSize int)
	// clear drops all tables.
	clear()
	// orders exposes the per-length tables, keyed by context length.
	orders() map[int]*table
}

// fixedResolver consults contexts of exactly length order. Its sampler is
// restricted to the symbols already observed for the exact context, so the
// sampled mass can be less than one under the full-alphabet smoothed
// definition; this narrower behavior is deliberate.
type fixedResolver struct {
	order int
	tab   *table
}

func newFixedResolver(order int) *fixedResolver {
	return &fixedResolver{order: order, tab: newTable()}
}

func (f *fixedResolver) observe(symbols []string, start int, alphabet map[string]struct{}) {
	ctx := strings.Join(symbols[start:start+f.order], "")
	next := symbols[start+f.order]
	alphabet[next] = struct{}{}
	f.tab.observe(ctx, next)
}

func (f *fixedResolver) resolve(context []string) (resolution, bool) {
	ctx := strings.Join(context, "")
	if _, ok := f.tab.counts[ctx]; !ok {
		return resolution{}, false
	}
	return resolution{context: ctx, order: f.order}, true
}

func (f *fixedResolver) probability(r resolution, symbol string, frozen bool, alpha float64, alphabetSize int) float64 {
	if frozen {
		// Any miss in the frozen table, context or symbol, falls back to
		// the uniform estimate.
		if p, ok := f.tab.probs[r.context][symbol]; ok {
			return p
		}
		return 1.0 / float64(alphabetSize)
	}
	count := f.tab.counts[r.context][symbol]
	return laplace(count, f.tab.totals[r.context], alpha, alphabetSize)
}

func (f *fixedResolver) candidates(r resolution) []string {
	row := f.tab.counts[r.context]
	symbols := make([]string, 0, len(row))
	for symbol := range row {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func (f *fixedResolver) freeze(alpha float64, alphabetSize int) {
	f.tab.freeze(alpha, alphabetSize)
}

func (f *fixedResolver) clear() {
	f.tab = newTable()
}

func (f *fixedResolver) orders() map[int]*table {
	return map[int]*table{f.order: f.tab}
}

// backoffResolver keeps one table per context length 1..maxOrder and
// answers queries from the longest context with data, falling back one
// length at a time. Its sampler renormalizes over the full alphabet.
type backoffResolver struct {
	maxOrder int
	tabs     map[int]*table
}

func newBackoffResolver(maxOrder int) *backoffResolver {
	tabs := make(map[int]*table, maxOrder)
	for order := 1; order <= maxOrder; order++ {
		tabs[order] = newTable()
	}
	return &backoffResolver{maxOrder: maxOrder, tabs: tabs}
}

func (b *backoffResolver) observe(symbols []string, start int, alphabet map[string]struct{}) {
	for order := b.maxOrder; order >= 1; order-- {
		ctx := strings.Join(symbols[start:start+order], "")
		next := symbols[start+order]
		alphabet[next] = struct{}{}
		b.tabs[order].observe(ctx, next)
	}
}

func (b *backoffResolver) resolve(context []string) (resolution, bool) {
	desired := len(context)
	if desired > b.maxOrder {
		desired = b.maxOrder
	}
	for order := desired; order >= 1; order-- {
		tab := b.tabs[order]
		if tab == nil {
			continue
		}
		reduced := strings.Join(context[len(context)-order:], "")
		if _, ok := tab.counts[reduced]; ok {
			return resolution{context: reduced, order: order}, true
		}
	}
	return resolution{}, false
}

func (b *backoffResolver) probability(r resolution, symbol string, frozen bool, alpha float64, alphabetSize int) float64 {
	tab := b.tabs[r.order]
	if frozen {
		if p, ok := tab.probs[r.context][symbol]; ok {
			return p
		}
		// The resolution is pinned at this order even when the frozen row
		// lacks the symbol: the full-alphabet distribution at a resolved
		// context must sum to one.
	}
	count := tab.counts[r.context][symbol]
	return laplace(count, tab.totals[r.context], alpha, alphabetSize)
}

func (b *backoffResolver) candidates(resolution) []string {
	return nil
}

func (b *backoffResolver) freeze(alpha float64, alphabetSize int) {
	for _, tab := range b.tabs {
		tab.freeze(alpha, alphabetSize)
	}
}

func (b *backoffResolver) clear() {
	for order := range b.tabs {
		b.tabs[order] = newTable()
	}
}

func (b *backoffResolver) orders() map[int]*table {
	return b.tabs
}
