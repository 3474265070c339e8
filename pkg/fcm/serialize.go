package fcm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	"github.com/natefinch/atomic"
)

// ErrFormat reports a model document that is missing a required field or
// carries one that cannot be interpreted. The importer never substitutes a
// default for a missing required field.
var ErrFormat = errors.New("invalid model document")

// flatDocument is the on-disk representation of a fixed-order model. The
// JSON and CBOR encodings carry the same logical content; the flag passed
// to Export/Import selects between them, never the file extension.
type flatDocument struct {
	K                *int                          `json:"k" cbor:"k"`
	Alpha            *float64                      `json:"alpha" cbor:"alpha"`
	Alphabet         []string                      `json:"alphabet" cbor:"alphabet"`
	Locked           *bool                         `json:"locked" cbor:"locked"`
	FrequencyTable   map[string]map[string]int     `json:"frequencyTable" cbor:"frequencyTable"`
	ProbabilityTable map[string]map[string]float64 `json:"probabilityTable" cbor:"probabilityTable"`
	ContextCount     map[string]int                `json:"contextCount" cbor:"contextCount"`
}

// nestedDocument is the representation of the backoff variant: the same
// three tables, nested one level deeper under the context length.
type nestedDocument struct {
	K                *int                                     `json:"k" cbor:"k"`
	Alpha            *float64                                 `json:"alpha" cbor:"alpha"`
	Alphabet         []string                                 `json:"alphabet" cbor:"alphabet"`
	Locked           *bool                                    `json:"locked" cbor:"locked"`
	FrequencyTable   map[string]map[string]map[string]int     `json:"frequencyTable" cbor:"frequencyTable"`
	ProbabilityTable map[string]map[string]map[string]float64 `json:"probabilityTable" cbor:"probabilityTable"`
	ContextCount     map[string]map[string]int                `json:"contextCount" cbor:"contextCount"`
}

// Export locks the model and writes it to path in the chosen encoding,
// returning the path written. Exporting an unlocked model leaves it
// locked. The file is written atomically.
func (m *Model) Export(path string, binary bool) (string, error) {
	data, err := m.MarshalDocument(binary)
	if err != nil {
		return "", err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to write model file: %w", err)
	}
	m.logger.Info("Model exported",
		slog.String("path", path),
		slog.Bool("binary", binary),
		slog.Int("bytes", len(data)),
	)
	return path, nil
}

// Import reads a model document from path and fully repopulates the
// model's parameters, tables, and lock state. The model keeps its
// fixed-order or backoff strategy; importing a document of the other
// shape fails with ErrFormat.
func (m *Model) Import(path string, binary bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read model file: %w", err)
	}
	if err := m.UnmarshalDocument(data, binary); err != nil {
		return err
	}
	m.logger.Info("Model imported",
		slog.String("path", path),
		slog.Bool("binary", binary),
	)
	return nil
}

// MarshalDocument locks the model and serializes its full state. It is the
// byte-level form of Export, for callers that persist models somewhere
// other than the filesystem.
func (m *Model) MarshalDocument(binary bool) ([]byte, error) {
	m.Lock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	locked := m.state == stateFrozen
	var doc any
	if m.recursive {
		doc = m.nestedDocument(locked)
	} else {
		doc = m.flatDocument(locked)
	}

	var data []byte
	var err error
	if binary {
		data, err = cbor.Marshal(doc)
	} else {
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode model document: %w", err)
	}
	return data, nil
}

// UnmarshalDocument is the byte-level form of Import.
func (m *Model) UnmarshalDocument(data []byte, binary bool) error {
	if m.recursive {
		return m.unmarshalNested(data, binary)
	}
	return m.unmarshalFlat(data, binary)
}

func (m *Model) flatDocument(locked bool) *flatDocument {
	res := m.res.(*fixedResolver)
	return &flatDocument{
		K:                &m.k,
		Alpha:            &m.alpha,
		Alphabet:         m.sortedAlphabet(),
		Locked:           &locked,
		FrequencyTable:   res.tab.counts,
		ProbabilityTable: res.tab.probs,
		ContextCount:     res.tab.totals,
	}
}

func (m *Model) nestedDocument(locked bool) *nestedDocument {
	res := m.res.(*backoffResolver)
	doc := &nestedDocument{
		K:                &m.k,
		Alpha:            &m.alpha,
		Alphabet:         m.sortedAlphabet(),
		Locked:           &locked,
		FrequencyTable:   make(map[string]map[string]map[string]int, len(res.tabs)),
		ProbabilityTable: make(map[string]map[string]map[string]float64, len(res.tabs)),
		ContextCount:     make(map[string]map[string]int, len(res.tabs)),
	}
	for order, tab := range res.tabs {
		key := strconv.Itoa(order)
		doc.FrequencyTable[key] = tab.counts
		doc.ProbabilityTable[key] = tab.probs
		doc.ContextCount[key] = tab.totals
	}
	return doc
}

func (m *Model) unmarshalFlat(data []byte, binary bool) error {
	var doc flatDocument
	if err := decodeDocument(data, binary, &doc); err != nil {
		return err
	}
	if err := checkScalars(doc.K, doc.Alpha, doc.Alphabet, doc.Locked); err != nil {
		return err
	}
	switch {
	case doc.FrequencyTable == nil:
		return missingField("frequencyTable")
	case doc.ProbabilityTable == nil:
		return missingField("probabilityTable")
	case doc.ContextCount == nil:
		return missingField("contextCount")
	}
	if err := checkTotals(doc.FrequencyTable, doc.ContextCount); err != nil {
		return err
	}

	res := newFixedResolver(*doc.K)
	res.tab = &table{
		counts: doc.FrequencyTable,
		totals: doc.ContextCount,
		probs:  doc.ProbabilityTable,
	}
	m.restore(*doc.K, *doc.Alpha, doc.Alphabet, *doc.Locked, res)
	return nil
}

func (m *Model) unmarshalNested(data []byte, binary bool) error {
	var doc nestedDocument
	if err := decodeDocument(data, binary, &doc); err != nil {
		return err
	}
	if err := checkScalars(doc.K, doc.Alpha, doc.Alphabet, doc.Locked); err != nil {
		return err
	}
	switch {
	case doc.FrequencyTable == nil:
		return missingField("frequencyTable")
	case doc.ProbabilityTable == nil:
		return missingField("probabilityTable")
	case doc.ContextCount == nil:
		return missingField("contextCount")
	}

	res := newBackoffResolver(*doc.K)
	for key, counts := range doc.FrequencyTable {
		order, err := strconv.Atoi(key)
		if err != nil || order < 1 || order > *doc.K {
			return fmt.Errorf("%w: bad context length key %q", ErrFormat, key)
		}
		totals := doc.ContextCount[key]
		if totals == nil {
			return fmt.Errorf("%w: missing context counts for length %d", ErrFormat, order)
		}
		if err := checkTotals(counts, totals); err != nil {
			return err
		}
		res.tabs[order] = &table{
			counts: counts,
			totals: totals,
			probs:  doc.ProbabilityTable[key],
		}
		if res.tabs[order].probs == nil {
			res.tabs[order].probs = make(map[string]map[string]float64)
		}
	}
	m.restore(*doc.K, *doc.Alpha, doc.Alphabet, *doc.Locked, res)
	return nil
}

// restore swaps in a fully repopulated state under the write lock.
func (m *Model) restore(k int, alpha float64, alphabet []string, locked bool, res resolver) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.k = k
	m.alpha = alpha
	m.alphabet = make(map[string]struct{}, len(alphabet))
	for _, symbol := range alphabet {
		m.alphabet[symbol] = struct{}{}
	}
	m.res = res
	if locked {
		m.state = stateFrozen
	} else {
		m.state = stateLearning
	}
}

func decodeDocument(data []byte, binary bool, doc any) error {
	var err error
	if binary {
		err = cbor.Unmarshal(data, doc)
	} else {
		err = json.Unmarshal(data, doc)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return nil
}

func checkScalars(k *int, alpha *float64, alphabet []string, locked *bool) error {
	switch {
	case k == nil:
		return missingField("k")
	case alpha == nil:
		return missingField("alpha")
	case alphabet == nil:
		return missingField("alphabet")
	case locked == nil:
		return missingField("locked")
	}
	if *k < 1 {
		return fmt.Errorf("%w: model order %d is not positive", ErrFormat, *k)
	}
	if *alpha < 0 {
		return fmt.Errorf("%w: negative smoothing pseudocount %g", ErrFormat, *alpha)
	}
	return nil
}

// checkTotals verifies the invariant that every context's total equals the
// sum of its counts.
func checkTotals(counts map[string]map[string]int, totals map[string]int) error {
	for ctx, row := range counts {
		sum := 0
		for symbol, count := range row {
			if count < 0 {
				return fmt.Errorf("%w: negative count for %q after context %q", ErrFormat, symbol, ctx)
			}
			sum += count
		}
		if sum != totals[ctx] {
			return fmt.Errorf("%w: context %q total %d does not match its counts (%d)",
				ErrFormat, ctx, totals[ctx], sum)
		}
	}
	return nil
}

func missingField(name string) error {
	return fmt.Errorf("%w: missing required field %q", ErrFormat, name)
}
