package fcm

// Tokenizer splits a byte buffer into an ordered sequence of atomic symbols.
// Implementations must materialize the full slice: the learning and scoring
// passes index into it for random-access context windowing.
type Tokenizer interface {
	Split(data []byte) []string
}

// UTF8Tokenizer is the default Tokenizer. It splits input into maximal
// UTF-8 characters of 1-4 bytes, with the width determined by the leading
// byte's high bits. DNA sequences, being plain ASCII, split into single
// nucleotide letters. An incomplete sequence at the end of the buffer is
// silently dropped.
type UTF8Tokenizer struct{}

// NewUTF8Tokenizer returns the default UTF-8 character tokenizer.
func NewUTF8Tokenizer() *UTF8Tokenizer {
	return &UTF8Tokenizer{}
}

// Split implements Tokenizer.
func (*UTF8Tokenizer) Split(data []byte) []string {
	symbols := make([]string, 0, len(data))
	for i := 0; i < len(data); {
		width := 1
		switch b := data[i]; {
		case b&0x80 == 0x00:
			width = 1
		case b&0xE0 == 0xC0:
			width = 2
		case b&0xF0 == 0xE0:
			width = 3
		case b&0xF8 == 0xF0:
			width = 4
		}
		// A stray continuation byte falls through with width 1 and is
		// kept as a single-byte symbol.
		if i+width <= len(data) {
			symbols = append(symbols, string(data[i:i+width]))
		}
		i += width
	}
	return symbols
}
