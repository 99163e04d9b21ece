// Package chars provides the character matrix: taxa by discrete
// character observations over a fixed alphabet with a missing-data
// symbol.
package chars

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"bitbucket.org/Davydov/charphy/bio"
)

// State is an index into the alphabet or Missing.
type State int8

// Missing is the state of an unobserved character.
const Missing State = -1

// maxSymbols is the largest supported alphabet; parsimony uses one bit
// per symbol.
const maxSymbols = 32

// ValidationError reports malformed or inconsistent matrix input.
// Site is -1 when the problem is not related to a single site.
type ValidationError struct {
	Taxon  string
	Site   int
	Reason string
}

func (e *ValidationError) Error() string {
	s := "invalid character matrix"
	if e.Taxon != "" {
		s += fmt.Sprintf(", taxon %q", e.Taxon)
	}
	if e.Site >= 0 {
		s += fmt.Sprintf(", site %d", e.Site)
	}
	return s + ": " + e.Reason
}

// Alphabet is a set of state symbols plus the missing symbol.
type Alphabet struct {
	symbols string
	missing byte
}

// Binary is the presence/absence alphabet.
var Binary = Alphabet{symbols: "01", missing: '?'}

// NewAlphabet creates an alphabet. Symbols must be unique and must not
// include the missing symbol.
func NewAlphabet(symbols string, missing byte) (Alphabet, error) {
	if len(symbols) < 2 || len(symbols) > maxSymbols {
		return Alphabet{}, &ValidationError{Site: -1,
			Reason: fmt.Sprintf("alphabet must have 2..%d symbols, got %d", maxSymbols, len(symbols))}
	}
	for i := 0; i < len(symbols); i++ {
		if symbols[i] == missing {
			return Alphabet{}, &ValidationError{Site: -1,
				Reason: fmt.Sprintf("missing symbol %q is in the alphabet", missing)}
		}
		if strings.IndexByte(symbols[i+1:], symbols[i]) >= 0 {
			return Alphabet{}, &ValidationError{Site: -1,
				Reason: fmt.Sprintf("duplicate symbol %q", symbols[i])}
		}
	}
	return Alphabet{symbols: symbols, missing: missing}, nil
}

// Len returns the number of (non-missing) states.
func (a Alphabet) Len() int {
	return len(a.symbols)
}

// Symbols returns the state symbols in state order.
func (a Alphabet) Symbols() string {
	return a.symbols
}

// MissingSymbol returns the missing-data symbol.
func (a Alphabet) MissingSymbol() byte {
	return a.missing
}

// State converts a symbol into a state.
func (a Alphabet) State(c byte) (State, bool) {
	if c == a.missing {
		return Missing, true
	}
	i := strings.IndexByte(a.symbols, c)
	if i < 0 {
		return Missing, false
	}
	return State(i), true
}

// Symbol converts a state into a symbol.
func (a Alphabet) Symbol(s State) byte {
	if s == Missing {
		return a.missing
	}
	return a.symbols[s]
}

// Matrix is an immutable taxa by characters matrix.
type Matrix struct {
	alphabet Alphabet
	taxa     []string
	index    map[string]int
	rows     [][]State
	nSites   int

	patternsOnce sync.Once
	patterns     *Patterns
}

// New creates a matrix from taxon names and symbol rows, keeping the
// given taxon order.
func New(alphabet Alphabet, names []string, rows []string) (*Matrix, error) {
	if alphabet.Len() == 0 {
		return nil, &ValidationError{Site: -1, Reason: "empty alphabet"}
	}
	if len(names) != len(rows) {
		return nil, &ValidationError{Site: -1,
			Reason: fmt.Sprintf("%d names for %d rows", len(names), len(rows))}
	}
	if len(names) == 0 {
		return nil, &ValidationError{Site: -1, Reason: "no taxa"}
	}
	m := &Matrix{
		alphabet: alphabet,
		taxa:     make([]string, len(names)),
		index:    make(map[string]int, len(names)),
		rows:     make([][]State, len(names)),
		nSites:   len(rows[0]),
	}
	for i, name := range names {
		if name == "" {
			return nil, &ValidationError{Site: -1, Reason: fmt.Sprintf("taxon %d has no name", i)}
		}
		if _, dup := m.index[name]; dup {
			return nil, &ValidationError{Taxon: name, Site: -1, Reason: "duplicate taxon"}
		}
		if len(rows[i]) != m.nSites {
			return nil, &ValidationError{Taxon: name, Site: -1,
				Reason: fmt.Sprintf("has %d sites, expected %d", len(rows[i]), m.nSites)}
		}
		row := make([]State, m.nSites)
		for site := 0; site < m.nSites; site++ {
			s, ok := alphabet.State(rows[i][site])
			if !ok {
				return nil, &ValidationError{Taxon: name, Site: site,
					Reason: fmt.Sprintf("symbol %q is not in the alphabet %q", rows[i][site], alphabet.symbols)}
			}
			row[site] = s
		}
		m.taxa[i] = name
		m.index[name] = i
		m.rows[i] = row
	}
	return m, nil
}

// FromMap creates a matrix from a taxon to symbols mapping. Taxa are
// ordered by name.
func FromMap(alphabet Alphabet, data map[string]string) (*Matrix, error) {
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([]string, len(names))
	for i, name := range names {
		rows[i] = data[name]
	}
	return New(alphabet, names, rows)
}

// FromSequences creates a matrix from parsed sequences, keeping their
// order.
func FromSequences(alphabet Alphabet, seqs bio.Sequences) (*Matrix, error) {
	rows := make([]string, len(seqs))
	for i, seq := range seqs {
		rows[i] = seq.Sequence
	}
	return New(alphabet, seqs.Names(), rows)
}

// Alphabet returns the matrix alphabet.
func (m *Matrix) Alphabet() Alphabet {
	return m.alphabet
}

// NTaxa returns the number of taxa.
func (m *Matrix) NTaxa() int {
	return len(m.taxa)
}

// NSites returns the number of characters.
func (m *Matrix) NSites() int {
	return m.nSites
}

// Taxa returns a copy of taxon names in matrix order.
func (m *Matrix) Taxa() []string {
	return append([]string(nil), m.taxa...)
}

// Index returns the row of a taxon.
func (m *Matrix) Index(name string) (int, bool) {
	i, ok := m.index[name]
	return i, ok
}

// Row returns the states of the i-th taxon. The slice must not be
// modified.
func (m *Matrix) Row(i int) []State {
	return m.rows[i]
}

// At returns the state of taxon i at a site.
func (m *Matrix) At(i, site int) State {
	return m.rows[i][site]
}

// States returns a copy of the states of a named taxon.
func (m *Matrix) States(name string) ([]State, error) {
	i, ok := m.index[name]
	if !ok {
		return nil, &ValidationError{Taxon: name, Site: -1, Reason: "unknown taxon"}
	}
	return append([]State(nil), m.rows[i]...), nil
}

// Subset returns a matrix restricted to the given taxa in the given
// order. Rows are shared with the parent matrix.
func (m *Matrix) Subset(names []string) (*Matrix, error) {
	if len(names) == 0 {
		return nil, &ValidationError{Site: -1, Reason: "no taxa"}
	}
	sub := &Matrix{
		alphabet: m.alphabet,
		taxa:     make([]string, len(names)),
		index:    make(map[string]int, len(names)),
		rows:     make([][]State, len(names)),
		nSites:   m.nSites,
	}
	for i, name := range names {
		j, ok := m.index[name]
		if !ok {
			return nil, &ValidationError{Taxon: name, Site: -1, Reason: "unknown taxon"}
		}
		if _, dup := sub.index[name]; dup {
			return nil, &ValidationError{Taxon: name, Site: -1, Reason: "duplicate taxon"}
		}
		sub.taxa[i] = name
		sub.index[name] = i
		sub.rows[i] = m.rows[j]
	}
	return sub, nil
}

// Sequences converts the matrix back into named symbol rows.
func (m *Matrix) Sequences() bio.Sequences {
	seqs := make(bio.Sequences, len(m.taxa))
	buf := make([]byte, m.nSites)
	for i, name := range m.taxa {
		for site, s := range m.rows[i] {
			buf[site] = m.alphabet.Symbol(s)
		}
		seqs[i] = bio.Sequence{Name: name, Sequence: string(buf)}
	}
	return seqs
}

// String returns the matrix in FASTA layout.
func (m *Matrix) String() string {
	return m.Sequences().String()
}
