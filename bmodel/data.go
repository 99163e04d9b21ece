package bmodel

import (
	"fmt"

	"bitbucket.org/Davydov/charphy/chars"
)

// Data is a binary character matrix compressed into weighted patterns
// with leaf partial likelihoods. Two extra patterns (all zeros and all
// ones) are kept for the ascertainment correction.
type Data struct {
	matrix  *chars.Matrix
	index   map[string]int
	leaves  [][]float64
	weights []float64
	nPat    int
	nSites  int
}

// NewData prepares a matrix for likelihood computations. The alphabet
// must have exactly two states.
func NewData(m *chars.Matrix) (*Data, error) {
	if m.Alphabet().Len() != 2 {
		return nil, &chars.ValidationError{Site: -1,
			Reason: fmt.Sprintf("likelihood needs a binary alphabet, got %q", m.Alphabet().Symbols())}
	}
	p := m.Patterns()
	d := &Data{
		matrix:  m,
		index:   make(map[string]int, m.NTaxa()),
		leaves:  make([][]float64, m.NTaxa()),
		weights: make([]float64, p.Len()),
		nPat:    p.Len(),
		nSites:  m.NSites(),
	}
	for i, w := range p.Weights {
		d.weights[i] = float64(w)
	}
	for i, name := range m.Taxa() {
		d.index[name] = i
		row := make([]float64, 2*(d.nPat+2))
		for pat, s := range p.Rows[i] {
			switch s {
			case chars.Missing:
				row[2*pat], row[2*pat+1] = 1, 1
			default:
				row[2*pat+int(s)] = 1
			}
		}
		// constant patterns
		row[2*d.nPat] = 1
		row[2*(d.nPat+1)+1] = 1
		d.leaves[i] = row
	}
	return d, nil
}

// Matrix returns the source matrix.
func (d *Data) Matrix() *chars.Matrix {
	return d.matrix
}

// NPatterns returns the number of distinct site patterns.
func (d *Data) NPatterns() int {
	return d.nPat
}

// ConstantSites returns the number of sites where every observed state
// is the same. The ascertainment correction assumes there are none.
func (d *Data) ConstantSites() int {
	p := d.matrix.Patterns()
	n := 0
	for pat, w := range p.Weights {
		first := chars.Missing
		constant := true
		for _, row := range p.Rows {
			s := row[pat]
			if s == chars.Missing {
				continue
			}
			if first == chars.Missing {
				first = s
			} else if s != first {
				constant = false
				break
			}
		}
		if constant {
			n += w
		}
	}
	return n
}
