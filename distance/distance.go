// Package distance computes pairwise dissimilarities between taxa of
// a character matrix.
package distance

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"

	"bitbucket.org/Davydov/charphy/chars"
)

var log = logging.MustGetLogger("distance")

// InsufficientOverlapError is returned when two taxa have no site
// where both are observed.
type InsufficientOverlapError struct {
	A, B string
}

func (e *InsufficientOverlapError) Error() string {
	return fmt.Sprintf("taxa %q and %q have no comparable sites", e.A, e.B)
}

// Matrix is a symmetric distance matrix with zero diagonal.
type Matrix struct {
	taxa  []string
	index map[string]int
	d     *mat64.SymDense
}

// Hamming returns the proportion of differing sites for every pair of
// taxa. Sites missing in either taxon of a pair are not counted.
func Hamming(m *chars.Matrix) (*Matrix, error) {
	n := m.NTaxa()
	dm := newMatrix(m.Taxa())
	if n == 1 {
		return dm, nil
	}
	p := m.Patterns()
	for i := 0; i < n; i++ {
		ri := p.Rows[i]
		for j := i + 1; j < n; j++ {
			rj := p.Rows[j]
			diff, comparable := 0, 0
			for pat, w := range p.Weights {
				if ri[pat] == chars.Missing || rj[pat] == chars.Missing {
					continue
				}
				comparable += w
				if ri[pat] != rj[pat] {
					diff += w
				}
			}
			if comparable == 0 {
				return nil, &InsufficientOverlapError{A: dm.taxa[i], B: dm.taxa[j]}
			}
			dm.d.SetSym(i, j, float64(diff)/float64(comparable))
		}
	}
	log.Debugf("computed %dx%d distance matrix over %d patterns", n, n, p.Len())
	return dm, nil
}

// New creates a distance matrix from explicit values. Values must be
// square, symmetric, non-negative and zero on the diagonal.
func New(taxa []string, values [][]float64) (*Matrix, error) {
	if len(taxa) == 0 {
		return nil, errors.New("no taxa")
	}
	if len(values) != len(taxa) {
		return nil, fmt.Errorf("%d taxa for %d rows", len(taxa), len(values))
	}
	seen := make(map[string]bool, len(taxa))
	for _, name := range taxa {
		if seen[name] {
			return nil, fmt.Errorf("duplicate taxon %q", name)
		}
		seen[name] = true
	}
	for i, row := range values {
		if len(row) != len(taxa) {
			return nil, fmt.Errorf("row %q has %d values, expected %d", taxa[i], len(row), len(taxa))
		}
	}
	dm := newMatrix(taxa)
	for i, row := range values {
		if row[i] != 0 {
			return nil, fmt.Errorf("non-zero diagonal for %q", taxa[i])
		}
		for j := i + 1; j < len(row); j++ {
			v := row[j]
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("invalid distance %v between %q and %q", v, taxa[i], taxa[j])
			}
			if values[j][i] != v {
				return nil, fmt.Errorf("asymmetric distance between %q and %q", taxa[i], taxa[j])
			}
			dm.d.SetSym(i, j, v)
		}
	}
	return dm, nil
}

func newMatrix(taxa []string) *Matrix {
	dm := &Matrix{
		taxa:  append([]string(nil), taxa...),
		index: make(map[string]int, len(taxa)),
		d:     mat64.NewSymDense(len(taxa), nil),
	}
	for i, name := range dm.taxa {
		dm.index[name] = i
	}
	return dm
}

// Len returns the number of taxa.
func (dm *Matrix) Len() int {
	return len(dm.taxa)
}

// Taxa returns a copy of taxon names in matrix order.
func (dm *Matrix) Taxa() []string {
	return append([]string(nil), dm.taxa...)
}

// At returns the distance between the i-th and the j-th taxa.
func (dm *Matrix) At(i, j int) float64 {
	return dm.d.At(i, j)
}

// Dist returns the distance between two named taxa.
func (dm *Matrix) Dist(a, b string) (float64, error) {
	i, ok := dm.index[a]
	if !ok {
		return 0, fmt.Errorf("unknown taxon %q", a)
	}
	j, ok := dm.index[b]
	if !ok {
		return 0, fmt.Errorf("unknown taxon %q", b)
	}
	return dm.d.At(i, j), nil
}

// Values returns the matrix as a dense square slice.
func (dm *Matrix) Values() [][]float64 {
	n := len(dm.taxa)
	res := make([][]float64, n)
	for i := range res {
		res[i] = make([]float64, n)
		for j := range res[i] {
			res[i][j] = dm.d.At(i, j)
		}
	}
	return res
}

// String returns the matrix in square PHYLIP layout.
func (dm *Matrix) String() string {
	var buf bytes.Buffer
	buf.WriteString(strconv.Itoa(len(dm.taxa)))
	buf.WriteByte('\n')
	for i, name := range dm.taxa {
		buf.WriteString(name)
		for j := range dm.taxa {
			buf.WriteByte('\t')
			buf.WriteString(strconv.FormatFloat(dm.d.At(i, j), 'f', 6, 64))
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}
