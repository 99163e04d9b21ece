// Package parsimony scores trees under Fitch parsimony, searches for
// most parsimonious trees with the parsimony ratchet and assigns branch
// lengths by accelerated transformation (ACCTRAN).
package parsimony

import (
	"fmt"
	"math/bits"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/charphy/chars"
	"bitbucket.org/Davydov/charphy/tree"
)

var log = logging.MustGetLogger("parsimony")

// Data is a character matrix compressed into site patterns with state
// sets encoded as bit masks.
type Data struct {
	matrix *chars.Matrix
	index  map[string]int
	// leaf state sets, taxon × pattern
	leaves      [][]uint32
	weights     []int
	sitePattern []int
	full        uint32
}

// NewData prepares a matrix for parsimony computations. Missing data
// is the set of all states.
func NewData(m *chars.Matrix) *Data {
	p := m.Patterns()
	nStates := m.Alphabet().Len()
	d := &Data{
		matrix:      m,
		index:       make(map[string]int, m.NTaxa()),
		leaves:      make([][]uint32, m.NTaxa()),
		weights:     append([]int(nil), p.Weights...),
		sitePattern: append([]int(nil), p.SitePattern...),
		full:        uint32(1)<<uint(nStates) - 1,
	}
	for i, name := range m.Taxa() {
		d.index[name] = i
		row := make([]uint32, p.Len())
		for pat, s := range p.Rows[i] {
			if s == chars.Missing {
				row[pat] = d.full
			} else {
				row[pat] = 1 << uint(s)
			}
		}
		d.leaves[i] = row
	}
	return d
}

// Matrix returns the source matrix.
func (d *Data) Matrix() *chars.Matrix {
	return d.matrix
}

// NPatterns returns the number of distinct site patterns.
func (d *Data) NPatterns() int {
	return len(d.weights)
}

// Weights returns a copy of the pattern weights (site counts).
func (d *Data) Weights() []int {
	return append([]int(nil), d.weights...)
}

// leafRows maps node ids of leaves to matrix rows; internal nodes get
// -1.
func (d *Data) leafRows(t *tree.Tree) []int {
	rows := make([]int, t.NNodes())
	for _, node := range t.Nodes() {
		rows[node.Id] = -1
		if node.IsTerminal() {
			rows[node.Id] = d.index[node.Name]
		}
	}
	return rows
}

// Score returns the Fitch parsimony score of the tree with the original
// site weights. Tree leaves must match the matrix taxa.
func (d *Data) Score(t *tree.Tree) (int, error) {
	if err := t.CheckTaxa(d.matrix.Taxa()); err != nil {
		return 0, fmt.Errorf("parsimony score: %w", err)
	}
	return d.fitch(t, d.weights, nil), nil
}

// ScoreWeighted returns the score under arbitrary pattern weights.
func (d *Data) ScoreWeighted(t *tree.Tree, weights []int) (int, error) {
	if len(weights) != len(d.weights) {
		return 0, fmt.Errorf("parsimony score: %d weights for %d patterns", len(weights), len(d.weights))
	}
	if err := t.CheckTaxa(d.matrix.Taxa()); err != nil {
		return 0, fmt.Errorf("parsimony score: %w", err)
	}
	return d.fitch(t, weights, nil), nil
}

// fitch runs the Fitch post-order pass and returns the weighted number
// of changes. Multifurcations are scored as soft polytomies: the node
// set holds the states shared by most children and the cost is the
// number of children lacking them. If sets is not nil, it receives the
// state sets of every node (node id × pattern).
func (d *Data) fitch(t *tree.Tree, weights []int, sets [][]uint32) int {
	nPat := len(d.weights)
	rows := d.leafRows(t)
	if sets == nil {
		sets = make([][]uint32, t.NNodes())
	}
	score := 0
	for _, node := range t.PostOrder() {
		if node.IsTerminal() {
			sets[node.Id] = d.leaves[rows[node.Id]]
			continue
		}
		set := make([]uint32, nPat)
		children := node.ChildNodes()
		switch len(children) {
		case 1:
			copy(set, sets[children[0].Id])
		case 2:
			s1, s2 := sets[children[0].Id], sets[children[1].Id]
			for pat := range set {
				if inter := s1[pat] & s2[pat]; inter != 0 {
					set[pat] = inter
				} else {
					set[pat] = s1[pat] | s2[pat]
					score += weights[pat]
				}
			}
		default:
			var counts [32]int
			for pat := range set {
				counts = [32]int{}
				for _, child := range children {
					for s := sets[child.Id][pat]; s != 0; s &= s - 1 {
						counts[bits.TrailingZeros32(s)]++
					}
				}
				max := 0
				for state, c := range counts {
					if c > max {
						max = c
						set[pat] = 1 << uint(state)
					} else if c == max && c > 0 {
						set[pat] |= 1 << uint(state)
					}
				}
				score += (len(children) - max) * weights[pat]
			}
		}
		sets[node.Id] = set
	}
	return score
}
