package parsimony

import (
	"fmt"
	"math/bits"

	"bitbucket.org/Davydov/charphy/chars"
	"bitbucket.org/Davydov/charphy/tree"
)

// Reconstruction is an assignment of one state per node and pattern
// with branch lengths equal to the number of changes on each edge.
type Reconstruction struct {
	// Tree is a copy of the input tree with branch lengths set.
	Tree *tree.Tree
	// States are indexed by node id and pattern.
	States [][]chars.State
	// Length is the total number of changes.
	Length int
}

// lowest returns the smallest state of a non-empty set.
func lowest(set uint32) chars.State {
	return chars.State(bits.TrailingZeros32(set))
}

// Acctran assigns ancestral states: Fitch state sets are computed in
// post-order, then every node takes the state of its parent if its set
// allows it and the lowest state of its set otherwise. The root takes
// the lowest state of its set. Branch lengths are the weighted number of
// sites where a node differs from its parent; on binary trees they sum
// to the Fitch score.
func (d *Data) Acctran(t *tree.Tree) (*Reconstruction, error) {
	if err := t.CheckTaxa(d.matrix.Taxa()); err != nil {
		return nil, fmt.Errorf("acctran: %w", err)
	}
	res := t.Copy()
	nPat := len(d.weights)
	sets := make([][]uint32, res.NNodes())
	d.fitch(res, d.weights, sets)

	states := make([][]chars.State, res.NNodes())
	total := 0
	for node := range res.Walker(nil) {
		st := make([]chars.State, nPat)
		set := sets[node.Id]
		if node.IsRoot() {
			for pat := range st {
				st[pat] = lowest(set[pat])
			}
			node.BranchLength = 0
			states[node.Id] = st
			continue
		}
		parent := states[node.Parent.Id]
		changes := 0
		for pat := range st {
			if set[pat]&(1<<uint(parent[pat])) != 0 {
				st[pat] = parent[pat]
			} else {
				st[pat] = lowest(set[pat])
				changes += d.weights[pat]
			}
		}
		node.BranchLength = float64(changes)
		total += changes
		states[node.Id] = st
	}
	res.Score = &tree.Score{Kind: tree.Parsimony, Value: float64(total)}
	log.Debugf("acctran: total length %d", total)
	return &Reconstruction{Tree: res, States: states, Length: total}, nil
}

// Collapse returns a copy of the reconstructed tree with zero-length
// internal edges contracted.
func (r *Reconstruction) Collapse() *tree.Tree {
	t := r.Tree.CollapseShorter(0)
	t.Score = r.Tree.Score
	return t
}

// SiteStates returns the state of a node at an original site.
func (d *Data) SiteStates(r *Reconstruction, nodeId int) []chars.State {
	res := make([]chars.State, len(d.sitePattern))
	for site, pat := range d.sitePattern {
		res[site] = r.States[nodeId][pat]
	}
	return res
}
