// Package nj builds trees from distance matrices with the neighbor
// joining algorithm.
package nj

import (
	"fmt"
	"math"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/floats"

	"bitbucket.org/Davydov/charphy/distance"
	"bitbucket.org/Davydov/charphy/tree"
)

var log = logging.MustGetLogger("nj")

// NeighborJoining returns an unrooted binary tree for the distance
// matrix. The pair with the smallest Q value is joined at every step;
// ties go to the pair which comes first in the current cluster order.
// Negative branch lengths are set to zero. The tree carries a Distance
// score with its total length.
func NeighborJoining(d *distance.Matrix) (*tree.Tree, error) {
	n := d.Len()
	if n < 3 {
		return nil, &tree.DegenerateInputError{
			Reason: fmt.Sprintf("neighbor joining needs at least 3 taxa, got %d", n)}
	}

	dm := d.Values()
	clusters := make([]*tree.Node, n)
	for i, name := range d.Taxa() {
		clusters[i] = tree.NewNode(nil, i)
		clusters[i].Name = name
	}
	nodeId := n
	r := make([]float64, n)

	for len(clusters) > 3 {
		m := len(clusters)
		for i := 0; i < m; i++ {
			r[i] = floats.Sum(dm[i])
		}

		bi, bj := 0, 1
		best := math.Inf(1)
		for i := 0; i < m; i++ {
			for j := i + 1; j < m; j++ {
				q := float64(m-2)*dm[i][j] - r[i] - r[j]
				if q < best {
					best = q
					bi, bj = i, j
				}
			}
		}

		dij := dm[bi][bj]
		li := dij/2 + (r[bi]-r[bj])/(2*float64(m-2))
		lj := dij - li
		clusters[bi].BranchLength = clamp(li)
		clusters[bj].BranchLength = clamp(lj)

		u := tree.NewNode(nil, nodeId)
		nodeId++
		u.AddChild(clusters[bi])
		u.AddChild(clusters[bj])
		log.Debugf("joining %d and %d (Q=%g)", bi, bj, best)

		for k := 0; k < m; k++ {
			if k == bi || k == bj {
				continue
			}
			duk := (dm[bi][k] + dm[bj][k] - dij) / 2
			dm[bi][k] = duk
			dm[k][bi] = duk
		}
		clusters[bi] = u

		clusters = append(clusters[:bj], clusters[bj+1:]...)
		dm = append(dm[:bj], dm[bj+1:]...)
		for k := range dm {
			dm[k] = append(dm[k][:bj], dm[k][bj+1:]...)
		}
	}

	// Join the last three clusters at the root.
	dab, dac, dbc := dm[0][1], dm[0][2], dm[1][2]
	clusters[0].BranchLength = clamp((dab + dac - dbc) / 2)
	clusters[1].BranchLength = clamp((dab + dbc - dac) / 2)
	clusters[2].BranchLength = clamp((dac + dbc - dab) / 2)
	root := tree.NewNode(nil, nodeId)
	for _, c := range clusters {
		root.AddChild(c)
	}

	t := tree.New(root)
	t.Score = &tree.Score{Kind: tree.Distance, Value: t.TotalLength()}
	log.Infof("neighbor joining tree for %d taxa, length %g", n, t.Score.Value)
	return t, nil
}

func clamp(l float64) float64 {
	if l < 0 {
		return 0
	}
	return l
}
