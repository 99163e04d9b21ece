package parsimony

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"bitbucket.org/Davydov/charphy/tree"
)

// MoveKind selects the neighborhood of the local search.
type MoveKind int

const (
	// NNI is nearest-neighbor interchange.
	NNI MoveKind = iota
	// SPR is subtree prune and regraft.
	SPR
)

func (k MoveKind) String() string {
	if k == SPR {
		return "spr"
	}
	return "nni"
}

// neighbors returns functions producing all neighbor trees.
func neighbors(t *tree.Tree, kind MoveKind) []func() (*tree.Tree, error) {
	var res []func() (*tree.Tree, error)
	switch kind {
	case SPR:
		for _, m := range t.SPRMoves() {
			m := m
			res = append(res, func() (*tree.Tree, error) { return t.SPR(m) })
		}
	default:
		for _, m := range t.NNIMoves() {
			m := m
			res = append(res, func() (*tree.Tree, error) { return t.NNI(m) })
		}
	}
	return res
}

// Search runs a hill-climbing local search from t under the given
// pattern weights. Every round all neighbors are scored concurrently
// (at most workers at a time) and the best improving one is taken;
// among equal scores the first in move order wins. The search stops
// when no neighbor improves the score. If ctx is cancelled the best
// tree so far is returned together with the context error.
func (d *Data) Search(ctx context.Context, t *tree.Tree, weights []int, kind MoveKind, workers int) (*tree.Tree, int, error) {
	if err := t.CheckTaxa(d.matrix.Taxa()); err != nil {
		return nil, 0, fmt.Errorf("local search: %w", err)
	}
	if weights == nil {
		weights = d.weights
	} else if len(weights) != len(d.weights) {
		return nil, 0, fmt.Errorf("local search: %d weights for %d patterns", len(weights), len(d.weights))
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	cur := t
	curScore := d.fitch(cur, weights, nil)
	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return cur, curScore, err
		}
		moves := neighbors(cur, kind)
		if len(moves) == 0 {
			break
		}
		// Fill node caches before cur is read concurrently.
		cur.Nodes()
		trees := make([]*tree.Tree, len(moves))
		scores := make([]int, len(moves))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i, move := range moves {
			i, move := i, move
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				nt, err := move()
				if err != nil {
					return err
				}
				trees[i] = nt
				scores[i] = d.fitch(nt, weights, nil)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return cur, curScore, err
		}

		best := -1
		for i, s := range scores {
			if s < curScore && (best < 0 || s < scores[best]) {
				best = i
			}
		}
		if best < 0 {
			log.Debugf("local search (%v): no improvement after %d rounds, score %d", kind, round, curScore)
			break
		}
		cur, curScore = trees[best], scores[best]
	}
	return cur, curScore, nil
}
