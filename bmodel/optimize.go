package bmodel

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"bitbucket.org/Davydov/charphy/distance"
	"bitbucket.org/Davydov/charphy/nj"
	"bitbucket.org/Davydov/charphy/optimize"
	"bitbucket.org/Davydov/charphy/tree"
)

// Optimization methods for model parameters.
const (
	LBFGSB  = "lbfgsb"
	Simplex = "simplex"
	BFGS    = "bfgs"
	None    = "none"
)

const (
	branchTolerance = 1e-6
	brentIterations = 100
	// parameter optimizer iterations per cycle
	parIterations = 500
	// initial simplex step
	simplexDelta = 0.1
)

// Cycle describes a finished optimization cycle.
type Cycle struct {
	N       int
	LnL     float64
	Tree    *tree.Tree
	Model   Substitution
	Elapsed time.Duration
}

// Settings control likelihood optimization.
type Settings struct {
	// Method is the model parameter optimizer.
	Method string
	// Topology enables NNI moves.
	Topology bool
	// Tolerance is the minimal log-likelihood gain per cycle.
	Tolerance float64
	// MaxCycles limits the number of cycles; 0 means no limit.
	MaxCycles int
	// MaxTime limits the run time; 0 means no limit.
	MaxTime time.Duration
	// Workers is the number of concurrent NNI evaluations; 0 means
	// GOMAXPROCS.
	Workers int
	// OnCycle is called after every cycle.
	OnCycle func(Cycle)
}

// DefaultSettings returns settings for a full topology search.
func DefaultSettings() Settings {
	return Settings{
		Method:    LBFGSB,
		Topology:  true,
		Tolerance: 1e-3,
		MaxCycles: 50,
	}
}

// Result is the outcome of Optimize.
type Result struct {
	Tree  *tree.Tree
	Model Substitution
	LnL   float64
	// Cycles is the number of finished cycles.
	Cycles int
	// Trajectory is the log-likelihood at the start and after every
	// cycle.
	Trajectory []float64
}

func newOptimizer(method string) (optimize.Optimizer, error) {
	switch method {
	case LBFGSB, "":
		o := optimize.NewLBFGSB()
		o.Quiet = true
		return o, nil
	case Simplex:
		o := optimize.NewDS()
		o.Quiet = true
		// pi1 lives in (0, 1)
		o.SetDelta(simplexDelta)
		return o, nil
	case BFGS:
		o := optimize.NewBFGS()
		o.Quiet = true
		return o, nil
	case None:
		return optimize.NewNone(), nil
	}
	return nil, fmt.Errorf("unknown optimization method %q", method)
}

// startTree returns an unrooted copy of start with branch lengths
// within bounds, or the neighbor joining tree if start is nil.
func startTree(data *Data, start *tree.Tree) (*tree.Tree, error) {
	var t *tree.Tree
	if start == nil {
		dm, err := distance.Hamming(data.matrix)
		if err != nil {
			return nil, err
		}
		if t, err = nj.NeighborJoining(dm); err != nil {
			return nil, err
		}
	} else {
		if err := start.CheckTaxa(data.matrix.Taxa()); err != nil {
			return nil, err
		}
		t = start.Copy()
		if t.IsRooted() && t.NLeaves() > 2 {
			if _, err := t.Unroot(); err != nil {
				return nil, err
			}
		}
	}
	for _, node := range t.Nodes() {
		if node.IsRoot() {
			continue
		}
		node.BranchLength = math.Min(math.Max(node.BranchLength, minBranch), maxBranch)
	}
	t.Score = nil
	return t, nil
}

// optimizeBranch maximizes the likelihood over the length of the
// branch above a node.
func (m *Model) optimizeBranch(node *tree.Node) float64 {
	old, oldL := node.BranchLength, m.Likelihood()
	x, l := optimize.Brent(func(x float64) float64 {
		m.setLength(node, x)
		return m.Likelihood()
	}, minBranch, maxBranch, old, branchTolerance, brentIterations)
	if l < oldL || math.IsNaN(l) {
		m.setLength(node, old)
	} else {
		m.setLength(node, x)
	}
	return m.Likelihood()
}

// optimizeBranches optimizes every branch length once.
func (m *Model) optimizeBranches() float64 {
	for _, node := range m.tree.Nodes() {
		if !node.IsRoot() {
			m.optimizeBranch(node)
		}
	}
	return m.Likelihood()
}

// nniRound evaluates all NNI neighbors concurrently, optimizing the
// central branch of each, and returns the best one if it improves the
// likelihood.
func (m *Model) nniRound(ctx context.Context, workers int) (*Model, bool, error) {
	moves := m.tree.NNIMoves()
	if len(moves) == 0 {
		return m, false, nil
	}
	cur := m.Likelihood()
	// Fill caches before m is read concurrently.
	m.tree.Nodes()
	cands := make([]*Model, len(moves))
	lnls := make([]float64, len(moves))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, move := range moves {
		i, move := i, move
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t, err := m.tree.NNI(move)
			if err != nil {
				return err
			}
			c := m.copyWithTree(t)
			lnls[i] = c.optimizeBranch(t.Nodes()[move.Node])
			cands[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return m, false, err
	}

	best := -1
	for i, l := range lnls {
		if l > cur && (best < 0 || l > lnls[best]) {
			best = i
		}
	}
	if best < 0 {
		return m, false, nil
	}
	return cands[best], true, nil
}

// optimizeTopology applies improving NNI moves until none is left.
func (m *Model) optimizeTopology(ctx context.Context, workers int) (*Model, error) {
	for {
		next, ok, err := m.nniRound(ctx, workers)
		if err != nil || !ok {
			return m, err
		}
		log.Debugf("nni: %f -> %f", m.Likelihood(), next.Likelihood())
		m = next
	}
}

// optimizeParameters runs the parameter optimizer and reverts if the
// likelihood decreased.
func (m *Model) optimizeParameters(ctx context.Context, method string) (float64, error) {
	if len(m.parameters) == 0 {
		return m.Likelihood(), nil
	}
	o, err := newOptimizer(method)
	if err != nil {
		return 0, err
	}
	old := m.Likelihood()
	saved := m.parameters.Values(nil)
	o.SetOptimizable(m)
	o.SetContext(ctx)
	o.Run(parIterations)
	log.Debugf("%s: %d likelihood calls, lnL=%f", method, o.Calls(), o.GetMaxL())
	if l := m.Likelihood(); l < old || math.IsNaN(l) {
		m.parameters.SetValues(saved)
	}
	return m.Likelihood(), nil
}

// Optimize maximizes the likelihood jointly over topology, branch
// lengths and model parameters. Each cycle optimizes every branch
// length with Brent's method, then applies improving NNI moves, then
// optimizes the model parameters; each step keeps the previous state
// if it is not better, so the trajectory never decreases. Cycles stop
// when the gain is below Tolerance, after MaxCycles, when MaxTime
// elapses or when ctx is cancelled. If start is nil the neighbor
// joining tree is used.
func Optimize(ctx context.Context, data *Data, start *tree.Tree, subst Substitution, s Settings) (*Result, error) {
	if _, err := newOptimizer(s.Method); err != nil {
		return nil, err
	}
	t, err := startTree(data, start)
	if err != nil {
		return nil, fmt.Errorf("likelihood: %w", err)
	}
	m, err := NewModel(data, t, subst)
	if err != nil {
		return nil, err
	}
	workers := s.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	began := time.Now()
	if s.MaxTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.MaxTime)
		defer cancel()
	}

	lnL := m.Likelihood()
	log.Infof("start lnL=%f", lnL)
	res := &Result{Trajectory: []float64{lnL}}
	for cycle := 1; s.MaxCycles <= 0 || cycle <= s.MaxCycles; cycle++ {
		if ctx.Err() != nil {
			log.Noticef("optimization stopped before cycle %d: %v", cycle, ctx.Err())
			break
		}
		old := lnL
		m.optimizeBranches()
		if s.Topology {
			next, err := m.optimizeTopology(ctx, workers)
			if err != nil && ctx.Err() == nil {
				return nil, err
			}
			m = next
		}
		if lnL, err = m.optimizeParameters(ctx, s.Method); err != nil {
			return nil, err
		}
		res.Trajectory = append(res.Trajectory, lnL)
		res.Cycles = cycle
		log.Debugf("cycle %d: lnL=%f (%s)", cycle, lnL, m.Substitution())
		if s.OnCycle != nil {
			s.OnCycle(Cycle{
				N:       cycle,
				LnL:     lnL,
				Tree:    m.tree.Copy(),
				Model:   m.Substitution(),
				Elapsed: time.Since(began),
			})
		}
		if lnL-old < s.Tolerance {
			break
		}
	}

	res.Tree = m.tree.Copy()
	res.Model = m.Substitution()
	res.LnL = lnL
	res.Tree.Score = &tree.Score{
		Kind:       tree.LogLikelihood,
		Value:      lnL,
		Parameters: res.Model.Parameters(),
	}
	log.Noticef("optimization finished after %d cycles, lnL=%f", res.Cycles, lnL)
	return res, nil
}
