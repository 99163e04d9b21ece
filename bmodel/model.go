package bmodel

import (
	"fmt"
	"math"

	"bitbucket.org/Davydov/charphy/dist"
	"bitbucket.org/Davydov/charphy/optimize"
	"bitbucket.org/Davydov/charphy/tree"
)

const (
	minBranch = 1e-8
	maxBranch = 10
	// partial likelihoods smaller than this are rescaled
	scaleThreshold = 1e-30
)

// Model is a substitution model bound to data and a tree. It computes
// the log-likelihood and exposes its free parameters to the
// optimizers. A Model is not safe for concurrent use; use Copy.
type Model struct {
	data  *Data
	tree  *tree.Tree
	subst Substitution

	pi1, alpha float64
	parameters optimize.FloatParameters

	rates []float64

	// per-node partial likelihoods and log scale factors
	plh     [][]float64
	scale   []float64
	siteLnL []float64

	lnL   float64
	lnLOK bool
}

// NewModel binds a substitution model to a copy of the tree. The tree
// leaves must match the matrix taxa.
func NewModel(data *Data, t *tree.Tree, subst Substitution) (*Model, error) {
	if err := subst.Validate(); err != nil {
		return nil, err
	}
	if err := t.CheckTaxa(data.matrix.Taxa()); err != nil {
		return nil, fmt.Errorf("likelihood: %w", err)
	}
	if subst.Ascertainment {
		if n := data.ConstantSites(); n > 0 {
			log.Warningf("Ascertainment correction with %d constant characters in the data", n)
		}
	}
	m := &Model{
		data:  data,
		tree:  t.Copy(),
		subst: subst,
		pi1:   subst.Pi1,
		alpha: subst.Alpha,
	}
	m.setupParameters()
	return m, nil
}

func (m *Model) setupParameters() {
	m.parameters = nil
	if m.subst.OptimizeFreq {
		pi1 := optimize.NewBasicFloatParameter(&m.pi1, "pi1")
		pi1.SetMin(minPi)
		pi1.SetMax(maxPi)
		pi1.SetOnChange(func() {
			m.lnLOK = false
		})
		m.parameters.Append(pi1)
	}
	if m.subst.NCat > 1 && !m.subst.FixAlpha {
		alpha := optimize.NewBasicFloatParameter(&m.alpha, "alpha")
		alpha.SetMin(minAlpha)
		alpha.SetMax(maxAlpha)
		alpha.SetOnChange(func() {
			m.rates = nil
			m.lnLOK = false
		})
		m.parameters.Append(alpha)
	}
}

// GetFloatParameters returns the free model parameters.
func (m *Model) GetFloatParameters() optimize.FloatParameters {
	return m.parameters
}

// Copy returns an independent model with a copy of the tree.
func (m *Model) Copy() optimize.Optimizable {
	return m.copyWithTree(m.tree.Copy())
}

// copyWithTree returns a model with the same parameters and the given
// tree. Only reads m, so it may run concurrently.
func (m *Model) copyWithTree(t *tree.Tree) *Model {
	c := &Model{
		data:  m.data,
		tree:  t,
		subst: m.subst,
		pi1:   m.pi1,
		alpha: m.alpha,
	}
	if m.rates != nil {
		c.rates = append([]float64(nil), m.rates...)
	}
	c.setupParameters()
	return c
}

// Tree returns the model tree. It must not be modified.
func (m *Model) Tree() *tree.Tree {
	return m.tree
}

// Substitution returns the model with the current parameter values.
func (m *Model) Substitution() Substitution {
	s := m.subst
	s.Pi1 = m.pi1
	s.Alpha = m.alpha
	return s
}

// setLength changes a branch length.
func (m *Model) setLength(node *tree.Node, l float64) {
	if node.BranchLength != l {
		node.BranchLength = l
		m.lnLOK = false
	}
}

// Likelihood returns the log-likelihood of the data.
func (m *Model) Likelihood() float64 {
	if !m.lnLOK {
		m.lnL = m.logLikelihood()
		m.lnLOK = true
	}
	return m.lnL
}

// SiteLikelihoods returns per-site log-likelihoods without the
// ascertainment correction.
func (m *Model) SiteLikelihoods() []float64 {
	m.Likelihood()
	p := m.data.matrix.Patterns()
	res := make([]float64, len(p.SitePattern))
	for i, pat := range p.SitePattern {
		res[i] = m.siteLnL[pat]
	}
	return res
}

func (m *Model) prepare() {
	if m.rates == nil {
		m.rates = dist.Rates(m.alpha, m.subst.NCat, false)
	}
	nNodes := m.tree.NNodes()
	width := 2 * (m.data.nPat + 2)
	if len(m.plh) != nNodes {
		m.plh = make([][]float64, nNodes)
	}
	for i := range m.plh {
		if len(m.plh[i]) != width {
			m.plh[i] = make([]float64, width)
		}
	}
	if len(m.scale) != nNodes*(m.data.nPat+2) {
		m.scale = make([]float64, nNodes*(m.data.nPat+2))
	}
}

func (m *Model) logLikelihood() float64 {
	m.prepare()
	nPat := m.data.nPat + 2
	nCat := len(m.rates)
	catLnL := make([]float64, nCat*nPat)
	for c, r := range m.rates {
		m.prune(r, catLnL[c*nPat:(c+1)*nPat])
	}

	m.siteLnL = make([]float64, nPat)
	lnCat := math.Log(float64(nCat))
	for pat := 0; pat < nPat; pat++ {
		max := math.Inf(-1)
		for c := 0; c < nCat; c++ {
			max = math.Max(max, catLnL[c*nPat+pat])
		}
		if math.IsInf(max, -1) {
			m.siteLnL[pat] = max
			continue
		}
		sum := 0.0
		for c := 0; c < nCat; c++ {
			sum += math.Exp(catLnL[c*nPat+pat] - max)
		}
		m.siteLnL[pat] = max + math.Log(sum) - lnCat
	}

	res := 0.0
	for pat, w := range m.data.weights {
		res += w * m.siteLnL[pat]
	}
	if m.subst.Ascertainment {
		p0 := math.Exp(m.siteLnL[m.data.nPat])
		p1 := math.Exp(m.siteLnL[m.data.nPat+1])
		q := 1 - p0 - p1
		if q <= 0 {
			return math.Inf(-1)
		}
		res -= float64(m.data.nSites) * math.Log(q)
	}
	return res
}

// prune computes per-pattern log-likelihoods for one rate category
// with the pruning algorithm.
func (m *Model) prune(rate float64, res []float64) {
	nPat := m.data.nPat + 2
	for i := range m.scale {
		m.scale[i] = 0
	}
	partial := func(node *tree.Node) []float64 {
		if node.IsTerminal() {
			return m.data.leaves[m.data.index[node.Name]]
		}
		return m.plh[node.Id]
	}

	var root *tree.Node
	for _, node := range m.tree.PostOrder() {
		if node.IsRoot() {
			root = node
		}
		if node.IsTerminal() {
			continue
		}
		buf := m.plh[node.Id]
		for i := range buf {
			buf[i] = 1
		}
		sc := m.scale[node.Id*nPat : (node.Id+1)*nPat]
		for _, child := range node.ChildNodes() {
			p := newTransition(child.BranchLength*rate, m.pi1)
			cl := partial(child)
			for pat := 0; pat < nPat; pat++ {
				a0, a1 := cl[2*pat], cl[2*pat+1]
				buf[2*pat] *= p[0][0]*a0 + p[0][1]*a1
				buf[2*pat+1] *= p[1][0]*a0 + p[1][1]*a1
			}
			if !child.IsTerminal() {
				csc := m.scale[child.Id*nPat : (child.Id+1)*nPat]
				for pat := range sc {
					sc[pat] += csc[pat]
				}
			}
		}
		for pat := 0; pat < nPat; pat++ {
			mx := math.Max(buf[2*pat], buf[2*pat+1])
			if mx < scaleThreshold && mx > 0 {
				buf[2*pat] /= mx
				buf[2*pat+1] /= mx
				sc[pat] += math.Log(mx)
			}
		}
	}

	pi0 := 1 - m.pi1
	if root.IsTerminal() {
		cl := partial(root)
		for pat := 0; pat < nPat; pat++ {
			res[pat] = math.Log(pi0*cl[2*pat] + m.pi1*cl[2*pat+1])
		}
		return
	}
	buf := m.plh[root.Id]
	sc := m.scale[root.Id*nPat : (root.Id+1)*nPat]
	for pat := 0; pat < nPat; pat++ {
		res[pat] = math.Log(pi0*buf[2*pat]+m.pi1*buf[2*pat+1]) + sc[pat]
	}
}

// LogLikelihood computes the log-likelihood of a fixed tree.
func LogLikelihood(data *Data, t *tree.Tree, subst Substitution) (float64, error) {
	m, err := NewModel(data, t, subst)
	if err != nil {
		return 0, err
	}
	return m.Likelihood(), nil
}
