package optimize

import (
	"errors"
	"math"

	opt "gonum.org/v1/gonum/optimize"
)

// BFGS is an unconstrained quasi-Newton optimizer. Parameter bounds
// are enforced with a quadratic penalty outside of the allowed range.
type BFGS struct {
	BaseOptimizer
	dH      float64
	penalty float64
}

func NewBFGS() (bfgs *BFGS) {
	bfgs = &BFGS{
		BaseOptimizer: BaseOptimizer{
			repPeriod: 10,
		},
		dH:      1e-6,
		penalty: 1e4,
	}
	return
}

func (b *BFGS) Init() error {
	return nil
}

func (b *BFGS) Record(l *opt.Location, op opt.Operation, s *opt.Stats) error {
	if op == opt.MajorIteration {
		b.i = s.MajorIterations
		if b.repPeriod > 0 && b.i%b.repPeriod == 0 {
			b.PrintLine(b.parameters, -l.F)
		}
	}
	if b.done() {
		return errors.New("optimization cancelled")
	}
	return nil
}

// clamp returns x moved into the parameter bounds and the squared
// distance it was moved by.
func (b *BFGS) clamp(x []float64) ([]float64, float64) {
	c := make([]float64, len(x))
	d := 0.0
	for i, par := range b.parameters {
		c[i] = math.Max(par.GetMin(), math.Min(par.GetMax(), x[i]))
		d += (c[i] - x[i]) * (c[i] - x[i])
	}
	return c, d
}

func (b *BFGS) Func(x []float64) float64 {
	c, d := b.clamp(x)
	b.parameters.SetValues(c)

	l := b.Likelihood()
	b.update(b.parameters, l)
	return -l + b.penalty*d
}

// Grad computes the forward difference gradient on a copy of the
// optimizable.
func (b *BFGS) Grad(grad, x []float64) {
	c, _ := b.clamp(x)
	no1 := b.Optimizable.Copy()
	par1 := no1.GetFloatParameters()
	par1.SetValues(c)
	l1 := -no1.Likelihood()
	b.calls++
	for i := range x {
		no2 := no1.Copy()
		par2 := no2.GetFloatParameters()
		h := b.dH
		if c[i]+h > par2[i].GetMax() {
			h = -h
		}
		par2[i].Set(c[i] + h)
		l2 := -no2.Likelihood()
		b.calls++
		grad[i] = (l2-l1)/h + 2*b.penalty*(x[i]-c[i])
	}
}

func (b *BFGS) Run(iterations int) {
	b.maxL = math.Inf(-1)
	b.maxLPar = nil
	b.PrintHeader(b.parameters)
	settings := &opt.Settings{
		MajorIterations:   iterations,
		GradientThreshold: 1e-3,
		Recorder:          b,
	}
	problem := opt.Problem{
		Func: b.Func,
		Grad: b.Grad,
	}

	_, err := opt.Minimize(problem, b.parameters.Values(nil), settings, &opt.BFGS{})
	if err != nil {
		log.Warningf("Optimization error: %v", err)
	}

	b.finish()
	if !b.Quiet {
		log.Info("Finished BFGS")
		log.Infof("Maximum likelihood: %v", b.maxL)
	}
	b.PrintFinal(b.parameters)
}
