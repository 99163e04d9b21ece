// Package optimize maximizes likelihood functions of models with
// bounded float parameters.
package optimize

import (
	"context"
	"math"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("optimize")

// Optimizable is a model with float parameters and a likelihood
// function.
type Optimizable interface {
	GetFloatParameters() FloatParameters
	Likelihood() float64
	Copy() Optimizable
}

type Optimizer interface {
	SetOptimizable(Optimizable)
	SetContext(context.Context)
	SetReportPeriod(period int)
	Run(iterations int)
	GetL() float64
	GetMaxL() float64
	GetMaxLParameters() []float64
	Calls() int
}

type BaseOptimizer struct {
	Optimizable
	parameters FloatParameters
	ctx        context.Context
	i          int
	l          float64
	maxL       float64
	maxLPar    []float64
	calls      int
	repPeriod  int
	Quiet      bool
}

func (o *BaseOptimizer) SetOptimizable(opt Optimizable) {
	o.Optimizable = opt
	o.parameters = opt.GetFloatParameters()
}

// SetContext sets a context; optimizers which support it stop early
// when the context is done.
func (o *BaseOptimizer) SetContext(ctx context.Context) {
	o.ctx = ctx
}

func (o *BaseOptimizer) SetReportPeriod(period int) {
	o.repPeriod = period
}

// done returns true if the context is cancelled.
func (o *BaseOptimizer) done() bool {
	if o.ctx == nil {
		return false
	}
	select {
	case <-o.ctx.Done():
		return true
	default:
		return false
	}
}

func (o *BaseOptimizer) PrintHeader(par FloatParameters) {
	if !o.Quiet {
		log.Debugf("iteration\tlikelihood\t%s", par.NamesString())
	}
}

func (o *BaseOptimizer) PrintLine(par FloatParameters, l float64) {
	if !o.Quiet {
		log.Debugf("%d\t%f\t%s", o.i, l, par.ValuesString())
	}
}

func (o *BaseOptimizer) PrintFinal(par FloatParameters) {
	if !o.Quiet {
		for _, par := range par {
			log.Infof("%s=%v", par.Name(), par.Get())
		}
	}
}

// update remembers the best likelihood and parameters seen.
func (o *BaseOptimizer) update(par FloatParameters, l float64) {
	o.calls++
	if l > o.maxL || o.maxLPar == nil {
		o.maxL = l
		o.maxLPar = par.Values(o.maxLPar)
	}
}

// finish sets the optimizable to the best parameters found.
func (o *BaseOptimizer) finish() {
	if o.maxLPar != nil && !math.IsInf(o.maxL, -1) {
		o.parameters.SetValues(o.maxLPar)
		o.l = o.maxL
	}
}

func (o *BaseOptimizer) GetL() float64 {
	return o.l
}

func (o *BaseOptimizer) GetMaxL() float64 {
	return o.maxL
}

func (o *BaseOptimizer) GetMaxLParameters() []float64 {
	return o.maxLPar
}

// Calls returns the number of likelihood evaluations.
func (o *BaseOptimizer) Calls() int {
	return o.calls
}
