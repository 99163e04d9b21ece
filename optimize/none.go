package optimize

import "math"

// None is an optimizer which computes initial value and exits.
type None struct {
	BaseOptimizer
}

// NewNone creates an optimizer which computes initial likelihood only.
func NewNone() *None {
	return &None{}
}

// Run computes the likelihood at the current parameter values.
func (n *None) Run(iterations int) {
	n.maxL = math.Inf(-1)
	n.l = n.Likelihood()
	n.update(n.parameters, n.l)
	n.PrintHeader(n.parameters)
	n.PrintLine(n.parameters, n.l)
}
