// Package bmodel implements the likelihood engine for binary
// characters: a two-state continuous-time Markov model with optional
// gamma rate variation and ascertainment bias correction, and joint
// optimization of topology, branch lengths and model parameters.
package bmodel

import (
	"fmt"
	"math"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("bmodel")

const (
	// ER is the equal rates model.
	ER = "ER"

	minPi    = 1e-3
	maxPi    = 1 - minPi
	minAlpha = 1e-2
	maxAlpha = 100
	maxCat   = 64
)

// Substitution describes the substitution model.
type Substitution struct {
	// Name is the model name; only ER is supported.
	Name string
	// NCat is the number of gamma rate categories; 1 means no rate
	// variation.
	NCat int
	// Alpha is the gamma shape parameter.
	Alpha float64
	// Pi1 is the equilibrium frequency of state 1.
	Pi1 float64
	// OptimizeFreq makes Pi1 a free parameter; otherwise it is fixed.
	OptimizeFreq bool
	// FixAlpha keeps Alpha fixed when NCat > 1.
	FixAlpha bool
	// Ascertainment enables the correction for unobserved constant
	// characters.
	Ascertainment bool
}

// DefaultSubstitution returns the ER model without rate variation.
func DefaultSubstitution() Substitution {
	return Substitution{
		Name:  ER,
		NCat:  1,
		Alpha: 1,
		Pi1:   0.5,
	}
}

// Validate checks parameter values.
func (s Substitution) Validate() error {
	switch {
	case s.Name != ER:
		return fmt.Errorf("unknown substitution model %q", s.Name)
	case s.NCat < 1 || s.NCat > maxCat:
		return fmt.Errorf("number of rate categories must be in 1..%d, got %d", maxCat, s.NCat)
	case s.NCat > 1 && (s.Alpha < minAlpha || s.Alpha > maxAlpha):
		return fmt.Errorf("gamma shape must be in [%g, %g], got %g", minAlpha, maxAlpha, s.Alpha)
	case s.Pi1 < minPi || s.Pi1 > maxPi:
		return fmt.Errorf("frequency of state 1 must be in [%g, %g], got %g", minPi, maxPi, s.Pi1)
	}
	return nil
}

// Parameters returns the model parameters by name.
func (s Substitution) Parameters() map[string]float64 {
	p := map[string]float64{"pi1": s.Pi1}
	if s.NCat > 1 {
		p["alpha"] = s.Alpha
	}
	return p
}

func (s Substitution) String() string {
	str := s.Name
	if s.NCat > 1 {
		str += fmt.Sprintf("+G%d(alpha=%g)", s.NCat, s.Alpha)
	}
	str += fmt.Sprintf(", pi1=%g", s.Pi1)
	if s.Ascertainment {
		str += ", ascertainment"
	}
	return str
}

// transition is a 2x2 transition probability matrix.
type transition [2][2]float64

// newTransition returns transition probabilities over time t for the
// two-state model with equilibrium frequency pi1. The rate is scaled
// to one expected change per unit time.
func newTransition(t, pi1 float64) (p transition) {
	pi0 := 1 - pi1
	beta := 1 / (2 * pi0 * pi1)
	e := math.Exp(-beta * t)
	p[0][0] = pi0 + pi1*e
	p[0][1] = pi1 * (1 - e)
	p[1][0] = pi0 * (1 - e)
	p[1][1] = pi1 + pi0*e
	return
}
