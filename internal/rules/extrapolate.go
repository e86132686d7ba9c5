package rules

import (
	"fmt"
	"math"
	"strings"
)

// Extrapolator derives the rate of a generated reaction from the rule's
// base rate. ref holds the reactant weights the base rate was measured
// for; actual holds the weights of the reactants at hand.
type Extrapolator interface {
	Name() string
	Rate(base float64, ref, actual []float64) float64
}

// Fixed uses the base rate unchanged for every reaction.
type Fixed struct{}

func (Fixed) Name() string { return "fixed" }

func (Fixed) Rate(base float64, _, _ []float64) float64 { return base }

// MassScaled scales binary rates by the square root of the reduced-mass
// ratio between the reference and actual reactant pairs, as in collision
// theory. Unary rates are unchanged.
type MassScaled struct{}

func (MassScaled) Name() string { return "mass" }

func (MassScaled) Rate(base float64, ref, actual []float64) float64 {
	if len(ref) != 2 || len(actual) != 2 {
		return base
	}
	muRef := reducedMass(ref[0], ref[1])
	mu := reducedMass(actual[0], actual[1])
	if muRef <= 0 || mu <= 0 {
		return base
	}
	return base * math.Sqrt(muRef/mu)
}

func reducedMass(a, b float64) float64 {
	if a+b <= 0 {
		return 0
	}
	return a * b / (a + b)
}

// ParseExtrapolation maps a configuration name to a strategy.
func ParseExtrapolation(name string) (Extrapolator, error) {
	switch strings.ToLower(name) {
	case "", "fixed":
		return Fixed{}, nil
	case "mass", "mass-scaled":
		return MassScaled{}, nil
	default:
		return nil, fmt.Errorf("unknown rate extrapolation %q (valid: fixed, mass)", name)
	}
}
