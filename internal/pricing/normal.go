package pricing

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// NormCDF is the standard normal cumulative distribution
func NormCDF(x float64) float64 { return distuv.UnitNormal.CDF(x) }

// NormPDF is the standard normal density
func NormPDF(x float64) float64 { return distuv.UnitNormal.Prob(x) }

// NormQuantile is the inverse of NormCDF on (0, 1)
func NormQuantile(p float64) float64 { return distuv.UnitNormal.Quantile(p) }

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// validate applies the input checks shared by every model
func validate(m Model, in Input) (Result, bool) {
	switch {
	case !finitePositive(in.Spot):
		return invalid(m, "spot must be positive, got %v", in.Spot), false
	case !finitePositive(in.Strike):
		return invalid(m, "strike must be positive, got %v", in.Strike), false
	case !finitePositive(in.Vol):
		return invalid(m, "volatility must be positive, got %v", in.Vol), false
	case !finitePositive(in.T):
		return invalid(m, "time to expiry must be positive, got %v", in.T), false
	case math.IsNaN(in.Rate) || math.IsInf(in.Rate, 0):
		return invalid(m, "rate must be finite, got %v", in.Rate), false
	case in.Type != Call && in.Type != Put:
		return invalid(m, "option type must be call or put, got %q", in.Type), false
	}
	return Result{}, true
}

func payoff(t OptionType, st, k float64) float64 {
	if t == Call {
		return math.Max(st-k, 0)
	}
	return math.Max(k-st, 0)
}
