package pricing

import "math"

// priceBlackScholes returns the closed-form European price with full Greeks.
// Vega is per one volatility point and theta is per calendar day.
func priceBlackScholes(in Input) Result {
	if r, ok := validate(BlackScholes, in); !ok {
		return r
	}

	S, K, T, r, sigma := in.Spot, in.Strike, in.T, in.Rate, in.Vol
	sqrtT := math.Sqrt(T)
	d1 := (math.Log(S/K) + (r+sigma*sigma/2)*T) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT
	disc := math.Exp(-r * T)

	var price, delta, carry float64
	if in.Type == Call {
		price = S*NormCDF(d1) - K*disc*NormCDF(d2)
		delta = NormCDF(d1)
		carry = -r * K * disc * NormCDF(d2)
	} else {
		price = K*disc*NormCDF(-d2) - S*NormCDF(-d1)
		delta = -NormCDF(-d1)
		carry = r * K * disc * NormCDF(-d2)
	}

	pdf := NormPDF(d1)
	gamma := pdf / (S * sigma * sqrtT)
	vega := S * pdf * sqrtT / 100
	theta := (-S*pdf*sigma/(2*sqrtT) + carry) / 365

	if math.IsNaN(price) || math.IsInf(price, 0) {
		return failed(BlackScholes, "non-finite price for S=%v K=%v T=%v", S, K, T)
	}

	return Result{
		Model: BlackScholes,
		Price: price,
		Greeks: &Greeks{
			Delta: delta,
			Gamma: f64(gamma),
			Theta: f64(theta),
			Vega:  f64(vega),
		},
		Status: StatusOK,
	}
}

// D1 is the Black-Scholes d1 term; exported for analytic probability estimates
func D1(spot, strike, t, rate, vol float64) float64 {
	return (math.Log(spot/strike) + (rate+vol*vol/2)*t) / (vol * math.Sqrt(t))
}
