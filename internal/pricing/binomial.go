package pricing

import "math"

// priceBinomial backward-induces a Cox-Ross-Rubinstein lattice. With
// Params.American set, each node takes the larger of continuation and
// intrinsic value.
func priceBinomial(in Input) Result {
	if r, ok := validate(Binomial, in); !ok {
		return r
	}
	p := in.Params.withDefaults()
	n := p.Steps

	dt := in.T / float64(n)
	u := math.Exp(in.Vol * math.Sqrt(dt))
	d := 1 / u
	q := (math.Exp(in.Rate*dt) - d) / (u - d)
	if q <= 0 || q >= 1 {
		return failed(Binomial, "risk-neutral probability %.4f outside (0,1); increase steps", q)
	}
	disc := math.Exp(-in.Rate * dt)

	// values[j] holds the node with j down moves
	values := make([]float64, n+1)
	for j := 0; j <= n; j++ {
		values[j] = payoff(in.Type, in.Spot*math.Pow(u, float64(n-2*j)), in.Strike)
	}

	for i := n - 1; i >= 0; i-- {
		for j := 0; j <= i; j++ {
			cont := disc * (q*values[j] + (1-q)*values[j+1])
			if p.American {
				cont = math.Max(cont, payoff(in.Type, in.Spot*math.Pow(u, float64(i-2*j)), in.Strike))
			}
			values[j] = cont
		}
	}

	return Result{Model: Binomial, Price: values[0], Status: StatusOK}
}
