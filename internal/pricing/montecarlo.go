package pricing

import (
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// chunkSize is the number of normals drawn per worker; chunk boundaries and
// per-chunk seeds are fixed so results do not depend on scheduling.
const chunkSize = 4096

// drawNormals fills n standard normal variates using pseudo-random draws
// (MonteCarlo) or the inverse-transformed Sobol sequence (QuasiMonteCarlo).
func drawNormals(model Model, n int, seed uint64) []float64 {
	z := make([]float64, n)
	shift := scrambleShift(seed)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		g.Go(func() error {
			if model == QuasiMonteCarlo {
				for i := start; i < end; i++ {
					z[i] = NormQuantile(sobolPoint(uint32(i), shift))
				}
				return nil
			}
			rng := rand.New(rand.NewPCG(seed, uint64(start)))
			for i := start; i < end; i++ {
				z[i] = rng.NormFloat64()
			}
			return nil
		})
	}
	_ = g.Wait()
	return z
}

// TerminalPrices simulates n risk-neutral GBM terminal prices for the
// underlying in in. Only MonteCarlo and QuasiMonteCarlo are accepted.
func TerminalPrices(model Model, in Input, n int) ([]float64, error) {
	if !model.Simulated() {
		return nil, fmt.Errorf("model %s does not simulate paths", model)
	}
	if !finitePositive(in.Spot) || !finitePositive(in.Vol) || !finitePositive(in.T) {
		return nil, fmt.Errorf("invalid simulation input: spot=%v vol=%v t=%v", in.Spot, in.Vol, in.T)
	}
	if n <= 0 {
		n = DefaultSimulations
	}

	drift := (in.Rate - in.Vol*in.Vol/2) * in.T
	diffusion := in.Vol * math.Sqrt(in.T)
	z := drawNormals(model, n, in.Params.Seed)
	for i, zi := range z {
		z[i] = in.Spot * math.Exp(drift+diffusion*zi)
	}
	return z, nil
}

// priceSimulated prices by discounted mean payoff. Only a pathwise delta is
// produced; gamma, theta and vega stay nil.
func priceSimulated(model Model, in Input) Result {
	if r, ok := validate(model, in); !ok {
		return r
	}
	p := in.Params.withDefaults()

	st, err := TerminalPrices(model, in, p.Simulations)
	if err != nil {
		return failed(model, "%v", err)
	}

	var sumPayoff, sumDelta float64
	for _, s := range st {
		sumPayoff += payoff(in.Type, s, in.Strike)
		switch {
		case in.Type == Call && s > in.Strike:
			sumDelta += s / in.Spot
		case in.Type == Put && s < in.Strike:
			sumDelta -= s / in.Spot
		}
	}

	n := float64(len(st))
	disc := math.Exp(-in.Rate * in.T)
	price := disc * sumPayoff / n
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return failed(model, "non-finite simulated price")
	}

	return Result{
		Model:  model,
		Price:  price,
		Greeks: &Greeks{Delta: disc * sumDelta / n},
		Status: StatusOK,
	}
}
