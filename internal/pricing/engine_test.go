package pricing

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func variance(xs []float64) float64 {
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var v float64
	for _, x := range xs {
		v += (x - mean) * (x - mean)
	}
	return v / float64(len(xs))
}

func TestBlackScholes_ReferenceValues(t *testing.T) {
	e := NewEngine()
	in := Input{Spot: 100, Strike: 100, T: 1, Rate: 0.05, Vol: 0.2, Type: Call}

	call := e.Price(BlackScholes, in)
	require.True(t, call.OK(), call.Message)
	assert.InDelta(t, 10.4506, call.Price, 1e-4)

	in.Type = Put
	put := e.Price(BlackScholes, in)
	require.True(t, put.OK())
	assert.InDelta(t, 5.5735, put.Price, 1e-4)

	require.True(t, call.Greeks.Complete())
	assert.InDelta(t, 0.6368, call.Greeks.Delta, 1e-4)
	assert.InDelta(t, call.Greeks.Delta-1, put.Greeks.Delta, 1e-12)
	assert.InDelta(t, *call.Greeks.Gamma, *put.Greeks.Gamma, 1e-12)
	assert.InDelta(t, *call.Greeks.Vega, *put.Greeks.Vega, 1e-12)
	assert.Less(t, *call.Greeks.Theta, 0.0)
}

func TestBlackScholes_NoArbitrageAndParity(t *testing.T) {
	e := NewEngine()
	spots := []float64{50, 90, 100, 110, 400}
	strikes := []float64{45, 95, 100, 120, 404}
	expiries := []float64{1.0 / 365, 21.0 / 365.25, 0.25, 1, 3}
	vols := []float64{0.05, 0.2, 0.6}
	const r = 0.03

	for _, S := range spots {
		for _, K := range strikes {
			for _, T := range expiries {
				for _, sigma := range vols {
					in := Input{Spot: S, Strike: K, T: T, Rate: r, Vol: sigma, Type: Call}
					call := e.Price(BlackScholes, in)
					in.Type = Put
					put := e.Price(BlackScholes, in)
					require.True(t, call.OK())
					require.True(t, put.OK())

					pvK := K * math.Exp(-r*T)
					assert.GreaterOrEqual(t, call.Price, math.Max(0, S-pvK)-1e-9,
						"lower bound S=%v K=%v T=%v vol=%v", S, K, T, sigma)
					assert.InDelta(t, S-pvK, call.Price-put.Price, 1e-8,
						"parity S=%v K=%v T=%v vol=%v", S, K, T, sigma)
				}
			}
		}
	}
}

func TestPrice_InvalidInputs(t *testing.T) {
	e := NewEngine()
	base := Input{Spot: 100, Strike: 100, T: 0.5, Rate: 0.01, Vol: 0.2, Type: Call}

	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"zero_spot", func(in *Input) { in.Spot = 0 }},
		{"negative_strike", func(in *Input) { in.Strike = -5 }},
		{"zero_vol", func(in *Input) { in.Vol = 0 }},
		{"zero_time", func(in *Input) { in.T = 0 }},
		{"nan_spot", func(in *Input) { in.Spot = math.NaN() }},
		{"bad_type", func(in *Input) { in.Type = "straddle" }},
	}

	for _, model := range []Model{BlackScholes, MonteCarlo, QuasiMonteCarlo, Binomial} {
		for _, tt := range tests {
			t.Run(string(model)+"/"+tt.name, func(t *testing.T) {
				in := base
				tt.mutate(&in)
				res := e.Price(model, in)
				assert.Equal(t, StatusInvalidInput, res.Status)
				assert.False(t, res.OK())
				assert.NotEmpty(t, res.Message)
				assert.False(t, math.IsNaN(res.Price))
			})
		}
	}

	res := e.Price(Model("heston"), base)
	assert.Equal(t, StatusInvalidInput, res.Status)
}

func TestSimulated_ConvergesToBlackScholes(t *testing.T) {
	e := NewEngine()
	in := Input{Spot: 100, Strike: 105, T: 0.25, Rate: 0.01, Vol: 0.2, Type: Call}
	bs := e.Price(BlackScholes, in)
	require.True(t, bs.OK())
	assert.InDelta(t, 2.1426, bs.Price, 1e-3)

	in.Params = Params{Simulations: 200000, Seed: 42}
	mc := e.Price(MonteCarlo, in)
	require.True(t, mc.OK())
	assert.InDelta(t, bs.Price, mc.Price, 0.05)

	in.Params = Params{Simulations: 1 << 16, Seed: 7}
	qmc := e.Price(QuasiMonteCarlo, in)
	require.True(t, qmc.OK())
	assert.InDelta(t, bs.Price, qmc.Price, 0.01)

	in.Type = Put
	bsPut := e.Price(BlackScholes, in)
	qmcPut := e.Price(QuasiMonteCarlo, in)
	require.True(t, qmcPut.OK())
	assert.InDelta(t, bsPut.Price, qmcPut.Price, 0.02)
	assert.InDelta(t, bsPut.Greeks.Delta, qmcPut.Greeks.Delta, 0.02)
}

func TestSimulated_QMCVarianceBelowMC(t *testing.T) {
	e := NewEngine()
	in := Input{Spot: 100, Strike: 105, T: 0.25, Rate: 0.01, Vol: 0.2, Type: Call}

	var mcPrices, qmcPrices []float64
	for seed := uint64(1); seed <= 20; seed++ {
		in.Params = Params{Simulations: 4096, Seed: seed}
		mc := e.Price(MonteCarlo, in)
		qmc := e.Price(QuasiMonteCarlo, in)
		require.True(t, mc.OK())
		require.True(t, qmc.OK())
		mcPrices = append(mcPrices, mc.Price)
		qmcPrices = append(qmcPrices, qmc.Price)
	}

	assert.LessOrEqual(t, variance(qmcPrices), variance(mcPrices))
}

func TestSimulated_GreeksPartial(t *testing.T) {
	e := NewEngine()
	in := Input{Spot: 100, Strike: 100, T: 0.5, Rate: 0.01, Vol: 0.25, Type: Call,
		Params: Params{Simulations: 8192, Seed: 3}}

	for _, model := range []Model{MonteCarlo, QuasiMonteCarlo} {
		res := e.Price(model, in)
		require.True(t, res.OK())
		require.NotNil(t, res.Greeks)
		assert.Nil(t, res.Greeks.Gamma)
		assert.Nil(t, res.Greeks.Theta)
		assert.Nil(t, res.Greeks.Vega)
		assert.False(t, res.Greeks.Complete())
		assert.Greater(t, res.Greeks.Delta, 0.4)
		assert.Less(t, res.Greeks.Delta, 0.7)
	}
}

func TestSimulated_DeterministicForSeed(t *testing.T) {
	e := NewEngine()
	in := Input{Spot: 50, Strike: 52, T: 0.1, Rate: 0.02, Vol: 0.3, Type: Put,
		Params: Params{Simulations: 10000, Seed: 99}}

	for _, model := range []Model{MonteCarlo, QuasiMonteCarlo} {
		a := e.Price(model, in)
		b := e.Price(model, in)
		assert.Equal(t, a.Price, b.Price, string(model))
	}
}

func TestBinomial(t *testing.T) {
	e := NewEngine()
	in := Input{Spot: 100, Strike: 100, T: 1, Rate: 0.05, Vol: 0.2, Type: Put,
		Params: Params{Steps: 500}}

	bs := e.Price(BlackScholes, in)
	euro := e.Price(Binomial, in)
	require.True(t, euro.OK())
	assert.InDelta(t, bs.Price, euro.Price, 0.02)
	assert.Nil(t, euro.Greeks)

	in.Params.American = true
	amer := e.Price(Binomial, in)
	require.True(t, amer.OK())
	assert.Greater(t, amer.Price, euro.Price)

	// early exercise never helps a call on a non-dividend underlying
	in.Type = Call
	amerCall := e.Price(Binomial, in)
	in.Params.American = false
	euroCall := e.Price(Binomial, in)
	assert.InDelta(t, euroCall.Price, amerCall.Price, 1e-9)
}

func TestBinomial_ProbabilityOutOfRange(t *testing.T) {
	res := NewEngine().Price(Binomial, Input{Spot: 100, Strike: 100, T: 1, Rate: 5, Vol: 0.01, Type: Call,
		Params: Params{Steps: 1}})
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Message, "risk-neutral probability")
}

func TestSobol_UnscrambledSequence(t *testing.T) {
	s := NewSobol(0)
	want := []float64{0, 0.5, 0.75, 0.25, 0.375, 0.875, 0.625, 0.125}
	for i, w := range want {
		assert.InDelta(t, w, s.Next(), 1e-9, "point %d", i)
	}

	scrambled := NewSobol(11)
	for i := 0; i < 1024; i++ {
		u := scrambled.Next()
		assert.Greater(t, u, 0.0)
		assert.Less(t, u, 1.0)
	}
}

func TestTerminalPrices_RejectsClosedForm(t *testing.T) {
	_, err := TerminalPrices(BlackScholes, Input{Spot: 1, Vol: 0.1, T: 1}, 10)
	assert.Error(t, err)
}

func TestParseModel(t *testing.T) {
	for in, want := range map[string]Model{
		"black_scholes":     BlackScholes,
		"QMC":               QuasiMonteCarlo,
		"quasi_monte_carlo": QuasiMonteCarlo,
		"monte_carlo":       MonteCarlo,
		" binomial ":        Binomial,
	} {
		got, err := ParseModel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseModel("heston")
	assert.Error(t, err)
}

func TestEngine_Observer(t *testing.T) {
	var calls []Status
	e := NewEngine(WithObserver(func(m Model, s Status, d time.Duration) {
		calls = append(calls, s)
	}))
	e.Price(BlackScholes, Input{Spot: 100, Strike: 100, T: 1, Vol: 0.2, Type: Call})
	e.Price(BlackScholes, Input{Spot: 100, Strike: 100, T: 0, Vol: 0.2, Type: Call})
	assert.Equal(t, []Status{StatusOK, StatusInvalidInput}, calls)
}
