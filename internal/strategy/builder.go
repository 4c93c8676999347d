package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/condorrun/internal/pricing"
)

// Builder prices four-leg credit spreads for one Shape. Iron condors and iron
// butterflies share this code path and differ only in Shape parameters.
type Builder struct {
	shape  Shape
	engine *pricing.Engine
	now    func() time.Time
}

// NewBuilder validates shape and returns a builder bound to engine
func NewBuilder(shape Shape, engine *pricing.Engine) (*Builder, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		engine = pricing.NewEngine()
	}
	return &Builder{shape: shape, engine: engine, now: time.Now}, nil
}

// Shape returns the builder configuration
func (b *Builder) Shape() Shape { return b.shape }

// Enabled reports whether the strategy is switched on
func (b *Builder) Enabled() bool { return b.shape.Enabled }

// StrikesFor derives the strike ladder for a spot price
func (b *Builder) StrikesFor(spot float64) Strikes {
	body := b.shape.WidthPercent * b.shape.BodyRatio
	wing := b.shape.WidthPercent * b.shape.WingRatio
	return Strikes{
		LongPut:   roundCents(spot * (1 - wing)),
		ShortPut:  roundCents(spot * (1 - body)),
		ShortCall: roundCents(spot * (1 + body)),
		LongCall:  roundCents(spot * (1 + wing)),
	}
}

// Analyze builds and prices the spread for one (symbol, spot, iv)
// observation. A credit below the configured minimum is a normal
// no-opportunity outcome, not an error.
func (b *Builder) Analyze(symbol string, spot, iv float64) (Outcome, error) {
	if !b.shape.Enabled {
		return Outcome{Reason: ReasonDisabled}, nil
	}

	strikes := b.StrikesFor(spot)
	t := float64(b.shape.ExpirationDays) / DaysPerYear

	legs, err := b.priceLegs(strikes, spot, iv, t)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s %s %w", symbol, b.shape.Kind, err)
	}

	credit := NetCredit(legs)
	if credit < b.shape.MinCredit {
		log.Debug().
			Str("symbol", symbol).
			Str("strategy", string(b.shape.Kind)).
			Float64("credit", credit).
			Float64("min_credit", b.shape.MinCredit).
			Msg("Credit below minimum")
		return Outcome{Reason: ReasonBelowMinCredit, Credit: credit}, nil
	}

	maxLoss := MaxLoss(strikes, credit)
	if maxLoss <= 0 {
		// credit at or above wing width means mispriced legs; never divide by it
		return Outcome{Reason: ReasonNonPositiveMaxLoss, Credit: credit}, nil
	}

	pop, err := b.probabilityOfProfit(spot, iv, t, strikes)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s %s probability: %w", symbol, b.shape.Kind, err)
	}

	q := &Quote{
		ID:             uuid.New().String(),
		Symbol:         symbol,
		Kind:           b.shape.Kind,
		Model:          b.shape.Model,
		Spot:           spot,
		ImpliedVol:     iv,
		ExpirationDays: b.shape.ExpirationDays,
		Strikes:        strikes,
		Legs:           legs,
		Metrics: Metrics{
			NetCredit:           credit,
			MaxLoss:             maxLoss,
			ProbabilityOfProfit: pop,
			RiskReward:          credit / maxLoss,
			Greeks:              AggregateLegGreeks(legs),
		},
		CreatedAt: b.now().UTC(),
	}
	return Outcome{Quote: q, Reason: ReasonOpportunity, Credit: credit}, nil
}

func (b *Builder) priceLegs(strikes Strikes, spot, iv, t float64) (map[LegName]Leg, error) {
	legs := make(map[LegName]Leg, 4)
	for _, def := range []struct {
		name   LegName
		strike float64
		side   Side
		typ    pricing.OptionType
	}{
		{SellCall, strikes.ShortCall, Sell, pricing.Call},
		{BuyCall, strikes.LongCall, Buy, pricing.Call},
		{SellPut, strikes.ShortPut, Sell, pricing.Put},
		{BuyPut, strikes.LongPut, Buy, pricing.Put},
	} {
		res := b.engine.Price(b.shape.Model, pricing.Input{
			Spot:   spot,
			Strike: def.strike,
			T:      t,
			Rate:   b.shape.RiskFreeRate,
			Vol:    iv,
			Type:   def.typ,
			Params: b.shape.Params,
		})
		if !res.OK() {
			return nil, fmt.Errorf("%s@%.2f: %w: %s", def.name, def.strike, ErrPricing, res.Message)
		}
		legs[def.name] = Leg{
			Name:   def.name,
			Strike: def.strike,
			Side:   def.side,
			Type:   def.typ,
			Price:  res.Price,
			Greeks: res.Greeks,
		}
	}
	return legs, nil
}

// CloseCost is the per-share debit to buy the spread back at spot and iv
// with remaining time to expiration, bounded to [0, widest wing]. At or past
// expiration it is the intrinsic value.
func (b *Builder) CloseCost(strikes Strikes, spot, iv float64, remaining time.Duration) (float64, error) {
	if remaining <= 0 {
		return Intrinsic(strikes, spot), nil
	}
	legs, err := b.priceLegs(strikes, spot, iv, remaining.Hours()/24/DaysPerYear)
	if err != nil {
		return 0, err
	}
	wing := math.Max(strikes.CallWing(), strikes.PutWing())
	return math.Min(wing, math.Max(0, NetCredit(legs))), nil
}

// NetCredit is premium sold minus premium bought
func NetCredit(legs map[LegName]Leg) float64 {
	return (legs[SellCall].Price + legs[SellPut].Price) - (legs[BuyCall].Price + legs[BuyPut].Price)
}

// MaxLoss is the widest wing minus the credit received
func MaxLoss(s Strikes, credit float64) float64 {
	return math.Max(s.CallWing(), s.PutWing()) - credit
}

func (b *Builder) popMethod() POPMethod {
	if b.shape.POP != POPAuto {
		return b.shape.POP
	}
	if b.shape.Model.Simulated() {
		return POPSimulated
	}
	return POPAnalytic
}

// probabilityOfProfit estimates the chance the underlying expires between
// the short strikes.
func (b *Builder) probabilityOfProfit(spot, iv, t float64, s Strikes) (float64, error) {
	r := b.shape.RiskFreeRate
	if b.popMethod() == POPAnalytic {
		p := pricing.NormCDF(pricing.D1(spot, s.ShortPut, t, r, iv)) -
			pricing.NormCDF(pricing.D1(spot, s.ShortCall, t, r, iv))
		return clamp01(p), nil
	}

	model := b.shape.Model
	if !model.Simulated() {
		model = pricing.QuasiMonteCarlo
	}
	params := b.shape.Params
	if params.Seed == 0 && model == pricing.MonteCarlo {
		params.Seed = uint64(b.now().UnixNano())
	}
	st, err := pricing.TerminalPrices(model, pricing.Input{
		Spot: spot, T: t, Rate: r, Vol: iv, Params: params,
	}, b.shape.POPSamples)
	if err != nil {
		return 0, err
	}
	inRange := 0
	for _, p := range st {
		if p >= s.ShortPut && p <= s.ShortCall {
			inRange++
		}
	}
	return float64(inRange) / float64(len(st)), nil
}

// AggregateLegGreeks sums leg Greeks with sold legs sign-flipped
func AggregateLegGreeks(legs map[LegName]Leg) AggregateGreeks {
	var agg AggregateGreeks
	delta, gamma, theta, vega := 0.0, 0.0, 0.0, 0.0
	haveDelta, haveGamma, haveTheta, haveVega := true, true, true, true

	for _, leg := range legs {
		sign := 1.0
		if leg.Side == Sell {
			sign = -1
		}
		g := leg.Greeks
		if g == nil {
			haveDelta, haveGamma, haveTheta, haveVega = false, false, false, false
			continue
		}
		delta += sign * g.Delta
		haveGamma = accumulate(&gamma, g.Gamma, sign) && haveGamma
		haveTheta = accumulate(&theta, g.Theta, sign) && haveTheta
		haveVega = accumulate(&vega, g.Vega, sign) && haveVega
	}

	if haveDelta {
		agg.Delta = &delta
	}
	if haveGamma {
		agg.Gamma = &gamma
	}
	if haveTheta {
		agg.Theta = &theta
	}
	if haveVega {
		agg.Vega = &vega
	}
	return agg
}

func accumulate(sum *float64, v *float64, sign float64) bool {
	if v == nil {
		return false
	}
	*sum += sign * *v
	return true
}

func roundCents(v float64) float64 { return math.Round(v*100) / 100 }

func clamp01(v float64) float64 { return math.Min(1, math.Max(0, v)) }
