package strategy

import (
	"errors"
	"fmt"
	"time"

	"github.com/sawpanic/condorrun/internal/pricing"
)

// Kind names a four-leg credit spread variant
type Kind string

const (
	IronCondor    Kind = "iron_condor"
	IronButterfly Kind = "iron_butterfly"
)

// Side of a leg
type Side string

const (
	Sell Side = "sell"
	Buy  Side = "buy"
)

// LegName identifies one of the four legs
type LegName string

const (
	SellCall LegName = "sell_call"
	BuyCall  LegName = "buy_call"
	SellPut  LegName = "sell_put"
	BuyPut   LegName = "buy_put"
)

// LegNames lists legs in strike order, lowest first
var LegNames = []LegName{BuyPut, SellPut, SellCall, BuyCall}

// POPMethod selects how probability of profit is estimated
type POPMethod string

const (
	POPAuto      POPMethod = ""
	POPAnalytic  POPMethod = "analytic"
	POPSimulated POPMethod = "simulated"
)

// Reason is the machine-checkable outcome of an analysis
type Reason string

const (
	ReasonOpportunity        Reason = "opportunity"
	ReasonBelowMinCredit     Reason = "below_min_credit"
	ReasonNonPositiveMaxLoss Reason = "non_positive_max_loss"
	ReasonDisabled           Reason = "disabled"
)

// ErrPricing wraps leg pricing failures
var ErrPricing = errors.New("leg pricing failed")

// Leg is one priced option contract. Immutable once built.
type Leg struct {
	Name   LegName            `json:"name"`
	Strike float64            `json:"strike"`
	Side   Side               `json:"side"`
	Type   pricing.OptionType `json:"type"`
	Price  float64            `json:"price"`
	Greeks *pricing.Greeks    `json:"greeks,omitempty"`
}

// Strikes is the ladder of a four-leg spread
type Strikes struct {
	LongPut   float64 `json:"buy_put"`
	ShortPut  float64 `json:"sell_put"`
	ShortCall float64 `json:"sell_call"`
	LongCall  float64 `json:"buy_call"`
}

// Ladder returns the strikes in ascending order
func (s Strikes) Ladder() [4]float64 {
	return [4]float64{s.LongPut, s.ShortPut, s.ShortCall, s.LongCall}
}

// StrikesFromLadder is the inverse of Ladder
func StrikesFromLadder(l [4]float64) Strikes {
	return Strikes{LongPut: l[0], ShortPut: l[1], ShortCall: l[2], LongCall: l[3]}
}

// CallWing and PutWing are the widths of the two vertical spreads
func (s Strikes) CallWing() float64 { return s.LongCall - s.ShortCall }
func (s Strikes) PutWing() float64  { return s.ShortPut - s.LongPut }

// AggregateGreeks is the signed sum of leg Greeks. A nil field means at
// least one leg did not provide that sensitivity.
type AggregateGreeks struct {
	Delta *float64 `json:"delta"`
	Gamma *float64 `json:"gamma"`
	Theta *float64 `json:"theta"`
	Vega  *float64 `json:"vega"`
}

// Metrics are derived from the priced legs
type Metrics struct {
	NetCredit           float64         `json:"net_credit"`
	MaxLoss             float64         `json:"max_loss"`
	ProbabilityOfProfit float64         `json:"probability_of_profit"`
	RiskReward          float64         `json:"risk_reward"`
	Greeks              AggregateGreeks `json:"greeks"`
}

// Quote is a fully priced candidate strategy; read-only downstream
type Quote struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	Kind           Kind            `json:"strategy"`
	Model          pricing.Model   `json:"model"`
	Spot           float64         `json:"spot"`
	ImpliedVol     float64         `json:"implied_vol"`
	ExpirationDays int             `json:"expiration_days"`
	Strikes        Strikes         `json:"strikes"`
	Legs           map[LegName]Leg `json:"legs"`
	Metrics        Metrics         `json:"metrics"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Outcome of Analyze: Quote is set only when Reason is ReasonOpportunity
type Outcome struct {
	Quote  *Quote  `json:"quote,omitempty"`
	Reason Reason  `json:"reason"`
	Credit float64 `json:"credit"`
}

// Shape parameterises a four-leg credit spread. Short strikes sit at
// spot·(1 ∓ width·BodyRatio) and long wings at spot·(1 ∓ width·WingRatio).
type Shape struct {
	Kind           Kind
	Enabled        bool
	WidthPercent   float64
	BodyRatio      float64
	WingRatio      float64
	MinCredit      float64
	ExpirationDays int
	RiskFreeRate   float64
	Model          pricing.Model
	Params         pricing.Params
	POP            POPMethod
	POPSamples     int
}

// DaysPerYear converts expiration days to a year fraction
const DaysPerYear = 365.25

// DefaultShape returns the reference geometry for kind: Black-Scholes with an
// analytic POP for the condor, QMC with a simulated POP for the butterfly.
func DefaultShape(kind Kind) Shape {
	s := Shape{
		Kind:           kind,
		Enabled:        true,
		WidthPercent:   0.02,
		BodyRatio:      0.5,
		WingRatio:      1.0,
		MinCredit:      0.80,
		ExpirationDays: 21,
		RiskFreeRate:   0.01,
		Model:          pricing.BlackScholes,
		POP:            POPAnalytic,
		POPSamples:     5000,
	}
	if kind == IronButterfly {
		s.Model = pricing.QuasiMonteCarlo
		s.Params = pricing.Params{Simulations: pricing.DefaultSimulations, Seed: 1}
		s.POP = POPSimulated
	}
	return s
}

// Validate checks the shape for internal consistency
func (s Shape) Validate() error {
	switch {
	case s.Kind != IronCondor && s.Kind != IronButterfly:
		return fmt.Errorf("unknown strategy kind %q", s.Kind)
	case s.WidthPercent <= 0 || s.WidthPercent >= 1:
		return fmt.Errorf("%s: width_percent %.4f outside (0, 1)", s.Kind, s.WidthPercent)
	case s.BodyRatio <= 0:
		return fmt.Errorf("%s: body_ratio must be positive, a zero body leaves no profit range", s.Kind)
	case s.WingRatio <= s.BodyRatio:
		return fmt.Errorf("%s: wing_ratio %.3f must exceed body_ratio %.3f", s.Kind, s.WingRatio, s.BodyRatio)
	case s.WidthPercent*s.WingRatio >= 1:
		return fmt.Errorf("%s: long put strike would be non-positive", s.Kind)
	case s.ExpirationDays <= 0:
		return fmt.Errorf("%s: expiration_days must be positive", s.Kind)
	case s.MinCredit < 0:
		return fmt.Errorf("%s: min_credit must be non-negative", s.Kind)
	}
	switch s.Model {
	case pricing.BlackScholes, pricing.MonteCarlo, pricing.QuasiMonteCarlo, pricing.Binomial:
	default:
		return fmt.Errorf("%s: unknown pricing model %q", s.Kind, s.Model)
	}
	switch s.POP {
	case POPAuto, POPAnalytic, POPSimulated:
	default:
		return fmt.Errorf("%s: unknown pop_method %q", s.Kind, s.POP)
	}
	return nil
}
