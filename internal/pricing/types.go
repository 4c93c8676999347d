package pricing

import (
	"fmt"
	"strings"
)

// Model identifies a pricing model
type Model string

const (
	BlackScholes    Model = "black_scholes"
	MonteCarlo      Model = "monte_carlo"
	QuasiMonteCarlo Model = "quasi_monte_carlo"
	Binomial        Model = "binomial"
)

// ParseModel maps a configuration string onto a Model
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "black_scholes", "bs", "blackscholes":
		return BlackScholes, nil
	case "monte_carlo", "mc", "montecarlo":
		return MonteCarlo, nil
	case "quasi_monte_carlo", "qmc", "sobol":
		return QuasiMonteCarlo, nil
	case "binomial", "binomial_tree", "crr":
		return Binomial, nil
	default:
		return "", fmt.Errorf("unknown pricing model %q", s)
	}
}

// Simulated reports whether the model draws sample paths
func (m Model) Simulated() bool {
	return m == MonteCarlo || m == QuasiMonteCarlo
}

// OptionType is call or put
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// Status is the outcome of a pricing call. Callers must check it before
// reading Result.Price.
type Status string

const (
	StatusOK           Status = "ok"
	StatusInvalidInput Status = "invalid_input"
	StatusFailed       Status = "computation_failed"
)

// Greeks holds first and second order sensitivities. Nil pointers mean the
// model did not produce that sensitivity, which is not the same as zero.
type Greeks struct {
	Delta float64  `json:"delta"`
	Gamma *float64 `json:"gamma"`
	Theta *float64 `json:"theta"`
	Vega  *float64 `json:"vega"`
}

// Complete reports whether every Greek is defined
func (g *Greeks) Complete() bool {
	return g != nil && g.Gamma != nil && g.Theta != nil && g.Vega != nil
}

// Params carries model-specific knobs
type Params struct {
	Simulations int    `yaml:"simulations" json:"simulations"` // MC/QMC sample count
	Steps       int    `yaml:"steps" json:"steps"`             // binomial lattice steps
	American    bool   `yaml:"american" json:"american"`       // binomial early exercise
	Seed        uint64 `yaml:"seed" json:"seed"`               // MC seed / QMC scramble seed; 0 = unseeded
}

const (
	DefaultSimulations = 10000
	DefaultSteps       = 100
)

func (p Params) withDefaults() Params {
	if p.Simulations <= 0 {
		p.Simulations = DefaultSimulations
	}
	if p.Steps <= 0 {
		p.Steps = DefaultSteps
	}
	return p
}

// Input describes a single European (or American, binomial only) option
type Input struct {
	Spot   float64
	Strike float64
	T      float64 // years to expiry
	Rate   float64 // continuously compounded risk-free rate
	Vol    float64 // annualised volatility
	Type   OptionType
	Params Params
}

// Result is returned by every model; failures are reported through Status,
// never as a NaN price.
type Result struct {
	Model   Model   `json:"model"`
	Price   float64 `json:"price"`
	Greeks  *Greeks `json:"greeks,omitempty"`
	Status  Status  `json:"status"`
	Message string  `json:"message,omitempty"`
}

// OK reports whether Price is usable
func (r Result) OK() bool { return r.Status == StatusOK }

func invalid(m Model, format string, args ...any) Result {
	return Result{Model: m, Status: StatusInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func failed(m Model, format string, args ...any) Result {
	return Result{Model: m, Status: StatusFailed, Message: fmt.Sprintf(format, args...)}
}

func f64(v float64) *float64 { return &v }
