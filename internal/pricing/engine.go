package pricing

import (
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
)

// Observer receives the outcome of every pricing call
type Observer func(model Model, status Status, elapsed time.Duration)

// Engine dispatches pricing calls to the selected model. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	observer Observer
}

// Option configures an Engine
type Option func(*Engine)

// WithObserver installs a callback for metrics collection
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// NewEngine creates a pricing engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Price values a single option under the given model
func (e *Engine) Price(model Model, in Input) Result {
	start := time.Now()

	var res Result
	switch model {
	case BlackScholes:
		res = priceBlackScholes(in)
	case MonteCarlo:
		if in.Params.Seed == 0 {
			in.Params.Seed = rand.Uint64()
		}
		res = priceSimulated(model, in)
	case QuasiMonteCarlo:
		res = priceSimulated(model, in)
	case Binomial:
		res = priceBinomial(in)
	default:
		res = invalid(model, "unsupported pricing model %q", model)
	}

	elapsed := time.Since(start)
	if !res.OK() {
		log.Debug().
			Str("model", string(model)).
			Str("status", string(res.Status)).
			Str("message", res.Message).
			Msg("Pricing failed")
	}
	if e.observer != nil {
		e.observer(model, res.Status, elapsed)
	}
	return res
}
