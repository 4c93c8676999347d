package market

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/condorrun/infra/breakers"
)

// BreakerSource guards a Source with a circuit breaker so a failing provider
// is skipped quickly instead of stalling every symbol in the cycle.
// ErrNoData responses do not count as failures.
type BreakerSource struct {
	next    Source
	breaker *breakers.Breaker
}

// NewBreakerSource wraps next; onChange may be nil
func NewBreakerSource(name string, next Source, s breakers.Settings, onChange func(name, from, to string)) *BreakerSource {
	s.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrNoData) || errors.Is(err, context.Canceled)
	}
	s.OnStateChange = func(name, from, to string) {
		log.Warn().Str("breaker", name).Str("from", from).Str("to", to).Msg("Market data breaker state change")
		if onChange != nil {
			onChange(name, from, to)
		}
	}
	return &BreakerSource{next: next, breaker: breakers.New(name, s)}
}

// State exposes the breaker state for health reporting
func (b *BreakerSource) State() string { return b.breaker.State() }

func (b *BreakerSource) Spot(ctx context.Context, symbol string) (float64, error) {
	v, err := b.breaker.Execute(func() (any, error) { return b.next.Spot(ctx, symbol) })
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (b *BreakerSource) ImpliedVolatility(ctx context.Context, symbol string) (float64, error) {
	v, err := b.breaker.Execute(func() (any, error) { return b.next.ImpliedVolatility(ctx, symbol) })
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (b *BreakerSource) Snapshot(ctx context.Context) (Snapshot, error) {
	v, err := b.breaker.Execute(func() (any, error) { return b.next.Snapshot(ctx) })
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}
