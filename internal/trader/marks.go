package trader

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/condorrun/internal/portfolio"
	"github.com/sawpanic/condorrun/internal/strategy"
)

// observation is one symbol's spot and implied volatility for this cycle
type observation struct {
	spot float64
	iv   float64
}

// markPositions reprices every open spread at this cycle's spot and IV and
// closes those past expiration at intrinsic value. Symbols missing from
// observed are fetched from the source. A position that cannot be priced
// keeps its previous mark and adds a warning.
func (t *Trader) markPositions(ctx context.Context, report *CycleReport, observed map[string]observation) error {
	open := t.deps.Book.Snapshot().PositionsFor("")
	if len(open) == 0 {
		return nil
	}
	if observed == nil {
		observed = make(map[string]observation)
	}
	now := t.now()

	for _, pos := range open {
		b := t.builderFor(strategy.Kind(pos.Strategy))
		if b == nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("mark %s: no builder for %s", pos.ID, pos.Strategy))
			continue
		}
		obs, ok := observed[pos.Symbol]
		if !ok {
			var err error
			obs, err = t.observe(ctx, pos.Symbol)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				report.Warnings = append(report.Warnings, fmt.Sprintf("mark %s %s: %v", pos.Symbol, pos.ID, err))
				continue
			}
			observed[pos.Symbol] = obs
		}

		remaining := pos.Expiration.Sub(now)
		cost, err := b.CloseCost(strategy.StrikesFromLadder(pos.Strikes), obs.spot, obs.iv, remaining)
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("mark %s %s: %v", pos.Symbol, pos.ID, err))
			continue
		}
		value := cost * float64(pos.Quantity*portfolio.ContractMultiplier)

		if remaining <= 0 {
			if err := t.deps.Book.Close(pos.ID, value); err != nil {
				report.Warnings = append(report.Warnings, fmt.Sprintf("close %s: %v", pos.ID, err))
				continue
			}
			log.Info().
				Str("trade_id", pos.ID).
				Str("symbol", pos.Symbol).
				Float64("spot", obs.spot).
				Float64("cost", value).
				Msg("Expired position closed")
			t.decide(report, Decision{
				Symbol:   pos.Symbol,
				Strategy: pos.Strategy,
				Code:     CodeExpired,
				Detail:   fmt.Sprintf("trade %s closed at %.2f, pnl %.2f", pos.ID, value, pos.Credit*float64(pos.Quantity*portfolio.ContractMultiplier)-value),
			})
			continue
		}

		if err := t.deps.Book.Mark(pos.ID, value); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("mark %s: %v", pos.ID, err))
			continue
		}
		log.Debug().
			Str("trade_id", pos.ID).
			Str("symbol", pos.Symbol).
			Float64("spot", obs.spot).
			Float64("value", value).
			Msg("Position marked")
	}
	return nil
}

func (t *Trader) observe(ctx context.Context, symbol string) (observation, error) {
	spot, err := t.deps.Source.Spot(ctx, symbol)
	if err != nil {
		return observation{}, err
	}
	iv, err := t.deps.Source.ImpliedVolatility(ctx, symbol)
	if err != nil {
		return observation{}, err
	}
	return observation{spot: spot, iv: iv}, nil
}

// builderFor returns the builder for kind whether or not it is enabled, so
// positions opened before a strategy was switched off can still be marked
func (t *Trader) builderFor(kind strategy.Kind) *strategy.Builder {
	for _, b := range t.deps.Builders {
		if b.Shape().Kind == kind {
			return b
		}
	}
	return nil
}
