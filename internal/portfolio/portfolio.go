package portfolio

import (
	"sort"
	"time"
)

// Position is one open spread, keyed by the trade that opened it. Value is
// the current cost to close, always non-negative, and doubles as the
// position's exposure. Credit is the per-share premium received and Strikes
// the ascending ladder.
type Position struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	Strategy   string     `json:"strategy"`
	Quantity   int        `json:"quantity"`
	Credit     float64    `json:"credit"`
	Value      float64    `json:"value"`
	MaxLoss    float64    `json:"max_loss"`
	Strikes    [4]float64 `json:"strikes"`
	Expiration time.Time  `json:"expiration"`
	OpenedAt   time.Time  `json:"opened_at"`
}

// Valuation is a recorded net value
type Valuation struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// Portfolio is a point-in-time view of the account. NetValue is cash minus
// the cost to close every open position.
type Portfolio struct {
	Cash      float64             `json:"cash"`
	Positions map[string]Position `json:"positions"` // by trade ID
	History   []Valuation         `json:"history"`
	NetValue  float64             `json:"net_value"`
}

// Clone returns a deep copy
func (p Portfolio) Clone() Portfolio {
	out := Portfolio{
		Cash:      p.Cash,
		NetValue:  p.NetValue,
		Positions: make(map[string]Position, len(p.Positions)),
		History:   append([]Valuation(nil), p.History...),
	}
	for k, v := range p.Positions {
		out.Positions[k] = v
	}
	return out
}

// PositionsFor lists the open positions on symbol, oldest first. An empty
// symbol lists every position.
func (p Portfolio) PositionsFor(symbol string) []Position {
	out := make([]Position, 0, len(p.Positions))
	for _, pos := range p.Positions {
		if symbol == "" || pos.Symbol == symbol {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Exposure sums position values whose symbol satisfies match
func (p Portfolio) Exposure(match func(symbol string) bool) float64 {
	var total float64
	for _, pos := range p.Positions {
		if match(pos.Symbol) {
			total += pos.Value
		}
	}
	return total
}

// LastValuation returns the most recent history entry
func (p Portfolio) LastValuation() (Valuation, bool) {
	if len(p.History) == 0 {
		return Valuation{}, false
	}
	return p.History[len(p.History)-1], true
}
