package market

import (
	"context"
	"errors"
	"time"
)

// ErrNoData signals that a source has nothing for the requested symbol.
// Callers skip the symbol for this cycle.
var ErrNoData = errors.New("no market data")

// Snapshot is the macro view used to gate a whole trading cycle
type Snapshot struct {
	IndexLevel      float64   `json:"index_level" yaml:"index_level"`
	IndexChange     float64   `json:"index_change" yaml:"index_change"` // fraction, -0.05 = -5%
	VolatilityIndex float64   `json:"volatility_index" yaml:"volatility_index"`
	Timestamp       time.Time `json:"timestamp" yaml:"timestamp"`
}

// Source provides spot prices, implied volatility and the macro snapshot.
// Any call may fail; the trading cycle treats failures as missing data.
type Source interface {
	Spot(ctx context.Context, symbol string) (float64, error)
	ImpliedVolatility(ctx context.Context, symbol string) (float64, error)
	Snapshot(ctx context.Context) (Snapshot, error)
}

// HistorySource returns the most recent limit bars for a symbol, oldest first
type HistorySource interface {
	Series(ctx context.Context, symbol string, limit int) ([]Bar, error)
}
