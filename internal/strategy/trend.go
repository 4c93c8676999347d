package strategy

import (
	"github.com/sawpanic/condorrun/internal/market"
)

// Direction of a trend signal
type Direction string

const (
	Long    Direction = "long"
	Short   Direction = "short"
	Neutral Direction = "neutral"
)

// MinTrendBars is the history needed before the 50-bar average exists
const MinTrendBars = 50

const (
	rsiOverbought = 70
	rsiOversold   = 30
)

// TrendConfig carries the exit levels attached to every signal
type TrendConfig struct {
	Enabled           bool
	StopLossPercent   float64
	TakeProfitPercent float64
}

// DefaultTrendConfig returns a 2% stop and 5% target
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{Enabled: true, StopLossPercent: 0.02, TakeProfitPercent: 0.05}
}

// TrendSignal is the outcome of a trend-following evaluation
type TrendSignal struct {
	Direction  Direction `json:"direction"`
	Price      float64   `json:"price"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	TakeProfit float64   `json:"take_profit,omitempty"`
	SMA20      float64   `json:"sma_20"`
	SMA50      float64   `json:"sma_50"`
	RSI        float64   `json:"rsi"`
}

// EvaluateTrend reads the last bar of series. Long when close is above the
// 50-bar average, the 20-bar average is above the 50-bar and RSI is below 70;
// short is the mirror image with RSI above 30. Fewer than MinTrendBars bars
// or missing indicators give a neutral signal.
func EvaluateTrend(series []market.Bar, cfg TrendConfig) TrendSignal {
	if len(series) < MinTrendBars {
		return TrendSignal{Direction: Neutral}
	}
	last := series[len(series)-1]
	if last.SMA20 == nil || last.SMA50 == nil || last.RSI == nil {
		series = market.WithIndicators(series)
		last = series[len(series)-1]
	}
	sig := TrendSignal{
		Direction: Neutral,
		Price:     last.Close,
		SMA20:     *last.SMA20,
		SMA50:     *last.SMA50,
		RSI:       *last.RSI,
	}

	switch {
	case last.Close > sig.SMA50 && sig.SMA20 > sig.SMA50 && sig.RSI < rsiOverbought:
		sig.Direction = Long
		sig.StopLoss = roundCents(last.Close * (1 - cfg.StopLossPercent))
		sig.TakeProfit = roundCents(last.Close * (1 + cfg.TakeProfitPercent))
	case last.Close < sig.SMA50 && sig.SMA20 < sig.SMA50 && sig.RSI > rsiOversold:
		sig.Direction = Short
		sig.StopLoss = roundCents(last.Close * (1 + cfg.StopLossPercent))
		sig.TakeProfit = roundCents(last.Close * (1 - cfg.TakeProfitPercent))
	}
	return sig
}
