package risk

import (
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/condorrun/internal/market"
	"github.com/sawpanic/condorrun/internal/portfolio"
	"github.com/sawpanic/condorrun/internal/strategy"
)

// Reason is the fixed outcome code of a validation
type Reason string

const (
	Approved      Reason = "approved"
	PortfolioRisk Reason = "portfolio_risk"
	PositionSize  Reason = "position_size"
	SectorLimit   Reason = "sector_limit"
	DailyLoss     Reason = "daily_loss"
	Liquidity     Reason = "liquidity"

	// market-wide outcomes
	MarketOK        Reason = "market_ok"
	VolatilitySpike Reason = "volatility_spike"
	IndexDrawdown   Reason = "index_drawdown"
)

const (
	// DefaultSectorLimit applies to a mapped sector with no explicit limit
	DefaultSectorLimit = 0.2

	MaxVolatilityIndex = 40.0
	MinIndexChange     = -0.05
)

// Limits are read once at startup and never mutated
type Limits struct {
	MaxPortfolioRisk   float64
	MaxPositionRisk    float64
	SectorLimits       map[string]float64
	DefaultSectorLimit float64
	DailyLossLimit     float64
	Liquid             []string
	Sectors            map[string]string
}

// DefaultSectors is the built-in symbol to sector map
func DefaultSectors() map[string]string {
	return map[string]string{
		"AAPL": "technology",
		"MSFT": "technology",
		"AMZN": "consumer",
		"SPY":  "index",
	}
}

// DefaultLimits mirrors the reference risk profile
func DefaultLimits() Limits {
	return Limits{
		MaxPortfolioRisk:   0.05,
		MaxPositionRisk:    0.02,
		SectorLimits:       map[string]float64{},
		DefaultSectorLimit: DefaultSectorLimit,
		DailyLossLimit:     0.1,
		Liquid:             []string{"SPY", "QQQ", "AAPL", "MSFT"},
		Sectors:            DefaultSectors(),
	}
}

// Trade is the risk view of a candidate order. Price and MaxLoss are per unit
// of Quantity.
type Trade struct {
	Symbol   string  `json:"symbol"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	MaxLoss  float64 `json:"max_loss"`
}

// TradeFromQuote sizes a quote in contracts
func TradeFromQuote(q *strategy.Quote, contracts int) Trade {
	return Trade{
		Symbol:   q.Symbol,
		Quantity: contracts,
		Price:    q.Metrics.NetCredit * portfolio.ContractMultiplier,
		MaxLoss:  q.Metrics.MaxLoss * portfolio.ContractMultiplier,
	}
}

// Notional is quantity times price
func (t Trade) Notional() float64 { return float64(t.Quantity) * t.Price }

// Result is returned, never raised
type Result struct {
	Approved bool   `json:"approved"`
	Reason   Reason `json:"reason"`
}

type check struct {
	reason Reason
	pass   func(Limits, Trade, portfolio.Portfolio) bool
}

// ordered from portfolio-wide to symbol-specific; the first failure wins
var checks = []check{
	{PortfolioRisk, checkPortfolioRisk},
	{PositionSize, checkPositionSize},
	{SectorLimit, checkSectorLimit},
	{DailyLoss, checkDailyLoss},
	{Liquidity, checkLiquidity},
}

// ValidateTrade runs the checks in order and reports the first failure.
// It depends only on its arguments.
func (l Limits) ValidateTrade(t Trade, p portfolio.Portfolio) Result {
	for _, c := range checks {
		if !c.pass(l, t, p) {
			log.Debug().
				Str("symbol", t.Symbol).
				Str("reason", string(c.reason)).
				Msg("Trade rejected by risk")
			return Result{Approved: false, Reason: c.reason}
		}
	}
	return Result{Approved: true, Reason: Approved}
}

func checkPortfolioRisk(l Limits, t Trade, p portfolio.Portfolio) bool {
	return t.MaxLoss*float64(t.Quantity) <= p.NetValue*l.MaxPortfolioRisk
}

func checkPositionSize(l Limits, t Trade, p portfolio.Portfolio) bool {
	return t.Notional() <= p.NetValue*l.MaxPositionRisk
}

func checkSectorLimit(l Limits, t Trade, p portfolio.Portfolio) bool {
	sector, ok := l.Sector(t.Symbol)
	if !ok {
		return true
	}
	limit, ok := l.SectorLimits[sector]
	if !ok {
		limit = l.DefaultSectorLimit
	}
	current := p.Exposure(func(sym string) bool {
		s, ok := l.Sector(sym)
		return ok && s == sector
	})
	return current+t.Notional() <= p.NetValue*limit
}

func checkDailyLoss(l Limits, _ Trade, p portfolio.Portfolio) bool {
	last, ok := p.LastValuation()
	if !ok {
		return true
	}
	return p.NetValue-last.Value >= -p.NetValue*l.DailyLossLimit
}

func checkLiquidity(l Limits, t Trade, _ portfolio.Portfolio) bool {
	for _, s := range l.Liquid {
		if s == t.Symbol {
			return true
		}
	}
	return false
}

// Sector looks up the symbol in the configured map
func (l Limits) Sector(symbol string) (string, bool) {
	s, ok := l.Sectors[symbol]
	return s, ok
}

// MarketCheck gates a whole cycle. It reports VolatilitySpike when the
// volatility index is above 40 and IndexDrawdown when the index is down more
// than 5%.
func MarketCheck(s market.Snapshot) (bool, Reason) {
	if s.VolatilityIndex > MaxVolatilityIndex {
		return false, VolatilitySpike
	}
	if s.IndexChange < MinIndexChange {
		return false, IndexDrawdown
	}
	return true, MarketOK
}

// MarketSafe is MarketCheck without the reason
func MarketSafe(s market.Snapshot) bool {
	ok, _ := MarketCheck(s)
	return ok
}
