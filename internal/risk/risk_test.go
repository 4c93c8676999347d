package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/condorrun/internal/market"
	"github.com/sawpanic/condorrun/internal/portfolio"
	"github.com/sawpanic/condorrun/internal/strategy"
)

func testPortfolio() portfolio.Portfolio {
	return portfolio.Portfolio{
		Cash:      100000,
		NetValue:  100000,
		Positions: map[string]portfolio.Position{},
	}
}

func TestValidateTradeApproved(t *testing.T) {
	l := DefaultLimits()
	trade := Trade{Symbol: "SPY", Quantity: 1, Price: 175, MaxLoss: 4000}

	res := l.ValidateTrade(trade, testPortfolio())
	assert.True(t, res.Approved)
	assert.Equal(t, Approved, res.Reason)
}

func TestValidateTradeReasons(t *testing.T) {
	tech := testPortfolio()
	tech.Positions["AAPL"] = portfolio.Position{Symbol: "AAPL", Value: 19000}
	tech.Positions["MSFT"] = portfolio.Position{Symbol: "MSFT", Value: 900}

	losing := testPortfolio()
	losing.History = []portfolio.Valuation{{At: time.Now(), Value: 120000}}

	tests := []struct {
		name   string
		limits func(*Limits)
		trade  Trade
		port   portfolio.Portfolio
		want   Reason
	}{
		{"portfolio risk", nil, Trade{Symbol: "SPY", Quantity: 2, Price: 100, MaxLoss: 3000}, testPortfolio(), PortfolioRisk},
		{"position size", nil, Trade{Symbol: "SPY", Quantity: 3, Price: 1000, MaxLoss: 10}, testPortfolio(), PositionSize},
		{"sector limit with default", nil, Trade{Symbol: "MSFT", Quantity: 1, Price: 200, MaxLoss: 10}, tech, SectorLimit},
		{"sector limit configured", func(l *Limits) { l.SectorLimits["index"] = 0.001 },
			Trade{Symbol: "SPY", Quantity: 1, Price: 200, MaxLoss: 10}, testPortfolio(), SectorLimit},
		{"daily loss", nil, Trade{Symbol: "SPY", Quantity: 1, Price: 100, MaxLoss: 10}, losing, DailyLoss},
		{"liquidity", nil, Trade{Symbol: "TSLA", Quantity: 1, Price: 100, MaxLoss: 10}, testPortfolio(), Liquidity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := DefaultLimits()
			if tt.limits != nil {
				tt.limits(&l)
			}
			res := l.ValidateTrade(tt.trade, tt.port)
			assert.False(t, res.Approved)
			assert.Equal(t, tt.want, res.Reason)
		})
	}
}

func TestValidateTradeShortCircuits(t *testing.T) {
	l := DefaultLimits()
	// fails portfolio risk, position size and liquidity at once
	trade := Trade{Symbol: "TSLA", Quantity: 10, Price: 5000, MaxLoss: 5000}

	res := l.ValidateTrade(trade, testPortfolio())
	assert.Equal(t, PortfolioRisk, res.Reason)
}

func TestValidateTradeIsPure(t *testing.T) {
	l := DefaultLimits()
	p := testPortfolio()
	p.Positions["AAPL"] = portfolio.Position{Symbol: "AAPL", Value: 5000}
	trade := Trade{Symbol: "MSFT", Quantity: 1, Price: 150, MaxLoss: 25}

	first := l.ValidateTrade(trade, p)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, l.ValidateTrade(trade, p))
	}
	assert.Len(t, p.Positions, 1)
}

func TestZeroPortfolioRiskRejectsEverything(t *testing.T) {
	l := DefaultLimits()
	l.MaxPortfolioRisk = 0

	for _, trade := range []Trade{
		{Symbol: "SPY", Quantity: 1, Price: 1, MaxLoss: 0.01},
		{Symbol: "QQQ", Quantity: 5, Price: 10, MaxLoss: 100},
		{Symbol: "TSLA", Quantity: 1, Price: 1, MaxLoss: 1},
	} {
		res := l.ValidateTrade(trade, testPortfolio())
		assert.False(t, res.Approved)
		assert.Equal(t, PortfolioRisk, res.Reason)
	}
}

func TestUnmappedSymbolPassesSectorCheck(t *testing.T) {
	l := DefaultLimits()
	l.SectorLimits = map[string]float64{}
	l.Liquid = append(l.Liquid, "GOOG")

	res := l.ValidateTrade(Trade{Symbol: "GOOG", Quantity: 1, Price: 100, MaxLoss: 10}, testPortfolio())
	assert.True(t, res.Approved)
	assert.Equal(t, Approved, res.Reason)
}

func TestDailyLossWithinLimit(t *testing.T) {
	l := DefaultLimits()
	p := testPortfolio()
	p.History = []portfolio.Valuation{{Value: 105000}}

	res := l.ValidateTrade(Trade{Symbol: "SPY", Quantity: 1, Price: 100, MaxLoss: 10}, p)
	assert.True(t, res.Approved)
}

func TestTradeFromQuote(t *testing.T) {
	q := &strategy.Quote{
		Symbol:  "SPY",
		Metrics: strategy.Metrics{NetCredit: 1.75, MaxLoss: 0.25},
	}
	trade := TradeFromQuote(q, 3)
	assert.Equal(t, Trade{Symbol: "SPY", Quantity: 3, Price: 175, MaxLoss: 25}, trade)
	assert.Equal(t, 525.0, trade.Notional())
}

func TestMarketCheck(t *testing.T) {
	tests := []struct {
		snap market.Snapshot
		ok   bool
		want Reason
	}{
		{market.Snapshot{VolatilityIndex: 18, IndexChange: -0.01}, true, MarketOK},
		{market.Snapshot{VolatilityIndex: 40, IndexChange: -0.05}, true, MarketOK},
		{market.Snapshot{VolatilityIndex: 41}, false, VolatilitySpike},
		{market.Snapshot{VolatilityIndex: 20, IndexChange: -0.06}, false, IndexDrawdown},
		{market.Snapshot{VolatilityIndex: 55, IndexChange: -0.10}, false, VolatilitySpike},
	}
	for _, tt := range tests {
		ok, reason := MarketCheck(tt.snap)
		assert.Equal(t, tt.ok, ok)
		assert.Equal(t, tt.want, reason)
		assert.Equal(t, tt.ok, MarketSafe(tt.snap))
	}
}
