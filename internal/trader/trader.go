package trader

import (
	"errors"
	"sync"
	"time"

	"github.com/sawpanic/condorrun/internal/confirm"
	"github.com/sawpanic/condorrun/internal/execution"
	"github.com/sawpanic/condorrun/internal/market"
	"github.com/sawpanic/condorrun/internal/metrics"
	"github.com/sawpanic/condorrun/internal/persistence"
	"github.com/sawpanic/condorrun/internal/portfolio"
	"github.com/sawpanic/condorrun/internal/risk"
	"github.com/sawpanic/condorrun/internal/strategy"
)

// Code is the machine-checkable outcome of one decision. Strategy and risk
// reasons are carried through unchanged.
type Code string

const (
	CodeEmergencyStop  Code = "emergency_stop"
	CodeNoMarketData   Code = "no_market_data"
	CodeNoData         Code = "no_data"
	CodeDataError      Code = "data_error"
	CodePricingError   Code = "pricing_error"
	CodeRecommended    Code = "recommended"
	CodeConfirmReject  Code = "confirm_rejected"
	CodeConfirmTimeout Code = "confirm_timed_out"
	CodeFilled         Code = "filled"
	CodeOrderRejected  Code = "order_rejected"
	CodeExecutionError Code = "execution_error"
	CodeSettleError    Code = "settle_error"
	CodeExpired        Code = "expired"
	CodeTrendLong      Code = "trend_long"
	CodeTrendShort     Code = "trend_short"
)

// Decision is one outcome of a trading cycle
type Decision struct {
	CycleID  string    `json:"cycle_id"`
	Symbol   string    `json:"symbol,omitempty"`
	Strategy string    `json:"strategy,omitempty"`
	Code     Code      `json:"code"`
	Detail   string    `json:"detail,omitempty"`
	QuoteID  string    `json:"quote_id,omitempty"`
	At       time.Time `json:"at"`
}

// CycleReport summarises one pass over the watchlist
type CycleReport struct {
	ID         string                          `json:"id"`
	StartedAt  time.Time                       `json:"started_at"`
	FinishedAt time.Time                       `json:"finished_at"`
	MarketSafe bool                            `json:"market_safe"`
	Snapshot   market.Snapshot                 `json:"snapshot"`
	Quotes     []*strategy.Quote               `json:"quotes,omitempty"`
	Signals    map[string]strategy.TrendSignal `json:"signals,omitempty"`
	Decisions  []Decision                      `json:"decisions"`
	Warnings   []string                        `json:"warnings,omitempty"`
	Portfolio  portfolio.Snapshot              `json:"portfolio"`
}

// Count returns how many decisions carry code
func (r CycleReport) Count(code Code) int {
	n := 0
	for _, d := range r.Decisions {
		if d.Code == code {
			n++
		}
	}
	return n
}

// Publisher receives every decision as it is made
type Publisher interface {
	Publish(v any)
}

// Settings controls the cycle
type Settings struct {
	Watchlist       []string
	Contracts       int
	AutoPlace       bool
	Workers         int
	HistoryBars     int
	StopFile        string
	PollingInterval time.Duration
	Trend           strategy.TrendConfig
}

// DefaultSettings mirrors the config defaults
func DefaultSettings() Settings {
	return Settings{
		Contracts:       1,
		AutoPlace:       true,
		Workers:         4,
		HistoryBars:     100,
		StopFile:        "emergency_stop",
		PollingInterval: 5 * time.Minute,
		Trend:           strategy.DefaultTrendConfig(),
	}
}

// Deps are the collaborators of a Trader. Source, Builders, Gate, Gateway and
// Book are required; the rest may be nil.
type Deps struct {
	Source    market.Source
	History   market.HistorySource
	Builders  []*strategy.Builder
	Limits    risk.Limits
	Gate      *confirm.Gate
	Gateway   execution.Gateway
	Book      *portfolio.Book
	Decisions persistence.DecisionsRepo
	Fills     persistence.FillsRepo
	Metrics   *metrics.Registry
	Publisher Publisher
}

const recentCapacity = 500

// Trader runs trading cycles. Analysis fans out per symbol; risk,
// confirmation and execution run one quote at a time against the book.
type Trader struct {
	settings Settings
	deps     Deps
	now      func() time.Time

	mu     sync.RWMutex
	recent []Decision
}

func New(settings Settings, deps Deps) (*Trader, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.New("trader: market source is required")
	case len(deps.Builders) == 0:
		return nil, errors.New("trader: at least one strategy builder is required")
	case deps.Gate == nil:
		return nil, errors.New("trader: confirmation gate is required")
	case deps.Gateway == nil:
		return nil, errors.New("trader: execution gateway is required")
	case deps.Book == nil:
		return nil, errors.New("trader: portfolio book is required")
	}
	if settings.Contracts <= 0 {
		settings.Contracts = 1
	}
	if settings.Workers <= 0 {
		settings.Workers = 1
	}
	if settings.HistoryBars < strategy.MinTrendBars {
		settings.HistoryBars = strategy.MinTrendBars
	}
	return &Trader{settings: settings, deps: deps, now: time.Now}, nil
}

// Book exposes the portfolio for read-only consumers
func (t *Trader) Book() *portfolio.Book { return t.deps.Book }

// Recent returns up to limit decisions, newest first
func (t *Trader) Recent(limit int) []Decision {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if limit <= 0 || limit > len(t.recent) {
		limit = len(t.recent)
	}
	out := make([]Decision, 0, limit)
	for i := len(t.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, t.recent[i])
	}
	return out
}

func (t *Trader) remember(ds []Decision) {
	t.mu.Lock()
	t.recent = append(t.recent, ds...)
	if over := len(t.recent) - recentCapacity; over > 0 {
		t.recent = append([]Decision(nil), t.recent[over:]...)
	}
	t.mu.Unlock()
}
