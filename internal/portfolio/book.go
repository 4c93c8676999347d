package portfolio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownPosition = errors.New("unknown position")
	ErrInvalidFill     = errors.New("invalid fill")
)

// ContractMultiplier is the number of shares per option contract
const ContractMultiplier = 100

// Settlement is a filled opening trade to book. Credit and MaxLoss are per
// share; the book applies quantity and ContractMultiplier. An empty TradeID
// is assigned one.
type Settlement struct {
	TradeID    string
	Symbol     string
	Strategy   string
	Quantity   int
	Credit     float64
	MaxLoss    float64
	Strikes    [4]float64
	Expiration time.Time
	At         time.Time
}

// Snapshot is an immutable copy of the book tagged with the version it was
// taken at. Every mutation bumps the version.
type Snapshot struct {
	Version uint64 `json:"version"`
	Portfolio
}

// Book is the single writer for portfolio state. Cash is kept in decimal so
// repeated settlements do not drift.
type Book struct {
	mu        sync.RWMutex
	cash      decimal.Decimal
	positions map[string]Position
	history   []Valuation
	version   uint64
	now       func() time.Time
}

func NewBook(initialCash float64) *Book {
	return &Book{
		cash:      decimal.NewFromFloat(initialCash),
		positions: make(map[string]Position),
		now:       time.Now,
	}
}

// Snapshot returns a copy that callers may read freely
func (b *Book) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p := Portfolio{
		Cash:      b.cash.InexactFloat64(),
		Positions: make(map[string]Position, len(b.positions)),
		History:   append([]Valuation(nil), b.history...),
		NetValue:  b.netValue().InexactFloat64(),
	}
	for k, v := range b.positions {
		p.Positions[k] = v
	}
	return Snapshot{Version: b.version, Portfolio: p}
}

// Version is the number of mutations applied so far
func (b *Book) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

func (b *Book) netValue() decimal.Decimal {
	nv := b.cash
	for _, pos := range b.positions {
		nv = nv.Sub(decimal.NewFromFloat(pos.Value))
	}
	return nv
}

// Settle books an opening credit: cash grows by the premium and the position
// carries the same amount as its cost to close, so net value is unchanged.
func (b *Book) Settle(s Settlement) (Snapshot, error) {
	if s.Symbol == "" || s.Quantity <= 0 || s.Credit < 0 || s.MaxLoss < 0 {
		return Snapshot{}, fmt.Errorf("%w: %+v", ErrInvalidFill, s)
	}
	at := s.At
	if at.IsZero() {
		at = b.now()
	}
	units := decimal.NewFromInt(int64(s.Quantity * ContractMultiplier))
	premium := decimal.NewFromFloat(s.Credit).Mul(units)
	maxLoss := decimal.NewFromFloat(s.MaxLoss).Mul(units)

	id := s.TradeID
	if id == "" {
		id = uuid.New().String()
	}

	b.mu.Lock()
	if _, dup := b.positions[id]; dup {
		b.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: duplicate trade %s", ErrInvalidFill, id)
	}
	b.cash = b.cash.Add(premium)
	b.positions[id] = Position{
		ID:         id,
		Symbol:     s.Symbol,
		Strategy:   s.Strategy,
		Quantity:   s.Quantity,
		Credit:     s.Credit,
		Value:      premium.InexactFloat64(),
		MaxLoss:    maxLoss.InexactFloat64(),
		Strikes:    s.Strikes,
		Expiration: s.Expiration,
		OpenedAt:   at,
	}
	b.version++
	b.mu.Unlock()

	log.Info().
		Str("trade_id", s.TradeID).
		Str("symbol", s.Symbol).
		Str("strategy", s.Strategy).
		Int("quantity", s.Quantity).
		Str("premium", premium.StringFixed(2)).
		Msg("Fill settled")
	return b.Snapshot(), nil
}

// Mark updates the cost to close the position opened by tradeID
func (b *Book) Mark(tradeID string, value float64) error {
	if value < 0 {
		return fmt.Errorf("%w: negative mark %v for %s", ErrInvalidFill, value, tradeID)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.positions[tradeID]
	if !ok {
		return fmt.Errorf("%s: %w", tradeID, ErrUnknownPosition)
	}
	pos.Value = value
	b.positions[tradeID] = pos
	b.version++
	return nil
}

// Close pays cost to exit the position and removes it
func (b *Book) Close(tradeID string, cost float64) error {
	if cost < 0 {
		return fmt.Errorf("%w: negative close cost %v for %s", ErrInvalidFill, cost, tradeID)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.positions[tradeID]; !ok {
		return fmt.Errorf("%s: %w", tradeID, ErrUnknownPosition)
	}
	b.cash = b.cash.Sub(decimal.NewFromFloat(cost))
	delete(b.positions, tradeID)
	b.version++
	return nil
}

// RecordValuation appends the current net value to history. The daily loss
// check compares against the latest entry.
func (b *Book) RecordValuation() Valuation {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := Valuation{At: b.now().UTC(), Value: b.netValue().InexactFloat64()}
	b.history = append(b.history, v)
	b.version++
	return v
}
