package execution

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/condorrun/internal/pricing"
	"github.com/sawpanic/condorrun/internal/strategy"
)

// Status of an execution attempt
type Status string

const (
	Filled   Status = "filled"
	Rejected Status = "rejected"
	Error    Status = "error"
)

var (
	ErrNotAuthenticated = errors.New("broker session not authenticated")
	ErrEmergencyStop    = errors.New("emergency stop active")
	ErrSessionClosed    = errors.New("broker session closed")
)

// OrderLeg is one contract of a spread order
type OrderLeg struct {
	Name   strategy.LegName   `json:"name"`
	Side   strategy.Side      `json:"side"`
	Type   pricing.OptionType `json:"type"`
	Strike float64            `json:"strike"`
}

// Order is a multi-leg credit spread priced as a net credit limit
type Order struct {
	ID         string        `json:"id"`
	QuoteID    string        `json:"quote_id"`
	Symbol     string        `json:"symbol"`
	Strategy   strategy.Kind `json:"strategy"`
	Quantity   int           `json:"quantity"`
	LimitPrice float64       `json:"limit_price"`
	Expiration time.Time     `json:"expiration"`
	Legs       []OrderLeg    `json:"legs"`
}

// OrderFromQuote builds a limit order at the quoted net credit
func OrderFromQuote(q *strategy.Quote, quantity int) Order {
	legs := make([]OrderLeg, 0, len(strategy.LegNames))
	for _, name := range strategy.LegNames {
		l, ok := q.Legs[name]
		if !ok {
			continue
		}
		legs = append(legs, OrderLeg{Name: name, Side: l.Side, Type: l.Type, Strike: l.Strike})
	}
	return Order{
		ID:         uuid.New().String(),
		QuoteID:    q.ID,
		Symbol:     q.Symbol,
		Strategy:   q.Kind,
		Quantity:   quantity,
		LimitPrice: q.Metrics.NetCredit,
		Expiration: q.CreatedAt.AddDate(0, 0, q.ExpirationDays),
		Legs:       legs,
	}
}

// Validate runs pre-flight checks
func (o Order) Validate() error {
	switch {
	case o.Symbol == "":
		return errors.New("missing symbol")
	case o.Quantity <= 0:
		return fmt.Errorf("quantity %d must be positive", o.Quantity)
	case o.LimitPrice <= 0:
		return fmt.Errorf("limit price %.4f must be positive", o.LimitPrice)
	case len(o.Legs) != 4:
		return fmt.Errorf("expected 4 legs, got %d", len(o.Legs))
	}
	return nil
}

// Fill is the gateway's answer. FilledPrice is set only when Status is Filled.
type Fill struct {
	OrderID     string    `json:"order_id"`
	Status      Status    `json:"status"`
	FilledPrice float64   `json:"filled_price,omitempty"`
	Quantity    int       `json:"quantity"`
	Message     string    `json:"message,omitempty"`
	At          time.Time `json:"at"`
}
