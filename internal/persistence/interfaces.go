package persistence

import (
	"context"
	"time"

	"github.com/sawpanic/condorrun/internal/market"
)

// TimeRange is an inclusive time window for queries
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Decision is one journaled outcome of a trading cycle
type Decision struct {
	ID        int64     `json:"id" db:"id"`
	CycleID   string    `json:"cycle_id" db:"cycle_id"`
	Timestamp time.Time `json:"ts" db:"ts"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Strategy  string    `json:"strategy" db:"strategy"`
	Code      string    `json:"code" db:"code"`
	Detail    string    `json:"detail" db:"detail"`
	QuoteID   *string   `json:"quote_id,omitempty" db:"quote_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Fill is a journaled execution result
type Fill struct {
	ID          int64                  `json:"id" db:"id"`
	OrderID     string                 `json:"order_id" db:"order_id"`
	QuoteID     string                 `json:"quote_id" db:"quote_id"`
	Timestamp   time.Time              `json:"ts" db:"ts"`
	Symbol      string                 `json:"symbol" db:"symbol"`
	Strategy    string                 `json:"strategy" db:"strategy"`
	Status      string                 `json:"status" db:"status"`
	Quantity    int                    `json:"quantity" db:"quantity"`
	FilledPrice float64                `json:"filled_price" db:"filled_price"`
	MaxLoss     float64                `json:"max_loss" db:"max_loss"`
	Legs        map[string]interface{} `json:"legs" db:"legs"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
}

// DecisionsRepo journals cycle decisions
type DecisionsRepo interface {
	// Insert stores one decision
	Insert(ctx context.Context, d Decision) error

	// InsertBatch stores all decisions of a cycle atomically
	InsertBatch(ctx context.Context, ds []Decision) error

	// ListBySymbol returns the newest decisions for a symbol within tr
	ListBySymbol(ctx context.Context, symbol string, tr TimeRange, limit int) ([]Decision, error)

	// CountByCode groups decisions in tr by code
	CountByCode(ctx context.Context, tr TimeRange) (map[string]int64, error)
}

// FillsRepo journals execution results
type FillsRepo interface {
	Insert(ctx context.Context, f Fill) error
	GetByOrderID(ctx context.Context, orderID string) (*Fill, error)
	Latest(ctx context.Context, limit int) ([]Fill, error)
}

// HistoryReader returns daily closes with indicators, oldest first
type HistoryReader interface {
	market.HistorySource
}

// Repository aggregates the journal and history stores
type Repository struct {
	Decisions DecisionsRepo
	Fills     FillsRepo
	History   HistoryReader
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth reports on the persistence layer
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
}
