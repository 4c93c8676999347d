package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/condorrun/internal/market"
	"github.com/sawpanic/condorrun/internal/persistence"
)

// pricesRepo reads daily closes from price_bars
type pricesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewHistoryReader(db *sqlx.DB, timeout time.Duration) persistence.HistoryReader {
	return &pricesRepo{db: db, timeout: timeout}
}

// Series returns the newest limit bars oldest first, with indicators
func (r *pricesRepo) Series(ctx context.Context, symbol string, limit int) ([]market.Bar, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ts, close
		FROM price_bars
		WHERE symbol = $1
		ORDER BY ts DESC
		LIMIT $2`

	var bars []market.Bar
	if err := r.db.SelectContext(ctx, &bars, query, symbol, limit); err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s history: %w", symbol, market.ErrNoData)
	}
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return market.WithIndicators(bars), nil
}
