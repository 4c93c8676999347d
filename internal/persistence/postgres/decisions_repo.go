package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/condorrun/internal/persistence"
)

// decisionsRepo implements persistence.DecisionsRepo for PostgreSQL
type decisionsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewDecisionsRepo(db *sqlx.DB, timeout time.Duration) persistence.DecisionsRepo {
	return &decisionsRepo{db: db, timeout: timeout}
}

const insertDecision = `
		INSERT INTO decisions (cycle_id, ts, symbol, strategy, code, detail, quote_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (r *decisionsRepo) Insert(ctx context.Context, d persistence.Decision) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if d.Code == "" {
		return fmt.Errorf("decision for %s has no code", d.Symbol)
	}

	err := r.db.QueryRowxContext(ctx, insertDecision+`
		RETURNING id, created_at`,
		d.CycleID, d.Timestamp, d.Symbol, d.Strategy, d.Code, d.Detail, d.QuoteID).
		Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate decision: %w", err)
		}
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	return nil
}

// InsertBatch stores a whole cycle in one transaction
func (r *decisionsRepo) InsertBatch(ctx context.Context, ds []persistence.Decision) error {
	if len(ds) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(ds)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertDecision)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range ds {
		if d.Code == "" {
			return fmt.Errorf("decision for %s has no code", d.Symbol)
		}
		if _, err := stmt.ExecContext(ctx,
			d.CycleID, d.Timestamp, d.Symbol, d.Strategy, d.Code, d.Detail, d.QuoteID); err != nil {
			return fmt.Errorf("failed to insert decision in batch: %w", err)
		}
	}

	return tx.Commit()
}

func (r *decisionsRepo) ListBySymbol(ctx context.Context, symbol string, tr persistence.TimeRange, limit int) ([]persistence.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, cycle_id, ts, symbol, strategy, code, detail, quote_id, created_at
		FROM decisions
		WHERE symbol = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts DESC
		LIMIT $4`

	var out []persistence.Decision
	if err := r.db.SelectContext(ctx, &out, query, symbol, tr.From, tr.To, limit); err != nil {
		return nil, fmt.Errorf("failed to query decisions by symbol: %w", err)
	}
	return out, nil
}

func (r *decisionsRepo) CountByCode(ctx context.Context, tr persistence.TimeRange) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT code, COUNT(*)
		FROM decisions
		WHERE ts >= $1 AND ts <= $2
		GROUP BY code
		ORDER BY code`

	rows, err := r.db.QueryxContext(ctx, query, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("failed to count decisions by code: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var code string
		var n int64
		if err := rows.Scan(&code, &n); err != nil {
			return nil, fmt.Errorf("failed to scan code count: %w", err)
		}
		counts[code] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return counts, nil
}
