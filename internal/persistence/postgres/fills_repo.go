package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/condorrun/internal/persistence"
)

// fillsRepo implements persistence.FillsRepo for PostgreSQL
type fillsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewFillsRepo(db *sqlx.DB, timeout time.Duration) persistence.FillsRepo {
	return &fillsRepo{db: db, timeout: timeout}
}

const fillColumns = `id, order_id, quote_id, ts, symbol, strategy, status, quantity, filled_price, max_loss, legs, created_at`

// Insert stores a fill; a repeated order ID is rejected
func (r *fillsRepo) Insert(ctx context.Context, f persistence.Fill) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	legsJSON, err := json.Marshal(f.Legs)
	if err != nil {
		return fmt.Errorf("failed to marshal legs: %w", err)
	}

	query := `
		INSERT INTO fills (order_id, quote_id, ts, symbol, strategy, status, quantity, filled_price, max_loss, legs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err = r.db.QueryRowxContext(ctx, query,
		f.OrderID, f.QuoteID, f.Timestamp, f.Symbol, f.Strategy, f.Status,
		f.Quantity, f.FilledPrice, f.MaxLoss, legsJSON).
		Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate fill %s: %w", f.OrderID, err)
		}
		return fmt.Errorf("failed to insert fill: %w", err)
	}
	return nil
}

// GetByOrderID returns nil without error when no fill exists
func (r *fillsRepo) GetByOrderID(ctx context.Context, orderID string) (*persistence.Fill, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowxContext(ctx, `SELECT `+fillColumns+` FROM fills WHERE order_id = $1`, orderID)
	f, err := scanFill(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get fill by order ID: %w", err)
	}
	return f, nil
}

func (r *fillsRepo) Latest(ctx context.Context, limit int) ([]persistence.Fill, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `SELECT `+fillColumns+` FROM fills ORDER BY ts DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest fills: %w", err)
	}
	defer rows.Close()

	var fills []persistence.Fill
	for rows.Next() {
		f, err := scanFill(rows)
		if err != nil {
			return nil, err
		}
		fills = append(fills, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return fills, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFill(s scanner) (*persistence.Fill, error) {
	var f persistence.Fill
	var legsJSON []byte

	err := s.Scan(
		&f.ID, &f.OrderID, &f.QuoteID, &f.Timestamp, &f.Symbol, &f.Strategy,
		&f.Status, &f.Quantity, &f.FilledPrice, &f.MaxLoss, &legsJSON, &f.CreatedAt)
	if err != nil {
		return nil, err
	}

	f.Legs = make(map[string]interface{})
	if len(legsJSON) > 0 {
		if err := json.Unmarshal(legsJSON, &f.Legs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal legs: %w", err)
		}
	}
	return &f, nil
}
