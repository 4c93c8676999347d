package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/condorrun/internal/market"
	"github.com/sawpanic/condorrun/internal/persistence"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

var ts = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

func TestDecisionsInsert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDecisionsRepo(db, time.Second)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO decisions")).
		WithArgs("c1", sqlmock.AnyArg(), "SPY", "iron_condor", "below_min_credit", "credit 0.42", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, ts))

	err := repo.Insert(context.Background(), persistence.Decision{
		CycleID: "c1", Timestamp: ts, Symbol: "SPY", Strategy: "iron_condor",
		Code: "below_min_credit", Detail: "credit 0.42",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecisionsInsertRequiresCode(t *testing.T) {
	db, mock := newMock(t)
	err := NewDecisionsRepo(db, time.Second).Insert(context.Background(), persistence.Decision{Symbol: "SPY"})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecisionsInsertDuplicate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("INSERT INTO decisions").WillReturnError(&pq.Error{Code: "23505"})

	err := NewDecisionsRepo(db, time.Second).Insert(context.Background(), persistence.Decision{Symbol: "SPY", Code: "approved"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate decision")
}

func TestDecisionsInsertBatch(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDecisionsRepo(db, time.Second)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO decisions")
	prep.ExpectExec().WithArgs("c1", sqlmock.AnyArg(), "SPY", "iron_condor", "approved", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs("c1", sqlmock.AnyArg(), "QQQ", "", "no_data", "spot unavailable", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := repo.InsertBatch(context.Background(), []persistence.Decision{
		{CycleID: "c1", Timestamp: ts, Symbol: "SPY", Strategy: "iron_condor", Code: "approved"},
		{CycleID: "c1", Timestamp: ts, Symbol: "QQQ", Code: "no_data", Detail: "spot unavailable"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.NoError(t, repo.InsertBatch(context.Background(), nil))
}

func TestDecisionsInsertBatchRollsBack(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO decisions")
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := NewDecisionsRepo(db, time.Second).InsertBatch(context.Background(), []persistence.Decision{
		{CycleID: "c1", Symbol: "SPY", Code: "approved"},
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecisionsListBySymbol(t *testing.T) {
	db, mock := newMock(t)
	quote := "q-1"

	rows := sqlmock.NewRows([]string{"id", "cycle_id", "ts", "symbol", "strategy", "code", "detail", "quote_id", "created_at"}).
		AddRow(2, "c2", ts, "SPY", "iron_condor", "approved", "", quote, ts).
		AddRow(1, "c1", ts.Add(-time.Hour), "SPY", "iron_condor", "position_size", "", nil, ts)
	mock.ExpectQuery("SELECT (.+) FROM decisions").
		WithArgs("SPY", sqlmock.AnyArg(), sqlmock.AnyArg(), 10).
		WillReturnRows(rows)

	out, err := NewDecisionsRepo(db, time.Second).ListBySymbol(context.Background(), "SPY",
		persistence.TimeRange{From: ts.Add(-24 * time.Hour), To: ts}, 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.NotNil(t, out[0].QuoteID)
	assert.Equal(t, "q-1", *out[0].QuoteID)
	assert.Nil(t, out[1].QuoteID)
	assert.Equal(t, "position_size", out[1].Code)
}

func TestDecisionsCountByCode(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT code, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"code", "count"}).AddRow("approved", 3).AddRow("liquidity", 1))

	counts, err := NewDecisionsRepo(db, time.Second).CountByCode(context.Background(), persistence.TimeRange{To: ts})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"approved": 3, "liquidity": 1}, counts)
}

func TestFillsInsertAndGet(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFillsRepo(db, time.Second)

	mock.ExpectQuery("INSERT INTO fills").
		WithArgs("o-1", "q-1", sqlmock.AnyArg(), "SPY", "iron_condor", "filled", 1, 1.73, 25.0, []byte(`{"sell_call":402}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(7, ts))

	require.NoError(t, repo.Insert(context.Background(), persistence.Fill{
		OrderID: "o-1", QuoteID: "q-1", Timestamp: ts, Symbol: "SPY", Strategy: "iron_condor",
		Status: "filled", Quantity: 1, FilledPrice: 1.73, MaxLoss: 25,
		Legs: map[string]interface{}{"sell_call": 402},
	}))

	cols := []string{"id", "order_id", "quote_id", "ts", "symbol", "strategy", "status", "quantity", "filled_price", "max_loss", "legs", "created_at"}
	mock.ExpectQuery("SELECT (.+) FROM fills WHERE order_id").
		WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(7, "o-1", "q-1", ts, "SPY", "iron_condor", "filled", 1, 1.73, 25.0, []byte(`{"sell_call":402}`), ts))

	f, err := repo.GetByOrderID(context.Background(), "o-1")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, int64(7), f.ID)
	assert.Equal(t, 402.0, f.Legs["sell_call"])

	mock.ExpectQuery("SELECT (.+) FROM fills WHERE order_id").WithArgs("missing").WillReturnError(sql.ErrNoRows)
	f, err = repo.GetByOrderID(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, f)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFillsLatest(t *testing.T) {
	db, mock := newMock(t)
	cols := []string{"id", "order_id", "quote_id", "ts", "symbol", "strategy", "status", "quantity", "filled_price", "max_loss", "legs", "created_at"}
	mock.ExpectQuery("SELECT (.+) FROM fills ORDER BY ts DESC").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(2, "o-2", "q-2", ts, "QQQ", "iron_butterfly", "filled", 2, 3.1, 90.0, nil, ts).
			AddRow(1, "o-1", "q-1", ts, "SPY", "iron_condor", "filled", 1, 1.73, 25.0, []byte(`{}`), ts))

	fills, err := NewFillsRepo(db, time.Second).Latest(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, "o-2", fills[0].OrderID)
	assert.NotNil(t, fills[0].Legs)
}

func TestHistoryReaderSeries(t *testing.T) {
	db, mock := newMock(t)
	rows := sqlmock.NewRows([]string{"ts", "close"})
	for i := 0; i < 60; i++ {
		rows.AddRow(ts.AddDate(0, 0, -i), float64(160-i))
	}
	mock.ExpectQuery("SELECT ts, close").WithArgs("SPY", 60).WillReturnRows(rows)

	bars, err := NewHistoryReader(db, time.Second).Series(context.Background(), "SPY", 60)
	require.NoError(t, err)
	require.Len(t, bars, 60)
	assert.Equal(t, 101.0, bars[0].Close, "oldest first")
	assert.Equal(t, 160.0, bars[59].Close)
	require.NotNil(t, bars[59].SMA50)
	assert.InDelta(t, 135.5, *bars[59].SMA50, 1e-9)
}

func TestHistoryReaderEmpty(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT ts, close").WillReturnRows(sqlmock.NewRows([]string{"ts", "close"}))

	_, err := NewHistoryReader(db, time.Second).Series(context.Background(), "XYZ", 10)
	assert.ErrorIs(t, err, market.ErrNoData)
}

func TestMigrate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS decisions").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, Migrate(context.Background(), db))

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))
	assert.Error(t, Migrate(context.Background(), db))
}
