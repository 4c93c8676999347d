package market

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/condorrun/infra/breakers"
)

type fakeSource struct {
	spot  float64
	iv    float64
	snap  Snapshot
	err   error
	calls atomic.Int32
}

func (f *fakeSource) Spot(context.Context, string) (float64, error) {
	f.calls.Add(1)
	return f.spot, f.err
}

func (f *fakeSource) ImpliedVolatility(context.Context, string) (float64, error) {
	f.calls.Add(1)
	return f.iv, f.err
}

func (f *fakeSource) Snapshot(context.Context) (Snapshot, error) {
	f.calls.Add(1)
	return f.snap, f.err
}

const offlineYAML = `
snapshot:
  index_level: 5000
  index_change: -0.01
  volatility_index: 18
  timestamp: 2024-03-15T00:00:00Z
quotes:
  SPY: {spot: 400, iv: 0.2}
  QQQ: {spot: 350}
history:
  SPY: [1, 2, 3, 4, 5]
`

func TestOfflineSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market.yaml")
	require.NoError(t, os.WriteFile(path, []byte(offlineYAML), 0o644))

	src, err := LoadOfflineSource(path)
	require.NoError(t, err)
	ctx := context.Background()

	spot, err := src.Spot(ctx, "SPY")
	require.NoError(t, err)
	assert.Equal(t, 400.0, spot)

	iv, err := src.ImpliedVolatility(ctx, "SPY")
	require.NoError(t, err)
	assert.Equal(t, 0.2, iv)

	_, err = src.ImpliedVolatility(ctx, "QQQ")
	assert.ErrorIs(t, err, ErrNoData)
	_, err = src.Spot(ctx, "TSLA")
	assert.ErrorIs(t, err, ErrNoData)

	snap, err := src.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 18.0, snap.VolatilityIndex)
	assert.Equal(t, -0.01, snap.IndexChange)

	bars, err := src.Series(ctx, "SPY", 3)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, 3.0, bars[0].Close)
	assert.Equal(t, 5.0, bars[2].Close)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), bars[2].Time)
}

func TestLoadOfflineSourceErrors(t *testing.T) {
	_, err := LoadOfflineSource(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("quotes: [1, 2"), 0o644))
	_, err = LoadOfflineSource(path)
	assert.Error(t, err)
}

func TestWithIndicators(t *testing.T) {
	bars := make([]Bar, 60)
	for i := range bars {
		bars[i].Close = float64(i + 1)
	}
	out := WithIndicators(bars)

	assert.Nil(t, bars[59].SMA20, "input must not be mutated")
	assert.Nil(t, out[18].SMA20)
	require.NotNil(t, out[19].SMA20)
	assert.InDelta(t, 10.5, *out[19].SMA20, 1e-12)
	assert.Nil(t, out[48].SMA50)
	require.NotNil(t, out[49].SMA50)
	assert.InDelta(t, 25.5, *out[49].SMA50, 1e-12)

	assert.Nil(t, out[13].RSI)
	require.NotNil(t, out[14].RSI)
	assert.Equal(t, 100.0, *out[14].RSI, "only gains")

	flat := WithIndicators(make([]Bar, 20))
	require.NotNil(t, flat[19].RSI)
	assert.Equal(t, 50.0, *flat[19].RSI)
}

func TestRSIMixedMoves(t *testing.T) {
	bars := make([]Bar, 15)
	for i := range bars {
		if i%2 == 0 {
			bars[i].Close = 10
		} else {
			bars[i].Close = 11
		}
	}
	out := WithIndicators(bars)
	require.NotNil(t, out[14].RSI)
	// 7 gains and 7 losses of equal size
	assert.InDelta(t, 50.0, *out[14].RSI, 1e-9)
}

func TestBreakerSourceTrips(t *testing.T) {
	fake := &fakeSource{err: errors.New("provider down")}
	var transitions []string
	src := NewBreakerSource("test", fake, breakers.DefaultSettings(), func(_, from, to string) {
		transitions = append(transitions, from+"->"+to)
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := src.Spot(ctx, "SPY")
		require.Error(t, err)
	}
	assert.Equal(t, "open", src.State())

	_, err := src.Spot(ctx, "SPY")
	assert.True(t, breakers.IsOpen(err))
	assert.Equal(t, int32(3), fake.calls.Load(), "open breaker must not reach the provider")
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestBreakerSourceIgnoresNoData(t *testing.T) {
	fake := &fakeSource{err: ErrNoData}
	src := NewBreakerSource("test", fake, breakers.DefaultSettings(), nil)

	for i := 0; i < 10; i++ {
		_, err := src.ImpliedVolatility(context.Background(), "SPY")
		require.ErrorIs(t, err, ErrNoData)
	}
	assert.Equal(t, "closed", src.State())
}

func TestBreakerSourcePassesValues(t *testing.T) {
	fake := &fakeSource{spot: 400, iv: 0.2, snap: Snapshot{VolatilityIndex: 20}}
	src := NewBreakerSource("test", fake, breakers.DefaultSettings(), nil)
	ctx := context.Background()

	spot, err := src.Spot(ctx, "SPY")
	require.NoError(t, err)
	assert.Equal(t, 400.0, spot)
	iv, err := src.ImpliedVolatility(ctx, "SPY")
	require.NoError(t, err)
	assert.Equal(t, 0.2, iv)
	snap, err := src.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20.0, snap.VolatilityIndex)
}

func TestLimitedSourceCancelled(t *testing.T) {
	fake := &fakeSource{spot: 400}
	src := NewLimitedSource(fake, 0.001, 1)

	_, err := src.Spot(context.Background(), "SPY")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = src.Spot(ctx, "SPY")
	assert.Error(t, err)
	assert.Equal(t, int32(1), fake.calls.Load())

	// snapshot has its own bucket
	_, err = src.Snapshot(context.Background())
	assert.NoError(t, err)
}

func TestCachedSourceHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	fake := &fakeSource{spot: 999}
	src := NewCachedSource(fake, db, time.Minute)

	mock.ExpectGet("condorrun:spot:SPY").SetVal("400.5")

	spot, err := src.Spot(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, 400.5, spot)
	assert.Zero(t, fake.calls.Load())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedSourceMissStores(t *testing.T) {
	db, mock := redismock.NewClientMock()
	fake := &fakeSource{iv: 0.25}
	src := NewCachedSource(fake, db, time.Minute)

	mock.ExpectGet("condorrun:iv:SPY").RedisNil()
	mock.ExpectSet("condorrun:iv:SPY", "0.25", time.Minute).SetVal("OK")

	iv, err := src.ImpliedVolatility(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, 0.25, iv)
	assert.Equal(t, int32(1), fake.calls.Load())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedSourceRedisDownFallsThrough(t *testing.T) {
	db, mock := redismock.NewClientMock()
	fake := &fakeSource{spot: 401}
	src := NewCachedSource(fake, db, time.Minute)

	mock.ExpectGet("condorrun:spot:SPY").SetErr(errors.New("connection refused"))
	mock.ExpectSet("condorrun:spot:SPY", "401", time.Minute).SetErr(errors.New("connection refused"))

	spot, err := src.Spot(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, 401.0, spot)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedSourceDoesNotCacheErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	fake := &fakeSource{err: ErrNoData}
	src := NewCachedSource(fake, db, time.Minute)

	mock.ExpectGet("condorrun:snapshot").RedisNil()

	_, err := src.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrNoData)
	assert.NoError(t, mock.ExpectationsWereMet())
}
