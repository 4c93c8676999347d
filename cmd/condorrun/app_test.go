package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/condorrun/internal/config"
	"github.com/sawpanic/condorrun/internal/trader"
)

func sampleConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join("..", "..", "config", "condorrun.yaml"))
	require.NoError(t, err)
	cfg.Market.File = filepath.Join("..", "..", "config", "market.yaml")
	cfg.Execution.EmergencyStopFile = filepath.Join(t.TempDir(), "emergency_stop")
	return cfg
}

func TestAnalyzeCycleOnSampleData(t *testing.T) {
	a, err := newApp(context.Background(), sampleConfig(t), appOptions{dryRun: true})
	require.NoError(t, err)
	defer a.close()

	report, err := a.trader.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, report.MarketSafe)
	assert.NotEmpty(t, report.Quotes)
	assert.Zero(t, report.Count(trader.CodeFilled))
	assert.Empty(t, a.book.Snapshot().Positions)

	var buf bytes.Buffer
	printReport(&buf, report)
	assert.Contains(t, buf.String(), "SPY")
	assert.Contains(t, buf.String(), "396.00/398.00/402.00/404.00")
}

func TestRunPlacesTradesAfterAuthentication(t *testing.T) {
	cfg := sampleConfig(t)
	cfg.Safeguards.AutoConfirm = true
	cfg.Watchlist = []string{"SPY"}

	a, err := newApp(context.Background(), cfg, appOptions{})
	require.NoError(t, err)
	defer a.close()
	require.NoError(t, authenticate(context.Background(), a.session))

	require.NoError(t, a.trader.Run(context.Background(), 1, nil))
	open := a.book.Snapshot().PositionsFor("SPY")
	require.Len(t, open, 2)
	assert.NotEqual(t, open[0].Strategy, open[1].Strategy)
}

func TestAuthenticationFailureIsFatal(t *testing.T) {
	cfg := sampleConfig(t)
	cfg.Execution.Username = ""

	a, err := newApp(context.Background(), cfg, appOptions{})
	require.NoError(t, err)
	defer a.close()
	assert.Error(t, authenticate(context.Background(), a.session))
}

func TestMissingMarketFile(t *testing.T) {
	cfg := sampleConfig(t)
	cfg.Market.File = filepath.Join(t.TempDir(), "absent.yaml")

	_, err := newApp(context.Background(), cfg, appOptions{})
	assert.Error(t, err)
}
