package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/condorrun/internal/metrics"
	"github.com/sawpanic/condorrun/internal/persistence"
	"github.com/sawpanic/condorrun/internal/portfolio"
	"github.com/sawpanic/condorrun/internal/trader"
)

type staticDecisions []trader.Decision

// Recent mimics the trader: newest first
func (s staticDecisions) Recent(limit int) []trader.Decision {
	out := make([]trader.Decision, 0, len(s))
	for i := len(s) - 1; i >= 0; i-- {
		out = append(out, s[i])
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

type countingJournal struct {
	persistence.DecisionsRepo
	counts map[string]int64
	err    error
}

func (j countingJournal) CountByCode(context.Context, persistence.TimeRange) (map[string]int64, error) {
	return j.counts, j.err
}

type downDatabase struct{}

func (downDatabase) Health(context.Context) persistence.HealthCheck {
	return persistence.HealthCheck{Healthy: false, Errors: []string{"ping failed"}}
}
func (downDatabase) Ping(context.Context) error { return errors.New("ping failed") }

func newTestServer(deps Deps) (*Server, *metrics.Registry, *Hub) {
	reg := metrics.NewRegistry()
	hub := NewHub()
	cfg := DefaultServerConfig()
	cfg.Port = 0
	return NewServer(cfg, deps, reg, hub), reg, hub
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func sampleDecisions() staticDecisions {
	return staticDecisions{
		{Symbol: "SPY", Strategy: "iron_condor", Code: trader.CodeFilled},
		{Symbol: "QQQ", Strategy: "iron_condor", Code: "below_min_credit"},
		{Symbol: "SPY", Strategy: "iron_butterfly", Code: "liquidity"},
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, _, _ := newTestServer(Deps{Portfolio: portfolio.NewBook(1000), Version: "v0.1.0"})

	rec := get(t, s, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Len(t, rec.Header().Get("X-Request-ID"), 8)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "v0.1.0", resp.Version)
	assert.True(t, resp.Checks["portfolio"].Healthy)
	assert.NotEmpty(t, resp.System.GoVersion)
}

func TestHealthDegradedWhenDatabaseDown(t *testing.T) {
	s, _, _ := newTestServer(Deps{Database: downDatabase{}})

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(get(t, s, "/health").Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.False(t, resp.Checks["database"].Healthy)
	assert.Equal(t, "ping failed", resp.Checks["database"].Message)
}

func TestPortfolioEndpoint(t *testing.T) {
	book := portfolio.NewBook(100000)
	_, err := book.Settle(portfolio.Settlement{TradeID: "t1", Symbol: "SPY", Strategy: "iron_condor", Quantity: 1, Credit: 1.75, MaxLoss: 0.25})
	require.NoError(t, err)
	s, _, _ := newTestServer(Deps{Portfolio: book})

	rec := get(t, s, "/portfolio")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PortfolioResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 100175.0, resp.Snapshot.Cash, 1e-9)
	assert.Equal(t, 1, resp.Snapshot.Positions["t1"].Quantity)
	assert.Equal(t, "SPY", resp.Snapshot.Positions["t1"].Symbol)
	assert.Equal(t, uint64(1), resp.Snapshot.Version)
}

func TestPortfolioUnavailable(t *testing.T) {
	s, _, _ := newTestServer(Deps{})

	rec := get(t, s, "/portfolio")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "portfolio_unavailable", resp.Code)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), resp.RequestID)
}

func TestDecisionsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(Deps{Decisions: sampleDecisions()})

	var resp DecisionsResponse
	rec := get(t, s, "/decisions?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, trader.Code("liquidity"), resp.Decisions[0].Code)

	rec = get(t, s, "/decisions?symbol=spy")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	for _, d := range resp.Decisions {
		assert.Equal(t, "SPY", d.Symbol)
	}

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/decisions?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/decisions?limit=abc").Code)
}

func TestDecisionCountsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(Deps{Journal: countingJournal{counts: map[string]int64{"filled": 3, "liquidity": 1}}})

	rec := get(t, s, "/decisions/counts?hours=6")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp DecisionCountsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Counts["filled"])
	assert.InDelta(t, 6*time.Hour.Seconds(), resp.Range.To.Sub(resp.Range.From).Seconds(), 1)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/decisions/counts?hours=-1").Code)

	s, _, _ = newTestServer(Deps{Journal: countingJournal{err: errors.New("boom")}})
	assert.Equal(t, http.StatusInternalServerError, get(t, s, "/decisions/counts").Code)

	s, _, _ = newTestServer(Deps{})
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s, "/decisions/counts").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, reg, _ := newTestServer(Deps{})
	reg.RecordDecision("iron_condor", "filled")

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `condorrun_decisions_total{code="filled",strategy="iron_condor"} 1`)
}

func TestNotFound(t *testing.T) {
	s, _, _ := newTestServer(Deps{})

	rec := get(t, s, "/candidates")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "endpoint_not_found", resp.Code)
}

func TestCORSAllowsLocalhostOnly(t *testing.T) {
	s, _, _ := newTestServer(Deps{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://example.com")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestDecisionFeedWebsocket(t *testing.T) {
	s, _, hub := newTestServer(Deps{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/decisions"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(trader.Decision{Symbol: "SPY", Strategy: "iron_condor", Code: trader.CodeFilled})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got trader.Decision
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "SPY", got.Symbol)
	assert.Equal(t, trader.CodeFilled, got.Code)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
}
