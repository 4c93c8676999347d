package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/condorrun/infra/breakers"
	"github.com/sawpanic/condorrun/internal/config"
	"github.com/sawpanic/condorrun/internal/confirm"
	"github.com/sawpanic/condorrun/internal/execution"
	"github.com/sawpanic/condorrun/internal/infrastructure/db"
	monitor "github.com/sawpanic/condorrun/internal/interfaces/http"
	"github.com/sawpanic/condorrun/internal/market"
	"github.com/sawpanic/condorrun/internal/metrics"
	"github.com/sawpanic/condorrun/internal/portfolio"
	"github.com/sawpanic/condorrun/internal/pricing"
	"github.com/sawpanic/condorrun/internal/strategy"
	"github.com/sawpanic/condorrun/internal/trader"
)

// app holds everything a command may need; close releases it
type app struct {
	cfg      *config.Config
	metrics  *metrics.Registry
	hub      *monitor.Hub
	dbm      *db.Manager
	source   market.Source
	history  market.HistorySource
	builders []*strategy.Builder
	book     *portfolio.Book
	session  *execution.Session
	trader   *trader.Trader
	closers  []func() error
}

// appOptions tweak the wiring per command
type appOptions struct {
	prompter confirm.Prompter
	dryRun   bool
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{
		cfg:     cfg,
		metrics: metrics.NewRegistry(),
		hub:     monitor.NewHub(),
		book:    portfolio.NewBook(cfg.Account.InitialBalance),
	}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	dbm, err := db.NewManager(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.dbm = dbm
	a.closers = append(a.closers, dbm.Close)

	if err := a.buildSource(ctx); err != nil {
		return nil, err
	}

	engine := pricing.NewEngine(pricing.WithObserver(a.metrics.ObservePricing))
	shapes, err := cfg.Shapes()
	if err != nil {
		return nil, err
	}
	for _, shape := range shapes {
		b, err := strategy.NewBuilder(shape, engine)
		if err != nil {
			return nil, err
		}
		a.builders = append(a.builders, b)
	}

	prompter := opts.prompter
	if prompter == nil || cfg.AutoConfirm() {
		prompter = confirm.AutoPrompter{}
	}
	gate := confirm.NewGate(cfg.ConfirmSettings(), prompter, nil)

	a.session = execution.OpenSession(execution.PaperAuthenticator{}, cfg.Credentials())
	a.closers = append(a.closers, func() error { return a.session.Close(context.Background()) })
	gateway := execution.NewPaperGateway(a.session, cfg.Execution.EmergencyStopFile, cfg.Execution.Slippage)

	settings := trader.Settings{
		Watchlist:       cfg.Watchlist,
		Contracts:       cfg.Execution.Contracts,
		AutoPlace:       cfg.Execution.AutoPlaceTrades && !opts.dryRun,
		Workers:         cfg.Workers,
		HistoryBars:     cfg.Strategies.TrendFollowing.HistoryBars,
		StopFile:        cfg.Execution.EmergencyStopFile,
		PollingInterval: cfg.PollingInterval,
		Trend:           cfg.Trend(),
	}
	deps := trader.Deps{
		Source:    a.source,
		History:   a.history,
		Builders:  a.builders,
		Limits:    cfg.Limits(),
		Gate:      gate,
		Gateway:   gateway,
		Book:      a.book,
		Metrics:   a.metrics,
		Publisher: a.hub,
	}
	if repo := dbm.Repository(); repo != nil {
		deps.Decisions = repo.Decisions
		deps.Fills = repo.Fills
	}
	a.trader, err = trader.New(settings, deps)
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// buildSource layers cache, breaker and rate limit over the offline file.
// History comes from PostgreSQL when persistence is on.
func (a *app) buildSource(ctx context.Context) error {
	mc := a.cfg.Market
	offline, err := market.LoadOfflineSource(mc.File)
	if err != nil {
		return err
	}
	var src market.Source = offline
	a.history = offline

	if mc.RPS > 0 {
		src = market.NewLimitedSource(src, mc.RPS, mc.Burst)
	}
	if mc.Breaker.Enabled {
		s := breakers.DefaultSettings()
		s.ConsecutiveFailures = mc.Breaker.ConsecutiveFailures
		s.Timeout = mc.Breaker.Timeout
		src = market.NewBreakerSource("market", src, s, func(name, _, to string) {
			a.metrics.SetBreakerState(name, to)
		})
	}
	if mc.Cache.Enabled {
		client, err := market.NewRedisClient(ctx, market.RedisOptions{
			Addr:     mc.Cache.Addr,
			Password: mc.Cache.Password,
			DB:       mc.Cache.DB,
		})
		if err != nil {
			log.Warn().Err(err).Str("addr", mc.Cache.Addr).Msg("Quote cache unavailable, continuing without it")
		} else {
			a.closers = append(a.closers, client.Close)
			src = market.NewCachedSource(src, client, mc.Cache.TTL)
		}
	}
	if repo := a.dbm.Repository(); repo != nil {
		a.history = repo.History
	}
	a.source = src
	return nil
}

// server builds the monitor bound to this app
func (a *app) server() *monitor.Server {
	deps := monitor.Deps{
		Portfolio: a.book,
		Decisions: a.trader,
		Version:   version,
	}
	if repo := a.dbm.Repository(); repo != nil {
		deps.Journal = repo.Decisions
		deps.Database = a.dbm.Health()
	}
	cfg := monitor.DefaultServerConfig()
	cfg.Host = a.cfg.Monitor.Host
	cfg.Port = a.cfg.Monitor.Port
	return monitor.NewServer(cfg, deps, a.metrics, a.hub)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Debug().Err(err).Msg("Close failed")
		}
	}
	a.closers = nil
}

func authenticate(ctx context.Context, s *execution.Session) error {
	if err := s.Authenticate(ctx); err != nil {
		return fmt.Errorf("broker authentication failed: %w", err)
	}
	return nil
}
