package trader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/condorrun/internal/confirm"
	"github.com/sawpanic/condorrun/internal/execution"
	"github.com/sawpanic/condorrun/internal/market"
	"github.com/sawpanic/condorrun/internal/metrics"
	"github.com/sawpanic/condorrun/internal/persistence"
	"github.com/sawpanic/condorrun/internal/portfolio"
	"github.com/sawpanic/condorrun/internal/risk"
	"github.com/sawpanic/condorrun/internal/strategy"
)

// symbolResult is filled by exactly one worker
type symbolResult struct {
	observed  *observation
	quotes    []*strategy.Quote
	signal    *strategy.TrendSignal
	decisions []Decision
	warnings  []string
}

func (r *symbolResult) decide(symbol, strat string, code Code, detail string) {
	r.decisions = append(r.decisions, Decision{Symbol: symbol, Strategy: strat, Code: code, Detail: detail})
}

// RunCycle makes one pass over the watchlist. Per-symbol failures become
// decisions and warnings; the returned error is reserved for cancellation
// and the emergency stop.
func (t *Trader) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{ID: uuid.New().String(), StartedAt: t.now().UTC()}
	var timer *metrics.CycleTimer
	if t.deps.Metrics != nil {
		timer = t.deps.Metrics.StartCycle()
	}
	result := metrics.CycleCompleted

	err := t.runCycle(ctx, &report)
	switch {
	case err != nil:
		result = metrics.CycleError
	case !report.MarketSafe:
		result = metrics.CycleMarketUnsafe
	}

	t.finish(ctx, &report)
	report.FinishedAt = t.now().UTC()
	if timer != nil {
		timer.Stop(result)
	}

	log.Info().
		Str("cycle_id", report.ID).
		Bool("market_safe", report.MarketSafe).
		Int("quotes", len(report.Quotes)).
		Int("decisions", len(report.Decisions)).
		Int("warnings", len(report.Warnings)).
		Float64("net_value", report.Portfolio.NetValue).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Cycle finished")
	return report, err
}

func (t *Trader) runCycle(ctx context.Context, report *CycleReport) error {
	if execution.EmergencyStopActive(t.settings.StopFile) {
		t.decide(report, Decision{Code: CodeEmergencyStop, Detail: t.settings.StopFile})
		return execution.ErrEmergencyStop
	}

	snap, err := t.deps.Source.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report.Warnings = append(report.Warnings, fmt.Sprintf("market snapshot: %v", err))
		t.decide(report, Decision{Code: CodeNoMarketData, Detail: err.Error()})
		return nil
	}
	report.Snapshot = snap

	safe, reason := risk.MarketCheck(snap)
	report.MarketSafe = safe
	if !safe {
		log.Warn().
			Str("reason", string(reason)).
			Float64("vix", snap.VolatilityIndex).
			Float64("index_change", snap.IndexChange).
			Msg("Market conditions unsafe, skipping cycle")
		t.decide(report, Decision{Code: Code(reason)})
		return t.markPositions(ctx, report, nil)
	}

	results, err := t.analyze(ctx)
	if err != nil {
		return err
	}

	var candidates []*strategy.Quote
	observed := make(map[string]observation, len(results))
	for i, sym := range t.settings.Watchlist {
		r := results[i]
		if r.observed != nil {
			observed[sym] = *r.observed
		}
		for _, d := range r.decisions {
			t.decide(report, d)
		}
		report.Warnings = append(report.Warnings, r.warnings...)
		report.Quotes = append(report.Quotes, r.quotes...)
		candidates = append(candidates, r.quotes...)
		if r.signal != nil {
			if report.Signals == nil {
				report.Signals = make(map[string]strategy.TrendSignal)
			}
			report.Signals[sym] = *r.signal
		}
	}

	// risk sees this cycle's marks
	if err := t.markPositions(ctx, report, observed); err != nil {
		return err
	}

	for _, q := range candidates {
		if err := t.process(ctx, report, q); err != nil {
			return err
		}
	}
	return nil
}

// analyze prices every symbol on a bounded pool. Results keep watchlist order.
func (t *Trader) analyze(ctx context.Context) ([]symbolResult, error) {
	results := make([]symbolResult, len(t.settings.Watchlist))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.settings.Workers)
	for i, sym := range t.settings.Watchlist {
		i, sym := i, sym
		g.Go(func() error {
			t.analyzeSymbol(gctx, sym, &results[i])
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (t *Trader) analyzeSymbol(ctx context.Context, sym string, r *symbolResult) {
	spot, err := t.deps.Source.Spot(ctx, sym)
	if err != nil {
		r.dataFailure(sym, "spot", err)
		return
	}
	iv, err := t.deps.Source.ImpliedVolatility(ctx, sym)
	if err != nil {
		r.dataFailure(sym, "implied volatility", err)
		return
	}
	r.observed = &observation{spot: spot, iv: iv}

	for _, b := range t.deps.Builders {
		if !b.Enabled() {
			continue
		}
		kind := string(b.Shape().Kind)
		out, err := b.Analyze(sym, spot, iv)
		if err != nil {
			log.Warn().Err(err).Str("symbol", sym).Str("strategy", kind).Msg("Strategy analysis failed")
			r.warnings = append(r.warnings, err.Error())
			r.decide(sym, kind, CodePricingError, err.Error())
			continue
		}
		if out.Quote == nil {
			r.decide(sym, kind, Code(out.Reason), fmt.Sprintf("credit %.4f", out.Credit))
			continue
		}
		r.quotes = append(r.quotes, out.Quote)
	}

	if t.deps.History == nil || !t.settings.Trend.Enabled {
		return
	}
	series, err := t.deps.History.Series(ctx, sym, t.settings.HistoryBars)
	if err != nil {
		if !errors.Is(err, market.ErrNoData) && ctx.Err() == nil {
			r.warnings = append(r.warnings, fmt.Sprintf("%s history: %v", sym, err))
		}
		return
	}
	sig := strategy.EvaluateTrend(series, t.settings.Trend)
	r.signal = &sig
	switch sig.Direction {
	case strategy.Long:
		r.decide(sym, "trend_following", CodeTrendLong, trendDetail(sig))
	case strategy.Short:
		r.decide(sym, "trend_following", CodeTrendShort, trendDetail(sig))
	}
}

func (r *symbolResult) dataFailure(sym, what string, err error) {
	if errors.Is(err, market.ErrNoData) {
		r.decide(sym, "", CodeNoData, what)
		return
	}
	log.Warn().Err(err).Str("symbol", sym).Msgf("Failed to fetch %s", what)
	r.warnings = append(r.warnings, fmt.Sprintf("%s %s: %v", sym, what, err))
	r.decide(sym, "", CodeDataError, err.Error())
}

func trendDetail(s strategy.TrendSignal) string {
	return fmt.Sprintf("price %.2f stop %.2f target %.2f rsi %.1f", s.Price, s.StopLoss, s.TakeProfit, s.RSI)
}

// process takes one quote through risk, confirmation, execution and settlement
func (t *Trader) process(ctx context.Context, report *CycleReport, q *strategy.Quote) error {
	kind := string(q.Kind)
	base := Decision{Symbol: q.Symbol, Strategy: kind, QuoteID: q.ID}
	decide := func(code Code, detail string) {
		d := base
		d.Code, d.Detail = code, detail
		t.decide(report, d)
	}

	trade := risk.TradeFromQuote(q, t.settings.Contracts)
	res := t.deps.Limits.ValidateTrade(trade, t.deps.Book.Snapshot().Portfolio)
	if !res.Approved {
		decide(Code(res.Reason), fmt.Sprintf("max loss %.2f", trade.MaxLoss*float64(trade.Quantity)))
		return nil
	}

	if !t.settings.AutoPlace {
		decide(CodeRecommended, Summary(q))
		return nil
	}

	state, err := t.deps.Gate.Verify(ctx, Summary(q))
	if t.deps.Metrics != nil {
		t.deps.Metrics.RecordConfirmation(string(state))
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		decide(CodeConfirmReject, err.Error())
		return nil
	}
	switch state {
	case confirm.Approved:
	case confirm.TimedOut:
		decide(CodeConfirmTimeout, "")
		return nil
	default:
		decide(CodeConfirmReject, "")
		return nil
	}

	order := execution.OrderFromQuote(q, t.settings.Contracts)
	fill, err := t.deps.Gateway.Execute(ctx, order)
	if t.deps.Metrics != nil {
		t.deps.Metrics.RecordFill(string(fill.Status))
	}
	switch {
	case errors.Is(err, execution.ErrEmergencyStop):
		decide(CodeEmergencyStop, order.ID)
		return err
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s %s execute: %v", q.Symbol, kind, err))
		decide(CodeExecutionError, err.Error())
		return nil
	case fill.Status != execution.Filled:
		decide(CodeOrderRejected, fill.Message)
		return nil
	}

	if _, err := t.deps.Book.Settle(portfolio.Settlement{
		TradeID:    order.ID,
		Symbol:     q.Symbol,
		Strategy:   kind,
		Quantity:   fill.Quantity,
		Credit:     fill.FilledPrice,
		MaxLoss:    q.Metrics.MaxLoss,
		Strikes:    q.Strikes.Ladder(),
		Expiration: order.Expiration,
		At:         fill.At,
	}); err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s settle: %v", q.Symbol, err))
		decide(CodeSettleError, err.Error())
		return nil
	}
	t.journalFill(ctx, report, q, order, fill)
	decide(CodeFilled, fmt.Sprintf("order %s at %.2f", order.ID, fill.FilledPrice))
	return nil
}

// Summary is the text shown to the operator before confirmation
func Summary(q *strategy.Quote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%d DTE, %s)\n", q.Symbol, q.Kind, q.ExpirationDays, q.Model)
	fmt.Fprintf(&b, "  Spot %.2f  IV %.1f%%\n", q.Spot, q.ImpliedVol*100)
	fmt.Fprintf(&b, "  Strikes %.2f / %.2f / %.2f / %.2f\n",
		q.Strikes.LongPut, q.Strikes.ShortPut, q.Strikes.ShortCall, q.Strikes.LongCall)
	fmt.Fprintf(&b, "  Credit %.4f  Max loss %.4f  POP %.1f%%  R/R %.3f",
		q.Metrics.NetCredit, q.Metrics.MaxLoss, q.Metrics.ProbabilityOfProfit*100, q.Metrics.RiskReward)
	return b.String()
}

func (t *Trader) decide(report *CycleReport, d Decision) {
	d.CycleID = report.ID
	if d.At.IsZero() {
		d.At = t.now().UTC()
	}
	report.Decisions = append(report.Decisions, d)

	if t.deps.Metrics != nil {
		t.deps.Metrics.RecordDecision(d.Strategy, string(d.Code))
	}
	if t.deps.Publisher != nil {
		t.deps.Publisher.Publish(d)
	}
}

func (t *Trader) journalFill(ctx context.Context, report *CycleReport, q *strategy.Quote, o execution.Order, f execution.Fill) {
	if t.deps.Fills == nil {
		return
	}
	legs := make(map[string]interface{}, len(o.Legs))
	for _, l := range o.Legs {
		legs[string(l.Name)] = l.Strike
	}
	err := t.deps.Fills.Insert(ctx, persistence.Fill{
		OrderID:     o.ID,
		QuoteID:     q.ID,
		Timestamp:   f.At,
		Symbol:      q.Symbol,
		Strategy:    string(q.Kind),
		Status:      string(f.Status),
		Quantity:    f.Quantity,
		FilledPrice: f.FilledPrice,
		MaxLoss:     q.Metrics.MaxLoss,
		Legs:        legs,
	})
	if err != nil {
		log.Warn().Err(err).Str("order_id", o.ID).Msg("Failed to journal fill")
		report.Warnings = append(report.Warnings, fmt.Sprintf("journal fill %s: %v", o.ID, err))
	}
}

// finish records the valuation and journals the cycle's decisions
func (t *Trader) finish(ctx context.Context, report *CycleReport) {
	v := t.deps.Book.RecordValuation()
	report.Portfolio = t.deps.Book.Snapshot()
	if t.deps.Metrics != nil {
		t.deps.Metrics.NetValue.Set(v.Value)
	}
	t.remember(report.Decisions)

	if t.deps.Decisions == nil || len(report.Decisions) == 0 {
		return
	}
	rows := make([]persistence.Decision, 0, len(report.Decisions))
	for _, d := range report.Decisions {
		row := persistence.Decision{
			CycleID:   d.CycleID,
			Timestamp: d.At,
			Symbol:    d.Symbol,
			Strategy:  d.Strategy,
			Code:      string(d.Code),
			Detail:    d.Detail,
		}
		if d.QuoteID != "" {
			id := d.QuoteID
			row.QuoteID = &id
		}
		rows = append(rows, row)
	}
	// journal even when the cycle was cancelled
	jctx := context.WithoutCancel(ctx)
	if err := t.deps.Decisions.InsertBatch(jctx, rows); err != nil {
		log.Warn().Err(err).Str("cycle_id", report.ID).Msg("Failed to journal decisions")
		report.Warnings = append(report.Warnings, fmt.Sprintf("journal decisions: %v", err))
	}
}
