// Package agent orchestrates the trading loop around the core: recovery at
// boot, risk-gated trade execution, stop-loss sweeps and clean shutdown. All
// exchange I/O happens here, outside the risk manager's lock.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/liveagent/internal/dbhealth"
	"github.com/sawpanic/liveagent/internal/exchange"
	"github.com/sawpanic/liveagent/internal/metrics"
	"github.com/sawpanic/liveagent/internal/notify"
	"github.com/sawpanic/liveagent/internal/position"
	"github.com/sawpanic/liveagent/internal/recovery"
	"github.com/sawpanic/liveagent/internal/risk"
	"github.com/sawpanic/liveagent/internal/state"
)

// ErrRiskRejected marks a trade request declined by the risk manager. An
// expected control-flow outcome, not a failure.
var ErrRiskRejected = errors.New("trade rejected by risk limits")

// Config tunes boot behavior.
type Config struct {
	// RecoveryAttempts bounds how many recovery passes Startup tries
	// before declaring the agent unable to start.
	RecoveryAttempts int

	// RecoveryBackoff is the initial delay between recovery attempts;
	// it doubles per attempt.
	RecoveryBackoff time.Duration
}

// DefaultConfig returns boot defaults.
func DefaultConfig() Config {
	return Config{
		RecoveryAttempts: 3,
		RecoveryBackoff:  5 * time.Second,
	}
}

// Agent ties the gateway, state store and risk manager into one
// single-writer trading loop.
type Agent struct {
	cfg     Config
	gateway exchange.Gateway
	db      dbhealth.Checker
	store   *state.Store
	risk    *risk.Manager
	sink    notify.Sink
	metrics metrics.Collector
}

// New assembles an agent from its collaborators.
func New(cfg Config, gateway exchange.Gateway, db dbhealth.Checker, store *state.Store, riskMgr *risk.Manager, sink notify.Sink, collector metrics.Collector) *Agent {
	if sink == nil {
		sink = notify.LogSink{}
	}
	if collector == nil {
		collector = metrics.NewMemCollector()
	}
	return &Agent{
		cfg:     cfg,
		gateway: gateway,
		db:      db,
		store:   store,
		risk:    riskMgr,
		sink:    sink,
		metrics: collector,
	}
}

// Startup runs crash recovery, retrying with bounded exponential backoff,
// then rebuilds the risk ledger from the reconciled trade state. Trading
// must not begin until Startup returns nil.
func (a *Agent) Startup(ctx context.Context) error {
	var lastErr error
	backoff := a.cfg.RecoveryBackoff

	attempts := a.cfg.RecoveryAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		coord := recovery.New(a.gateway, a.db, a.store, a.sink, a.metrics)
		if err := coord.Run(ctx); err != nil {
			lastErr = err
			log.Error().Err(err).Int("attempt", attempt).Msg("Recovery attempt failed")
			a.metrics.RecordError("recovery")

			if attempt < attempts {
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return ctx.Err()
				}
				backoff *= 2
			}
			continue
		}

		a.risk.Restore(a.store.Active())
		for _, symbol := range coord.Inconsistent() {
			a.risk.Block(symbol)
		}

		a.metrics.SetSystemHealth(true)
		log.Info().
			Int("open_positions", a.store.Len()).
			Strs("blocked", coord.Inconsistent()).
			Msg("Agent startup completed")
		return nil
	}

	a.metrics.SetSystemHealth(false)
	return fmt.Errorf("agent startup: recovery failed after %d attempts: %w", attempts, lastErr)
}

// ExecuteTrade opens a position: risk check, order placement, durable
// record, ledger commit, in that strict order. A zero limitPrice places a market
// order priced from the ticker for the risk check.
func (a *Agent) ExecuteTrade(ctx context.Context, symbol string, side position.Side, size, limitPrice decimal.Decimal) error {
	price := limitPrice
	if price.IsZero() {
		ticker, err := a.gateway.FetchTicker(ctx, symbol)
		if err != nil {
			a.metrics.RecordError("trade_execution")
			return fmt.Errorf("execute trade %s: fetch ticker: %w", symbol, err)
		}
		price = ticker.Last
	}

	if !a.risk.CanOpen(symbol, price, size) {
		log.Warn().Str("symbol", symbol).Msg("Trade rejected: risk limits exceeded")
		return ErrRiskRejected
	}

	orderType := exchange.OrderLimit
	if limitPrice.IsZero() {
		orderType = exchange.OrderMarket
	}
	orderSide := exchange.SideBuy
	if side == position.SideShort {
		orderSide = exchange.SideSell
	}

	order, err := a.gateway.CreateOrder(ctx, symbol, orderType, orderSide, size, limitPrice)
	if err != nil {
		a.metrics.RecordError("trade_execution")
		return fmt.Errorf("execute trade %s: create order: %w", symbol, err)
	}

	trade := position.TradeState{
		Symbol:     symbol,
		Side:       side,
		Size:       size,
		EntryPrice: order.Price,
		Timestamp:  float64(order.Timestamp.UTC().Unix()),
	}
	if err := a.store.Record(trade); err != nil {
		// The order is live but untracked; surface loudly. The next
		// recovery pass will re-adopt it from the exchange.
		a.metrics.RecordError("persistence")
		a.sink.SendAlert(ctx, fmt.Sprintf("Failed to persist open trade %s; will be re-adopted on next recovery", symbol))
		return fmt.Errorf("execute trade %s: record state: %w", symbol, err)
	}
	a.risk.PositionOpened(symbol, side, order.Price, size)

	log.Info().
		Str("symbol", symbol).
		Str("side", string(side)).
		Str("size", size.String()).
		Str("entry_price", order.Price.String()).
		Msg("Trade executed")
	return nil
}

// ClosePosition closes a tracked position with a market order and settles
// realized PnL through the risk manager.
func (a *Agent) ClosePosition(ctx context.Context, symbol string) (decimal.Decimal, error) {
	trade, ok := a.store.Get(symbol)
	if !ok {
		return decimal.Zero, fmt.Errorf("close position %s: not tracked", symbol)
	}

	closeSide := exchange.SideSell
	if trade.Side == position.SideShort {
		closeSide = exchange.SideBuy
	}

	order, err := a.gateway.CreateOrder(ctx, symbol, exchange.OrderMarket, closeSide, trade.Size, decimal.Zero)
	if err != nil {
		a.metrics.RecordError("position_close")
		return decimal.Zero, fmt.Errorf("close position %s: create order: %w", symbol, err)
	}

	// Settle the ledger before touching the durable record. If the ledger
	// has no entry the record stays in place for the next recovery pass to
	// reconcile instead of the PnL vanishing silently.
	pnl, ok := a.risk.PositionClosed(symbol, order.Price)
	if !ok {
		return decimal.Zero, fmt.Errorf("close position %s: ledger had no open entry", symbol)
	}

	if err := a.store.Remove(symbol); err != nil {
		a.metrics.RecordError("persistence")
		return pnl, fmt.Errorf("close position %s: remove state: %w", symbol, err)
	}
	return pnl, nil
}

// CheckStops sweeps all tracked positions and closes any whose unrealized
// loss breaches the per-position risk limit.
func (a *Agent) CheckStops(ctx context.Context) {
	for symbol := range a.store.Active() {
		ticker, err := a.gateway.FetchTicker(ctx, symbol)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("Stop check: failed to fetch ticker")
			a.metrics.RecordError("stop_check")
			continue
		}

		if a.risk.CheckStopLoss(symbol, ticker.Last) {
			if _, err := a.ClosePosition(ctx, symbol); err != nil {
				log.Error().Err(err).Str("symbol", symbol).Msg("Stop check: failed to close position")
			}
		}
	}
}

// Shutdown closes all tracked positions. Callers remain responsible for
// closing gateway and database handles.
func (a *Agent) Shutdown(ctx context.Context) error {
	var firstErr error
	for symbol := range a.store.Active() {
		if _, err := a.ClosePosition(ctx, symbol); err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("Shutdown: failed to close position")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	log.Info().Msg("Agent shutdown completed")
	return firstErr
}
