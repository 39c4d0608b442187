// Package recovery reconciles the agent's persisted belief about open
// positions with the exchange's authoritative report after a restart. It
// runs exactly once per process lifetime, before the trading loop may submit
// any order.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/liveagent/internal/dbhealth"
	"github.com/sawpanic/liveagent/internal/exchange"
	"github.com/sawpanic/liveagent/internal/metrics"
	"github.com/sawpanic/liveagent/internal/notify"
	"github.com/sawpanic/liveagent/internal/position"
	"github.com/sawpanic/liveagent/internal/state"
)

// State is the coordinator's lifecycle phase.
type State string

const (
	StateIdle        State = "idle"
	StateVerifying   State = "verifying_dependencies"
	StateReconciling State = "reconciling"
	StateReady       State = "ready"
	StateFailed      State = "failed"
)

// Coordinator verifies dependencies and reconciles local trade state against
// the exchange. One instance performs one pass; retry policy belongs to the
// caller that invokes it at boot.
type Coordinator struct {
	gateway exchange.Gateway
	db      dbhealth.Checker
	store   *state.Store
	sink    notify.Sink
	metrics metrics.Collector

	state        State
	inconsistent []string
	now          func() time.Time
}

// New creates an idle coordinator.
func New(gateway exchange.Gateway, db dbhealth.Checker, store *state.Store, sink notify.Sink, collector metrics.Collector) *Coordinator {
	if sink == nil {
		sink = notify.LogSink{}
	}
	if collector == nil {
		collector = metrics.NewMemCollector()
	}
	return &Coordinator{
		gateway: gateway,
		db:      db,
		store:   store,
		sink:    sink,
		metrics: collector,
		state:   StateIdle,
		now:     time.Now,
	}
}

// State returns the current lifecycle phase.
func (c *Coordinator) State() State {
	return c.state
}

// Inconsistent returns the symbols flagged for manual review during
// reconciliation. Callers feed these into the risk manager's block list.
func (c *Coordinator) Inconsistent() []string {
	out := make([]string, len(c.inconsistent))
	copy(out, c.inconsistent)
	return out
}

// Run performs the single recovery pass: VerifyingDependencies, then
// Reconciling, ending Ready or Failed. A coordinator that already ran
// returns an error immediately.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.state != StateIdle {
		return fmt.Errorf("recovery: already ran (state %s)", c.state)
	}

	c.state = StateVerifying
	if err := c.verifyDependencies(ctx); err != nil {
		c.state = StateFailed
		c.metrics.RecoveryCompleted(false)
		log.Error().Err(err).Msg("Recovery failed")
		return fmt.Errorf("recovery: verify dependencies: %w", err)
	}

	c.state = StateReconciling
	if err := c.reconcile(ctx); err != nil {
		c.state = StateFailed
		c.metrics.RecoveryCompleted(false)
		log.Error().Err(err).Msg("Recovery failed")
		return fmt.Errorf("recovery: reconcile trades: %w", err)
	}

	c.state = StateReady
	c.metrics.RecoveryCompleted(true)
	log.Info().Msg("System recovery completed successfully")
	return nil
}

// verifyDependencies confirms the exchange and the market-data database are
// reachable before any reconciliation is attempted. Any failure is terminal
// for this pass; no partial recovery.
func (c *Coordinator) verifyDependencies(ctx context.Context) error {
	if err := c.gateway.LoadMarkets(ctx); err != nil {
		return fmt.Errorf("load markets: %w", err)
	}

	balance, err := c.gateway.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetch balance: %w", err)
	}
	if len(balance) == 0 {
		return fmt.Errorf("fetch balance: empty response")
	}

	if status := c.db.Health(ctx); !status.Pass() {
		if status.Err != nil {
			return fmt.Errorf("database health check: %w", status.Err)
		}
		return fmt.Errorf("database health check: status %q", status.Status)
	}

	return nil
}

// reconcile diffs locally persisted trades against the exchange's non-zero
// positions, symbol by symbol. The exchange is the source of truth for the
// existence of a position; the local record is the source of truth for entry
// price once both agree a position exists.
func (c *Coordinator) reconcile(ctx context.Context) error {
	positions, err := c.gateway.FetchPositions(ctx)
	if err != nil {
		return fmt.Errorf("fetch positions: %w", err)
	}

	exchangePositions := make(map[string]exchange.Position, len(positions))
	for _, pos := range positions {
		if !pos.Size.IsZero() {
			exchangePositions[pos.Symbol] = pos
		}
	}

	// Local has it, exchange does not: closed while we were down, or
	// inconsistent.
	for symbol, trade := range c.store.Active() {
		if _, ok := exchangePositions[symbol]; ok {
			continue
		}
		log.Warn().Str("symbol", symbol).Msg("Trade not found in exchange positions")

		since := time.Unix(int64(trade.Timestamp), 0).UTC()
		fills, err := c.gateway.FetchMyTrades(ctx, symbol, since)
		if err != nil {
			return fmt.Errorf("fetch trades for %s: %w", symbol, err)
		}

		if closedBy(trade, fills) {
			log.Info().Str("symbol", symbol).Msg("Trade was closed while agent was down, removing from state")
			if err := c.store.Remove(symbol); err != nil {
				return fmt.Errorf("remove %s: %w", symbol, err)
			}
			continue
		}

		// No fill explains the disappearance. Leave the entry in place
		// for manual operator review; guessing here could double-count
		// or orphan capital.
		log.Error().Str("symbol", symbol).Msg("Inconsistent state, manual review needed")
		c.inconsistent = append(c.inconsistent, symbol)
		c.sink.SendAlert(ctx, fmt.Sprintf("Inconsistent state for %s: no closing fill found, manual review needed", symbol))
	}

	// Exchange has it, local does not: untracked position. The exchange
	// wins on existence; record it.
	for symbol, pos := range exchangePositions {
		if _, ok := c.store.Get(symbol); ok {
			continue
		}
		log.Warn().Str("symbol", symbol).Msg("Found unexpected position on exchange")

		side := position.SideLong
		if pos.Size.IsNegative() {
			side = position.SideShort
		}
		trade := position.TradeState{
			Symbol:     symbol,
			Side:       side,
			Size:       pos.Size.Abs(),
			EntryPrice: pos.EntryPrice,
			Timestamp:  float64(c.now().UTC().Unix()),
		}
		if err := c.store.Record(trade); err != nil {
			return fmt.Errorf("record untracked position %s: %w", symbol, err)
		}
	}

	return nil
}

// closedBy reports whether the fill history contains a closing execution for
// the trade: an opposite-side fill with matching size.
func closedBy(trade position.TradeState, fills []exchange.Fill) bool {
	closingSide := exchange.SideSell
	if trade.Side == position.SideShort {
		closingSide = exchange.SideBuy
	}
	for _, f := range fills {
		if f.Side == closingSide && f.Amount.Equal(trade.Size) {
			return true
		}
	}
	return false
}
