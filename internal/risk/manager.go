package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/liveagent/internal/metrics"
	"github.com/sawpanic/liveagent/internal/notify"
	"github.com/sawpanic/liveagent/internal/position"
)

var hundred = decimal.NewFromInt(100)

// openPosition is one ledger entry. Size is a positive magnitude; direction
// is carried by side.
type openPosition struct {
	side       position.Side
	size       decimal.Decimal
	entryPrice decimal.Decimal
	value      decimal.Decimal
}

// ManagerConfig wires a Manager's collaborators.
type ManagerConfig struct {
	InitialCapital decimal.Decimal
	Limits         Limits
	Metrics        metrics.Collector
	Sink           notify.Sink

	// LedgerPath, when set, persists the capital ledger snapshot across
	// restarts so realized PnL from before a crash is not lost from risk
	// accounting. When empty, capital is reseeded from InitialCapital on
	// every start.
	LedgerPath string

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Manager is the single gate through which every position-opening decision
// passes, and the sole owner of the capital ledger. The mutex serializes
// check-then-act sequences: callers holding a trade open decision must call
// CanOpen and PositionOpened from the same goroutine or use Reserve-style
// external locking per symbol.
type Manager struct {
	mu sync.Mutex

	limits         Limits
	initialCapital decimal.Decimal
	currentCapital decimal.Decimal
	open           map[string]openPosition
	blocked        map[string]struct{}

	day    string // UTC day for dayPnL, YYYY-MM-DD
	dayPnL decimal.Decimal

	ledgerPath string
	metrics    metrics.Collector
	sink       notify.Sink
	now        func() time.Time
}

// NewManager creates a risk manager. InitialCapital must be positive. When a
// ledger snapshot exists at LedgerPath it takes precedence over
// InitialCapital for the current capital.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if !cfg.InitialCapital.IsPositive() {
		return nil, fmt.Errorf("risk manager: initial capital %s must be positive", cfg.InitialCapital)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewMemCollector()
	}
	if cfg.Sink == nil {
		cfg.Sink = notify.LogSink{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Manager{
		limits:         cfg.Limits,
		initialCapital: cfg.InitialCapital,
		currentCapital: cfg.InitialCapital,
		open:           make(map[string]openPosition),
		blocked:        make(map[string]struct{}),
		dayPnL:         decimal.Zero,
		ledgerPath:     cfg.LedgerPath,
		metrics:        cfg.Metrics,
		sink:           cfg.Sink,
		now:            cfg.Now,
	}
	m.day = m.utcDay()

	if err := m.loadLedger(); err != nil {
		return nil, err
	}

	m.metrics.SetExposure(0)
	return m, nil
}

// CanOpen reports whether opening size units of symbol at price stays within
// risk limits. It never mutates state: calling it N times with unchanged
// inputs returns the same result N times. Rejections are warnings, not
// errors.
func (m *Manager) CanOpen(symbol string, price, size decimal.Decimal) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, blocked := m.blocked[symbol]; blocked {
		log.Warn().Str("symbol", symbol).Msg("Symbol blocked pending manual review")
		return false
	}

	// Depleted or negative capital rejects everything; it also keeps the
	// exposure division below well-defined.
	if !m.currentCapital.IsPositive() {
		log.Warn().
			Str("current_capital", m.currentCapital.String()).
			Msg("Capital depleted, no new positions")
		return false
	}

	m.rollDayLocked()
	if m.dayPnL.IsNegative() && m.dayPnL.Neg().GreaterThanOrEqual(m.limits.DailyLossLimit) {
		log.Warn().
			Str("day_pnl", m.dayPnL.String()).
			Str("daily_loss_limit", m.limits.DailyLossLimit.String()).
			Msg("Daily loss limit reached")
		return false
	}

	if len(m.open) >= m.limits.MaxOpenTrades {
		log.Warn().
			Int("open", len(m.open)).
			Int("max_open_trades", m.limits.MaxOpenTrades).
			Msg("Maximum number of open trades reached")
		return false
	}

	value := price.Mul(size)
	if value.GreaterThan(m.limits.MaxPositionSize) {
		log.Warn().
			Str("symbol", symbol).
			Str("value", value.String()).
			Str("max_position_size", m.limits.MaxPositionSize.String()).
			Msg("Position size exceeds limit")
		return false
	}

	total := m.totalExposure().Add(value)
	exposurePct := total.Div(m.currentCapital).Mul(hundred)
	if exposurePct.GreaterThan(hundred) {
		log.Warn().
			Str("symbol", symbol).
			Str("exposure_percent", exposurePct.StringFixed(2)).
			Msg("Total exposure would exceed 100%")
		return false
	}

	return true
}

// PositionOpened unconditionally records a newly opened position. It does
// not re-validate against CanOpen; callers must have called CanOpen first.
// The separation lets the check and the commit straddle the actual order
// placement without the manager performing I/O itself.
func (m *Manager) PositionOpened(symbol string, side position.Side, price, size decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value := price.Mul(size)
	m.open[symbol] = openPosition{
		side:       side,
		size:       size,
		entryPrice: price,
		value:      value,
	}
	m.updateExposureLocked()
	m.metrics.TradeOpened(value.InexactFloat64())
	m.saveLedgerLocked()
}

// PositionClosed computes side-aware realized PnL, applies it to current
// capital, removes the position, and evaluates drawdown. Returns ok=false
// and logs at error severity if the symbol has no open position: a
// double-close is a caller bug, not a crash.
func (m *Manager) PositionClosed(symbol string, exitPrice decimal.Decimal) (decimal.Decimal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.open[symbol]
	if !ok {
		log.Error().Str("symbol", symbol).Msg("Attempted to close non-existent position")
		m.metrics.RecordError("position_close")
		return decimal.Zero, false
	}

	pnl := position.PnL(pos.side, pos.entryPrice, exitPrice, pos.size)
	m.currentCapital = m.currentCapital.Add(pnl)
	m.addDayPnLLocked(pnl)
	delete(m.open, symbol)
	m.updateExposureLocked()
	m.metrics.TradeClosed(pnl.InexactFloat64())

	drawdown := m.initialCapital.Sub(m.currentCapital).Div(m.initialCapital).Mul(hundred)
	if drawdown.GreaterThan(m.limits.MaxDrawdownPercent) {
		m.alertDrawdownLocked(drawdown)
	}
	m.saveLedgerLocked()

	log.Info().
		Str("symbol", symbol).
		Str("pnl", pnl.String()).
		Str("current_capital", m.currentCapital.String()).
		Msg("Position closed")

	return pnl, true
}

// CheckStopLoss reports whether the unrealized loss on symbol at
// currentPrice exceeds the per-position risk limit. Pure query apart from
// the stop-loss counter incremented when it fires.
func (m *Manager) CheckStopLoss(symbol string, currentPrice decimal.Decimal) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.open[symbol]
	if !ok {
		return false
	}

	unrealized := position.PnL(pos.side, pos.entryPrice, currentPrice, pos.size)
	if !unrealized.IsNegative() {
		return false
	}

	// With no capital left any losing position is stopped out; dividing by
	// a non-positive denominator would panic or flip the comparison.
	if !m.currentCapital.IsPositive() {
		m.metrics.StopLossTriggered()
		log.Warn().
			Str("symbol", symbol).
			Str("current_capital", m.currentCapital.String()).
			Msg("Stop loss triggered: capital depleted")
		return true
	}

	riskPct := unrealized.Neg().Div(m.currentCapital).Mul(hundred)
	if riskPct.GreaterThan(m.limits.PositionRiskPercent) {
		m.metrics.StopLossTriggered()
		log.Warn().
			Str("symbol", symbol).
			Str("unrealized_pnl", unrealized.String()).
			Str("risk_percent", riskPct.StringFixed(2)).
			Msg("Stop loss triggered")
		return true
	}
	return false
}

// Block marks a symbol as trading-blocked pending manual review; CanOpen
// rejects it until Unblock is called.
func (m *Manager) Block(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked[symbol] = struct{}{}
}

// Unblock clears a manual-review block.
func (m *Manager) Unblock(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocked, symbol)
}

// Blocked returns the symbols currently blocked for manual review.
func (m *Manager) Blocked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.blocked))
	for sym := range m.blocked {
		out = append(out, sym)
	}
	return out
}

// Restore rebuilds the open-position ledger from the persisted trade state
// set at startup. Capital is not derived from the trades; it comes from the
// ledger snapshot or the configured initial capital.
func (m *Manager) Restore(trades map[string]position.TradeState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.open = make(map[string]openPosition, len(trades))
	for sym, t := range trades {
		m.open[sym] = openPosition{
			side:       t.Side,
			size:       t.Size,
			entryPrice: t.EntryPrice,
			value:      t.Value(),
		}
	}
	m.updateExposureLocked()
}

// OpenCount reports the number of positions in the ledger.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// CurrentCapital returns the ledger's current capital.
func (m *Manager) CurrentCapital() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentCapital
}

// Exposure returns total open-position value as a percentage of current
// capital.
func (m *Manager) Exposure() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.currentCapital.IsPositive() {
		return decimal.Zero
	}
	return m.totalExposure().Div(m.currentCapital).Mul(hundred)
}

func (m *Manager) totalExposure() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range m.open {
		total = total.Add(pos.value)
	}
	return total
}

func (m *Manager) updateExposureLocked() {
	if !m.currentCapital.IsPositive() {
		m.metrics.SetExposure(0)
		return
	}
	pct := m.totalExposure().Div(m.currentCapital).Mul(hundred)
	m.metrics.SetExposure(pct.InexactFloat64())
}

func (m *Manager) addDayPnLLocked(pnl decimal.Decimal) {
	m.rollDayLocked()
	m.dayPnL = m.dayPnL.Add(pnl)
}

func (m *Manager) rollDayLocked() {
	today := m.utcDay()
	if today != m.day {
		m.day = today
		m.dayPnL = decimal.Zero
	}
}

func (m *Manager) utcDay() string {
	return m.now().UTC().Format("2006-01-02")
}

func (m *Manager) alertDrawdownLocked(drawdown decimal.Decimal) {
	msg := fmt.Sprintf("WARNING: Max drawdown exceeded! Current drawdown: %s%%", drawdown.StringFixed(2))
	log.Error().Str("drawdown_percent", drawdown.StringFixed(2)).Msg("Max drawdown exceeded")
	m.sink.SendAlert(context.Background(), msg)
}
