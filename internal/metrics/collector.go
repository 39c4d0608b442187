// Package metrics defines the observability capability injected into the
// risk manager, recovery coordinator and agent. Components never touch a
// process-global registry; tests substitute the in-memory collector.
package metrics

import "sync"

// Collector receives the core's observable events.
type Collector interface {
	// SetExposure records current total exposure as a percentage of
	// capital.
	SetExposure(percent float64)

	// StopLossTriggered counts a stop-loss condition firing.
	StopLossTriggered()

	// TradeOpened records an executed opening trade with its notional
	// volume.
	TradeOpened(volume float64)

	// TradeClosed records a closed trade with its realized PnL.
	TradeClosed(pnl float64)

	// RecordError counts an error by kind (trade_execution,
	// position_close, persistence, ...).
	RecordError(kind string)

	// RecoveryCompleted records the outcome of one recovery pass.
	RecoveryCompleted(success bool)

	// SetSystemHealth flips the overall health gauge.
	SetSystemHealth(healthy bool)
}

// MemCollector is an in-memory Collector for tests.
type MemCollector struct {
	mu           sync.Mutex
	Exposure     float64
	StopLosses   int
	TradesOpened int
	TradesClosed int
	Volume       float64
	RealizedPnL  []float64
	Errors       map[string]int
	Healthy      bool

	RecoverySuccesses int
	RecoveryFailures  int
}

// NewMemCollector returns an empty in-memory collector.
func NewMemCollector() *MemCollector {
	return &MemCollector{Errors: make(map[string]int), Healthy: true}
}

func (m *MemCollector) SetExposure(percent float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Exposure = percent
}

func (m *MemCollector) StopLossTriggered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StopLosses++
}

func (m *MemCollector) TradeOpened(volume float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TradesOpened++
	m.Volume += volume
}

func (m *MemCollector) TradeClosed(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TradesClosed++
	m.RealizedPnL = append(m.RealizedPnL, pnl)
}

func (m *MemCollector) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[kind]++
}

func (m *MemCollector) RecoveryCompleted(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.RecoverySuccesses++
	} else {
		m.RecoveryFailures++
	}
}

func (m *MemCollector) SetSystemHealth(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Healthy = healthy
}

// ErrorCount returns the recorded count for one error kind.
func (m *MemCollector) ErrorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Errors[kind]
}
