// Package risk gates every position-opening decision and owns the in-memory
// capital ledger. It performs no I/O on the trading path; exchange calls
// happen in the surrounding orchestration with results fed back in.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Limits is the immutable risk configuration loaded once at startup.
type Limits struct {
	MaxPositionSize     decimal.Decimal // max notional of any single position
	MaxDrawdownPercent  decimal.Decimal // max allowable drawdown before alerting
	DailyLossLimit      decimal.Decimal // max realized loss per UTC day
	MaxOpenTrades       int             // max concurrent open positions
	PositionRiskPercent decimal.Decimal // per-position risk as % of capital
}

// NewLimits validates and returns a Limits value. All decimal fields must be
// positive and MaxOpenTrades must be non-negative; construction fails
// otherwise.
func NewLimits(maxPositionSize, maxDrawdownPercent, dailyLossLimit decimal.Decimal, maxOpenTrades int, positionRiskPercent decimal.Decimal) (Limits, error) {
	if !maxPositionSize.IsPositive() {
		return Limits{}, fmt.Errorf("risk limits: max_position_size %s must be positive", maxPositionSize)
	}
	if !maxDrawdownPercent.IsPositive() {
		return Limits{}, fmt.Errorf("risk limits: max_drawdown_percent %s must be positive", maxDrawdownPercent)
	}
	if !dailyLossLimit.IsPositive() {
		return Limits{}, fmt.Errorf("risk limits: daily_loss_limit %s must be positive", dailyLossLimit)
	}
	if maxOpenTrades < 0 {
		return Limits{}, fmt.Errorf("risk limits: max_open_trades %d must be >= 0", maxOpenTrades)
	}
	if !positionRiskPercent.IsPositive() {
		return Limits{}, fmt.Errorf("risk limits: position_risk_percent %s must be positive", positionRiskPercent)
	}
	return Limits{
		MaxPositionSize:     maxPositionSize,
		MaxDrawdownPercent:  maxDrawdownPercent,
		DailyLossLimit:      dailyLossLimit,
		MaxOpenTrades:       maxOpenTrades,
		PositionRiskPercent: positionRiskPercent,
	}, nil
}
