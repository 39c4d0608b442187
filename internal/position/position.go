// Package position defines the core trade domain types shared by the state
// store, recovery coordinator and risk manager. All monetary values use
// shopspring/decimal, never float64 for money.
package position

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side is the direction of a position. Size is always a positive magnitude;
// direction lives here, never in the sign of the size.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// Opposite returns the side that closes a position held on s.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// TradeState is the durable record of one open position. At most one
// TradeState exists per symbol at any time. Values are constructed once and
// never mutated in place.
type TradeState struct {
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Size       decimal.Decimal `json:"size"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Timestamp  float64         `json:"timestamp"` // seconds since epoch, UTC
}

// Validate checks the TradeState invariants: non-empty symbol, known side,
// size > 0, entry price > 0.
func (t TradeState) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("trade state: empty symbol")
	}
	if !t.Side.Valid() {
		return fmt.Errorf("trade state %s: invalid side %q", t.Symbol, t.Side)
	}
	if !t.Size.IsPositive() {
		return fmt.Errorf("trade state %s: size %s must be positive", t.Symbol, t.Size)
	}
	if !t.EntryPrice.IsPositive() {
		return fmt.Errorf("trade state %s: entry price %s must be positive", t.Symbol, t.EntryPrice)
	}
	return nil
}

// Value returns the notional value of the position (size × entry price).
func (t TradeState) Value() decimal.Decimal {
	return t.Size.Mul(t.EntryPrice)
}

// PnL computes the side-aware realized or unrealized profit for a position:
// (exit - entry) * size for longs, (entry - exit) * size for shorts.
func PnL(side Side, entry, exit, size decimal.Decimal) decimal.Decimal {
	if side == SideShort {
		return entry.Sub(exit).Mul(size)
	}
	return exit.Sub(entry).Mul(size)
}
