// Package exchange defines the capability surface the agent needs from a
// trading venue, plus a paper implementation for sandbox runs and a guarded
// wrapper that adds a circuit breaker and rate limiting in front of a live
// venue client.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType selects market or limit execution.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// OrderSide is the venue-level side of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// Position is a venue-reported open position. Size is signed: positive for
// long, negative for short.
type Position struct {
	Symbol     string
	Size       decimal.Decimal
	EntryPrice decimal.Decimal
}

// Fill is one historical execution returned by FetchMyTrades.
type Fill struct {
	Symbol    string
	Side      OrderSide
	Amount    decimal.Decimal
	Price     decimal.Decimal
	Timestamp time.Time
}

// Ticker carries the last traded price for a symbol.
type Ticker struct {
	Symbol string
	Last   decimal.Decimal
}

// Order is a normalized view of a placed order.
type Order struct {
	ID        string
	Symbol    string
	Side      OrderSide
	Type      OrderType
	Amount    decimal.Decimal
	Price     decimal.Decimal
	Timestamp time.Time
}

// Gateway is the abstract exchange capability consumed by the recovery
// coordinator and the trading loop. Implementations perform network I/O; the
// risk manager and state store never touch this interface directly.
type Gateway interface {
	// LoadMarkets verifies the venue is reachable and instrument metadata
	// can be fetched.
	LoadMarkets(ctx context.Context) error

	// FetchBalance returns account balances by currency. An empty map is
	// treated by callers as a failed verification.
	FetchBalance(ctx context.Context) (map[string]decimal.Decimal, error)

	// FetchPositions returns all open positions, including zero-size
	// entries some venues report; callers filter those out.
	FetchPositions(ctx context.Context) ([]Position, error)

	// FetchPosition returns the position for one symbol, or nil if flat.
	FetchPosition(ctx context.Context, symbol string) (*Position, error)

	// FetchMyTrades returns the account's fills for symbol since the given
	// time.
	FetchMyTrades(ctx context.Context, symbol string, since time.Time) ([]Fill, error)

	// FetchTicker returns the current market price for symbol.
	FetchTicker(ctx context.Context, symbol string) (Ticker, error)

	// CreateOrder places an order. Price is ignored for market orders.
	CreateOrder(ctx context.Context, symbol string, typ OrderType, side OrderSide, amount decimal.Decimal, price decimal.Decimal) (*Order, error)
}
