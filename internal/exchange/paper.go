package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PaperGateway simulates a venue in memory for sandbox runs: orders fill
// immediately at the posted mark price, positions net out, and fills are kept
// for reconciliation queries. No external calls.
type PaperGateway struct {
	mu        sync.Mutex
	balances  map[string]decimal.Decimal
	marks     map[string]decimal.Decimal
	positions map[string]*Position
	fills     []Fill
	now       func() time.Time
}

// NewPaperGateway creates a paper venue seeded with the given quote balance.
func NewPaperGateway(quoteCurrency string, balance decimal.Decimal) *PaperGateway {
	return &PaperGateway{
		balances:  map[string]decimal.Decimal{quoteCurrency: balance},
		marks:     make(map[string]decimal.Decimal),
		positions: make(map[string]*Position),
		now:       time.Now,
	}
}

// SetMark posts the simulated market price for a symbol. Orders and tickers
// for symbols without a mark fail, mirroring an unknown instrument.
func (p *PaperGateway) SetMark(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[symbol] = price
}

// SeedPosition installs an open position directly, bypassing order flow.
// Used to simulate positions opened outside the agent (manual trades).
func (p *PaperGateway) SeedPosition(symbol string, size, entryPrice decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions[symbol] = &Position{Symbol: symbol, Size: size, EntryPrice: entryPrice}
}

// SeedFill appends a historical fill, used to simulate executions that
// happened while the agent was down.
func (p *PaperGateway) SeedFill(f Fill) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fills = append(p.fills, f)
}

func (p *PaperGateway) LoadMarkets(ctx context.Context) error {
	return ctx.Err()
}

func (p *PaperGateway) FetchBalance(ctx context.Context) (map[string]decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]decimal.Decimal, len(p.balances))
	for cur, v := range p.balances {
		out[cur] = v
	}
	return out, nil
}

func (p *PaperGateway) FetchPositions(ctx context.Context) ([]Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	return out, nil
}

func (p *PaperGateway) FetchPosition(ctx context.Context, symbol string) (*Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[symbol]
	if !ok || pos.Size.IsZero() {
		return nil, nil
	}
	cp := *pos
	return &cp, nil
}

func (p *PaperGateway) FetchMyTrades(ctx context.Context, symbol string, since time.Time) ([]Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Fill
	for _, f := range p.fills {
		if f.Symbol == symbol && !f.Timestamp.Before(since) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (p *PaperGateway) FetchTicker(ctx context.Context, symbol string) (Ticker, error) {
	if err := ctx.Err(); err != nil {
		return Ticker{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	mark, ok := p.marks[symbol]
	if !ok {
		return Ticker{}, fmt.Errorf("paper: no mark price for %s", symbol)
	}
	return Ticker{Symbol: symbol, Last: mark}, nil
}

// CreateOrder fills immediately at the mark price for market orders, or at
// the requested price for limit orders.
func (p *PaperGateway) CreateOrder(ctx context.Context, symbol string, typ OrderType, side OrderSide, amount decimal.Decimal, price decimal.Decimal) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("paper: order amount %s must be positive", amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fillPrice := price
	if typ == OrderMarket || fillPrice.IsZero() {
		mark, ok := p.marks[symbol]
		if !ok {
			return nil, fmt.Errorf("paper: no mark price for %s", symbol)
		}
		fillPrice = mark
	}

	signed := amount
	if side == SideSell {
		signed = amount.Neg()
	}

	pos, ok := p.positions[symbol]
	if !ok {
		p.positions[symbol] = &Position{Symbol: symbol, Size: signed, EntryPrice: fillPrice}
	} else {
		newSize := pos.Size.Add(signed)
		switch {
		case newSize.IsZero():
			delete(p.positions, symbol)
		case newSize.Sign() != pos.Size.Sign():
			// Flipped through flat; the remainder is a fresh position.
			pos.Size = newSize
			pos.EntryPrice = fillPrice
		default:
			pos.Size = newSize
		}
	}

	order := &Order{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Type:      typ,
		Amount:    amount,
		Price:     fillPrice,
		Timestamp: p.now(),
	}
	p.fills = append(p.fills, Fill{
		Symbol:    symbol,
		Side:      side,
		Amount:    amount,
		Price:     fillPrice,
		Timestamp: order.Timestamp,
	})

	log.Debug().
		Str("symbol", symbol).
		Str("side", string(side)).
		Str("amount", amount.String()).
		Str("price", fillPrice.String()).
		Msg("Paper order filled")

	return order, nil
}
