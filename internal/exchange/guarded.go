package exchange

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// GuardConfig tunes the circuit breaker and rate limiter wrapped around a
// live venue client.
type GuardConfig struct {
	Name                string        `yaml:"name"`
	MaxRequests         uint32        `yaml:"max_requests"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	RequestsPerSecond   float64       `yaml:"requests_per_second"`
	Burst               int           `yaml:"burst"`
}

// DefaultGuardConfig returns conservative defaults for a venue REST API.
func DefaultGuardConfig(name string) GuardConfig {
	return GuardConfig{
		Name:                name,
		MaxRequests:         3,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
		RequestsPerSecond:   10,
		Burst:               5,
	}
}

// GuardedGateway wraps a Gateway with a circuit breaker and a token-bucket
// rate limiter. Every call waits for limiter capacity first, then runs under
// the breaker; an open breaker fails fast without hitting the venue.
type GuardedGateway struct {
	inner   Gateway
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewGuardedGateway wraps inner with the guard described by config.
func NewGuardedGateway(inner Gateway, config GuardConfig) *GuardedGateway {
	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("venue", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Exchange circuit breaker state change")
		},
	}

	return &GuardedGateway{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
	}
}

func (g *GuardedGateway) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return g.breaker.Execute(fn)
}

func (g *GuardedGateway) LoadMarkets(ctx context.Context) error {
	_, err := g.execute(ctx, func() (interface{}, error) {
		return nil, g.inner.LoadMarkets(ctx)
	})
	return err
}

func (g *GuardedGateway) FetchBalance(ctx context.Context) (map[string]decimal.Decimal, error) {
	v, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.FetchBalance(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]decimal.Decimal), nil
}

func (g *GuardedGateway) FetchPositions(ctx context.Context) ([]Position, error) {
	v, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.FetchPositions(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Position), nil
}

func (g *GuardedGateway) FetchPosition(ctx context.Context, symbol string) (*Position, error) {
	v, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.FetchPosition(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	pos, _ := v.(*Position)
	return pos, nil
}

func (g *GuardedGateway) FetchMyTrades(ctx context.Context, symbol string, since time.Time) ([]Fill, error) {
	v, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.FetchMyTrades(ctx, symbol, since)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Fill), nil
}

func (g *GuardedGateway) FetchTicker(ctx context.Context, symbol string) (Ticker, error) {
	v, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.FetchTicker(ctx, symbol)
	})
	if err != nil {
		return Ticker{}, err
	}
	return v.(Ticker), nil
}

func (g *GuardedGateway) CreateOrder(ctx context.Context, symbol string, typ OrderType, side OrderSide, amount decimal.Decimal, price decimal.Decimal) (*Order, error) {
	v, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.CreateOrder(ctx, symbol, typ, side, amount, price)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Order), nil
}
