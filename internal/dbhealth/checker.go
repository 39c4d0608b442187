// Package dbhealth exposes the historical market-data store as a pass/fail
// health capability. Recovery refuses to start trading when the database is
// unreachable; nothing in this core reads or writes market data itself.
package dbhealth

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// Status is the outcome of a health probe.
type Status struct {
	Status string // "pass" or "fail"
	Err    error
}

// Pass reports whether the probe succeeded.
func (s Status) Pass() bool { return s.Status == "pass" }

// Checker is the database health capability consumed by the recovery
// coordinator.
type Checker interface {
	Health(ctx context.Context) Status
}

// NopChecker always passes. Used in paper-trading runs with no market-data
// store configured.
type NopChecker struct{}

func (NopChecker) Health(context.Context) Status { return Status{Status: "pass"} }

// SQLChecker probes a PostgreSQL-compatible time-series store over sqlx.
type SQLChecker struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSQLChecker wraps an existing connection pool.
func NewSQLChecker(db *sqlx.DB, timeout time.Duration) *SQLChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SQLChecker{db: db, timeout: timeout}
}

// Open connects to the database at dsn and returns a checker over the new
// pool. The connection itself is not verified here; Health does that.
func Open(dsn string, timeout time.Duration) (*SQLChecker, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dbhealth: DSN is required")
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("dbhealth: open database: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)
	return NewSQLChecker(db, timeout), nil
}

// Health pings the database with a bounded timeout.
func (c *SQLChecker) Health(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		log.Error().Err(err).Msg("Database health check failed")
		return Status{Status: "fail", Err: err}
	}
	return Status{Status: "pass"}
}

// Close releases the underlying pool.
func (c *SQLChecker) Close() error {
	return c.db.Close()
}
