// Package domain holds the core types and error taxonomy shared by the
// connection pool, query executor, and HTTP adapters.
package domain

import (
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	// ErrPoolExhausted means an acquire timed out with the pool at capacity.
	// Retryable by the caller; surfaced as 503 with a structured body.
	ErrPoolExhausted = errors.New("connection pool exhausted")
	// ErrPoolClosed means the pool was shut down while the caller waited.
	ErrPoolClosed = errors.New("connection pool closed")
	// ErrQueryFailed wraps driver-level query errors. The span is marked
	// error and the connection is still returned to the pool.
	ErrQueryFailed     = errors.New("query failed")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
)

// PoolStats is a point-in-time snapshot of pool occupancy, computed on
// demand under the pool lock and never cached.
type PoolStats struct {
	Active             int     `json:"active"`
	Max                int     `json:"max"`
	UtilizationPercent float64 `json:"utilization_percent"`
	Available          int     `json:"available"`
}

// FaultMode enumerates the fault-injection states of a pool.
type FaultMode string

const (
	FaultModeNormal    FaultMode = "normal"
	FaultModeSlow      FaultMode = "slow"
	FaultModeExhausted FaultMode = "exhausted"
)

// FaultState is a snapshot of the fault-injection configuration. Changes
// apply only to subsequent acquisitions and queries, never to work
// already in flight.
type FaultState struct {
	Mode      FaultMode     `json:"mode"`
	Delay     time.Duration `json:"-"`
	DelayMS   int64         `json:"delay_ms"`
	HeldCount int           `json:"held_count"`
}

// Product is the demo workload entity backing the /api endpoints.
type Product struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	SKU        string    `json:"sku"`
	PriceCents int64     `json:"price_cents"`
	CreatedAt  time.Time `json:"created_at"`
}
