// Package pool implements the bounded database connection pool shared by
// all request-handling goroutines of one service process.
//
// Each process owns its own pool pointed at the same physical database;
// capacity is enforced per process only. This approximates contention at
// the database's true connection ceiling across independent processes; a
// fully accurate model would need a centralized pool broker, which is out
// of scope here.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fairyhunter13/db-degradation-demo/internal/domain"
)

// Rows is the subset of a driver result set the executor consumes.
// pgx.Rows satisfies it directly.
type Rows interface {
	Next() bool
	Values() ([]any, error)
	FieldDescriptions() []pgconn.FieldDescription
	Err() error
	Close()
}

// Queryer is the behavior the pool needs from a physical connection.
type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Dialer opens one physical database connection.
type Dialer func(ctx context.Context) (Queryer, error)

// Conn is a pooled connection. It must be given back via Pool.Release on
// every exit path.
type Conn struct {
	ID string
	q  Queryer
}

// Query runs a query on the underlying physical connection.
func (c *Conn) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return c.q.Query(ctx, sql, args...)
}

// Ping verifies the underlying connection is alive.
func (c *Conn) Ping(ctx context.Context) error { return c.q.Ping(ctx) }

// Config sizes and times the pool.
type Config struct {
	MaxConns       int
	MinConns       int
	AcquireTimeout time.Duration
}

// Pool is a thread-safe bounded set of connections. Connections are
// created lazily up to MaxConns (MinConns are pre-warmed at startup) and
// destroyed at shutdown.
//
// Fault-injection state (latency delay, held connections) lives on the
// pool and is read and mutated under the same mutex as acquire/release
// bookkeeping, so enabling exhaustion can never race an in-flight
// acquire into miscounting capacity.
type Pool struct {
	mu       sync.Mutex
	permits  chan struct{}
	free     []*Conn
	borrowed map[*Conn]struct{}
	closed   bool

	// fault-injection state, owned by the same mutex
	delay time.Duration
	held  []*Conn

	dial   Dialer
	max    int
	logger *slog.Logger
}

// New builds a pool and pre-warms cfg.MinConns connections.
func New(ctx context.Context, cfg Config, dial Dialer, logger *slog.Logger) (*Pool, error) {
	if cfg.MaxConns <= 0 {
		return nil, fmt.Errorf("op=pool.new: %w: max_conns must be positive", domain.ErrInvalidArgument)
	}
	if cfg.MinConns < 0 || cfg.MinConns > cfg.MaxConns {
		return nil, fmt.Errorf("op=pool.new: %w: min_conns out of range", domain.ErrInvalidArgument)
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		permits:  make(chan struct{}, cfg.MaxConns),
		borrowed: make(map[*Conn]struct{}),
		dial:     dial,
		max:      cfg.MaxConns,
		logger:   logger,
	}
	for i := 0; i < cfg.MaxConns; i++ {
		p.permits <- struct{}{}
	}
	for i := 0; i < cfg.MinConns; i++ {
		q, err := dial(ctx)
		if err != nil {
			p.closeFreeLocked()
			return nil, fmt.Errorf("op=pool.prewarm: %w", err)
		}
		p.free = append(p.free, &Conn{ID: uuid.NewString(), q: q})
	}
	logger.Info("connection pool created",
		slog.Int("max_conns", cfg.MaxConns),
		slog.Int("prewarmed", cfg.MinConns))
	return p, nil
}

// Acquire borrows a connection, blocking up to timeout for a free slot.
// It returns domain.ErrPoolExhausted when the pool stays at capacity for
// the whole wait. No fairness is guaranteed among blocked callers.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*Conn, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.permits:
	case <-timer.C:
		return nil, fmt.Errorf("op=pool.acquire timeout=%s: %w", timeout, domain.ErrPoolExhausted)
	case <-ctx.Done():
		return nil, fmt.Errorf("op=pool.acquire: %w", ctx.Err())
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.permits <- struct{}{}
		return nil, fmt.Errorf("op=pool.acquire: %w", domain.ErrPoolClosed)
	}
	if n := len(p.free); n > 0 {
		c := p.free[n-1]
		p.free = p.free[:n-1]
		p.borrowed[c] = struct{}{}
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	// No idle connection; dial a new one outside the lock. The permit is
	// already ours, so capacity stays bounded.
	q, err := p.dial(ctx)
	if err != nil {
		p.permits <- struct{}{}
		return nil, fmt.Errorf("op=pool.dial: %w", err)
	}
	c := &Conn{ID: uuid.NewString(), q: q}
	p.mu.Lock()
	p.borrowed[c] = struct{}{}
	p.mu.Unlock()
	return c, nil
}

// Release returns a borrowed connection to the free set. Releasing a
// connection that is not currently borrowed is a programming error and
// is rejected rather than silently ignored.
func (p *Pool) Release(c *Conn) error {
	if c == nil {
		return fmt.Errorf("op=pool.release: %w: nil connection", domain.ErrInvalidArgument)
	}
	p.mu.Lock()
	if _, ok := p.borrowed[c]; !ok {
		p.mu.Unlock()
		p.logger.Error("double or foreign release rejected", slog.String("conn_id", c.ID))
		return fmt.Errorf("op=pool.release conn=%s: %w: connection not borrowed", c.ID, domain.ErrInvalidArgument)
	}
	delete(p.borrowed, c)
	if p.closed {
		p.mu.Unlock()
		_ = c.q.Close(context.Background())
		return nil
	}
	p.free = append(p.free, c)
	p.mu.Unlock()
	p.permits <- struct{}{}
	return nil
}

// Stats snapshots current occupancy. Held fault-injection connections
// count as active: they consume real capacity.
func (p *Pool) Stats() domain.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	active := len(p.borrowed)
	return domain.PoolStats{
		Active:             active,
		Max:                p.max,
		UtilizationPercent: float64(active) / float64(p.max) * 100,
		Available:          p.max - active,
	}
}

// Max returns the configured capacity.
func (p *Pool) Max() int { return p.max }

// Close tears the pool down. Free connections are closed immediately;
// borrowed ones are closed as they are released.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.delay = 0
	for _, c := range p.held {
		delete(p.borrowed, c)
		_ = c.q.Close(context.Background())
	}
	p.held = nil
	p.closeFreeLocked()
	p.mu.Unlock()
	p.logger.Info("connection pool closed")
}

func (p *Pool) closeFreeLocked() {
	for _, c := range p.free {
		_ = c.q.Close(context.Background())
	}
	p.free = nil
}
