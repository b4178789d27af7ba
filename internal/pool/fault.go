package pool

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/db-degradation-demo/internal/domain"
)

// holdAcquireTimeout bounds each individual acquire made while enabling
// exhaustion. Holds are best-effort up to availability, so a short wait
// is enough.
const holdAcquireTimeout = 250 * time.Millisecond

// EnableLatency makes every subsequent query sleep d before executing.
// The delay is fixed, with no jitter, so demo runs are reproducible.
func (p *Pool) EnableLatency(d time.Duration) domain.FaultState {
	p.mu.Lock()
	p.delay = d
	p.mu.Unlock()
	p.logger.Info("latency injection enabled", slog.Duration("delay", d))
	return p.FaultState()
}

// QueryDelay returns the currently injected per-query delay.
func (p *Pool) QueryDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delay
}

// EnableExhaustion pre-acquires up to n connections and holds them until
// Reset, mechanically shrinking the capacity available to everyone else.
// Holds go through the ordinary acquire path, so the capacity invariant
// cannot be violated; if fewer than n connections are free the hold is
// capped at what could be taken. Returns the number actually held.
//
// Held connections never expire on their own: the demo narrative needs
// degradation to persist until an operator calls Reset.
func (p *Pool) EnableExhaustion(ctx context.Context, n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("op=pool.exhaust: %w: held count must be non-negative", domain.ErrInvalidArgument)
	}
	took := 0
	for i := 0; i < n; i++ {
		c, err := p.Acquire(ctx, holdAcquireTimeout)
		if err != nil {
			break
		}
		p.mu.Lock()
		p.held = append(p.held, c)
		p.mu.Unlock()
		took++
	}
	p.logger.Info("pool exhaustion enabled",
		slog.Int("requested", n),
		slog.Int("held", took))
	return took, nil
}

// Reset releases all held connections and clears latency injection,
// restoring baseline behavior. Returns how many holds were released.
func (p *Pool) Reset() int {
	p.mu.Lock()
	p.delay = 0
	held := p.held
	p.held = nil
	p.mu.Unlock()
	for _, c := range held {
		if err := p.Release(c); err != nil {
			p.logger.Error("failed to release held connection",
				slog.String("conn_id", c.ID), slog.Any("error", err))
		}
	}
	p.logger.Info("fault injection reset", slog.Int("released", len(held)))
	return len(held)
}

// FaultState snapshots the fault configuration. Exhaustion holds take
// precedence over latency when both are active.
func (p *Pool) FaultState() domain.FaultState {
	p.mu.Lock()
	defer p.mu.Unlock()
	mode := domain.FaultModeNormal
	switch {
	case len(p.held) > 0:
		mode = domain.FaultModeExhausted
	case p.delay > 0:
		mode = domain.FaultModeSlow
	}
	return domain.FaultState{
		Mode:      mode,
		Delay:     p.delay,
		DelayMS:   p.delay.Milliseconds(),
		HeldCount: len(p.held),
	}
}
