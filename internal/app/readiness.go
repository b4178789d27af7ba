package app

import (
	"context"
	"time"

	"github.com/fairyhunter13/db-degradation-demo/internal/pool"
)

// BuildDBCheck returns a readiness probe that borrows a connection and
// pings through it. The borrow goes through the ordinary acquire path,
// so readiness honestly reflects pool pressure: a fully exhausted pool
// reports not-ready, which is exactly what the demo wants to show.
func BuildDBCheck(p *pool.Pool) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		conn, err := p.Acquire(ctx, 2*time.Second)
		if err != nil {
			return err
		}
		defer func() { _ = p.Release(conn) }()
		return conn.Ping(ctx)
	}
}
