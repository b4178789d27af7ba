// Package postgres adapts pgx connections to the pool's Dialer contract
// and implements the demo repositories on top of the instrumented
// query executor.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/db-degradation-demo/internal/pool"
)

// pgxConn wraps *pgx.Conn so its Query result is returned as the pool's
// narrower Rows interface.
type pgxConn struct{ conn *pgx.Conn }

func (c pgxConn) Query(ctx context.Context, sql string, args ...any) (pool.Rows, error) {
	rows, err := c.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c pgxConn) Ping(ctx context.Context) error  { return c.conn.Ping(ctx) }
func (c pgxConn) Close(ctx context.Context) error { return c.conn.Close(ctx) }

// NewDialer validates the DSN and returns a Dialer that opens one pgx
// connection per call. The pool owns lifecycle and capacity.
func NewDialer(dsn string) (pool.Dialer, error) {
	if _, err := pgx.ParseConfig(dsn); err != nil {
		return nil, fmt.Errorf("op=postgres.dialer: %w", err)
	}
	return func(ctx context.Context) (pool.Queryer, error) {
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return pgxConn{conn: conn}, nil
	}, nil
}

// WaitForDatabase dials until the database answers or maxElapsed runs
// out, with exponential backoff. Used once at startup so the service
// survives the database coming up after it.
func WaitForDatabase(ctx context.Context, dial pool.Dialer, maxElapsed time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed
	op := func() error {
		q, err := dial(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = q.Close(ctx) }()
		return q.Ping(ctx)
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("op=postgres.wait: %w", err)
	}
	return nil
}
