// Package dbquery wraps every database query in exactly one client span
// carrying the attribute contract the observability backend aggregates
// on, while borrowing and returning pool connections on every exit path.
package dbquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/db-degradation-demo/internal/adapter/observability"
	"github.com/fairyhunter13/db-degradation-demo/internal/domain"
	"github.com/fairyhunter13/db-degradation-demo/internal/pool"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Executor runs queries against the pool with tracing, metrics, and
// fault-injection awareness.
type Executor struct {
	Pool           *pool.Pool
	DBName         string
	PeerName       string
	AcquireTimeout time.Duration
}

// New constructs an Executor. dbName and peerName feed the db.name and
// net.peer.name span attributes; both must be non-empty or downstream
// cross-service aggregation silently breaks.
func New(p *pool.Pool, dbName, peerName string, acquireTimeout time.Duration) *Executor {
	return &Executor{Pool: p, DBName: dbName, PeerName: peerName, AcquireTimeout: acquireTimeout}
}

// Query executes sql inside one SpanKindClient span. The parent span is
// taken from ctx only; there is no ambient current-span fallback, so
// callers must pass the context their own span lives in.
func (e *Executor) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	operation, table := classify(sql)
	tracer := otel.Tracer("dbquery")
	ctx, span := tracer.Start(ctx, operation+" "+table, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.name", e.DBName),
		attribute.String("db.operation", operation),
		attribute.String("db.statement", sql),
		attribute.String("db.table", table),
		attribute.String("net.peer.name", e.PeerName),
	)
	start := time.Now()

	// Deterministic latency injection: applied before execution so the
	// whole span duration reflects the configured floor.
	if d := e.Pool.QueryDelay(); d > 0 {
		span.SetAttributes(attribute.Int64("fault.injected_delay_ms", d.Milliseconds()))
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, e.fail(ctx, span, operation, start, fmt.Errorf("op=dbquery.delay: %w", ctx.Err()))
		}
	}

	conn, err := e.Pool.Acquire(ctx, e.AcquireTimeout)
	e.annotatePool(span)
	if err != nil {
		return nil, e.fail(ctx, span, operation, start, err)
	}
	defer func() {
		if relErr := e.Pool.Release(conn); relErr != nil {
			observability.LoggerFromContext(ctx).Error("connection release failed",
				slog.String("conn_id", conn.ID), slog.Any("error", relErr))
		}
	}()

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, e.fail(ctx, span, operation, start, fmt.Errorf("op=dbquery.query: %w: %v", domain.ErrQueryFailed, err))
	}
	out, err := collect(rows)
	if err != nil {
		return nil, e.fail(ctx, span, operation, start, fmt.Errorf("op=dbquery.scan: %w: %v", domain.ErrQueryFailed, err))
	}

	dur := time.Since(start)
	span.SetAttributes(
		attribute.Float64("db.query.duration_ms", float64(dur.Microseconds())/1000.0),
		attribute.Int("db.rows_returned", len(out)),
	)
	span.SetStatus(codes.Ok, "")
	observability.ObserveQuery(operation, "ok", dur)
	observability.UpdatePoolGauges(e.Pool.Stats())
	return out, nil
}

// fail marks the span, records metrics, and logs with trace correlation
// before handing the error back. Connection release is handled by the
// caller's defer, never here.
func (e *Executor) fail(ctx context.Context, span trace.Span, operation string, start time.Time, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.Float64("db.query.duration_ms", float64(time.Since(start).Microseconds())/1000.0))
	observability.ObserveQuery(operation, statusLabel(err), time.Since(start))
	observability.UpdatePoolGauges(e.Pool.Stats())
	sc := span.SpanContext()
	observability.LoggerFromContext(ctx).Error("query failed",
		slog.String("operation", operation),
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
		slog.Any("error", err),
	)
	return err
}

func statusLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrPoolExhausted):
		return "pool_exhausted"
	case errors.Is(err, domain.ErrQueryFailed):
		return "query_error"
	default:
		return "error"
	}
}

func (e *Executor) annotatePool(span trace.Span) {
	st := e.Pool.Stats()
	span.SetAttributes(
		attribute.Int("db.pool.active", st.Active),
		attribute.Int("db.pool.max", st.Max),
		attribute.Float64("db.pool.utilization_percent", st.UtilizationPercent),
	)
}

func collect(rows pool.Rows) ([]Row, error) {
	defer rows.Close()
	out := make([]Row, 0, 16)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		fds := rows.FieldDescriptions()
		row := make(Row, len(fds))
		for i, fd := range fds {
			if i < len(vals) {
				row[string(fd.Name)] = vals[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
