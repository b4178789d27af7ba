package dbquery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/db-degradation-demo/internal/dbquery"
	"github.com/fairyhunter13/db-degradation-demo/internal/domain"
	"github.com/fairyhunter13/db-degradation-demo/internal/pool"
)

type fakeRows struct {
	cols []string
	data [][]any
	idx  int
}

func (r *fakeRows) Next() bool { r.idx++; return r.idx <= len(r.data) }
func (r *fakeRows) Values() ([]any, error) {
	return r.data[r.idx-1], nil
}
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fds := make([]pgconn.FieldDescription, len(r.cols))
	for i, c := range r.cols {
		fds[i] = pgconn.FieldDescription{Name: c}
	}
	return fds
}
func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) Close()     {}

type fakeConn struct {
	rows    *fakeRows
	failErr error
}

func (c *fakeConn) Query(_ context.Context, _ string, _ ...any) (pool.Rows, error) {
	if c.failErr != nil {
		return nil, c.failErr
	}
	rows := *c.rows
	return &rows, nil
}
func (c *fakeConn) Ping(_ context.Context) error  { return nil }
func (c *fakeConn) Close(_ context.Context) error { return nil }

func setupTracing(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func newExecutor(t *testing.T, conn *fakeConn, maxConns int) (*dbquery.Executor, *pool.Pool) {
	t.Helper()
	dial := func(_ context.Context) (pool.Queryer, error) { return conn, nil }
	p, err := pool.New(context.Background(), pool.Config{MaxConns: maxConns}, dial, nil)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return dbquery.New(p, "demo", "db.internal", 500*time.Millisecond), p
}

func attrMap(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(span.Attributes()))
	for _, kv := range span.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestQuery_SpanAttributeCompleteness(t *testing.T) {
	sr := setupTracing(t)
	conn := &fakeConn{rows: &fakeRows{
		cols: []string{"id", "name"},
		data: [][]any{{int64(1), "alpha"}, {int64(2), "beta"}},
	}}
	exec, p := newExecutor(t, conn, 4)

	rows, err := exec.Query(context.Background(), "SELECT id, name FROM products")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Equal(t, "alpha", rows[0]["name"])
	// Released on the success path.
	assert.Equal(t, 0, p.Stats().Active)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, trace.SpanKindClient, span.SpanKind())
	assert.Equal(t, codes.Ok, span.Status().Code)

	attrs := attrMap(span)
	for _, key := range []attribute.Key{
		"db.system", "db.name", "db.operation", "db.statement", "db.table", "net.peer.name",
	} {
		v, ok := attrs[key]
		require.True(t, ok, "missing attribute %s", key)
		assert.NotEmpty(t, v.AsString(), "empty attribute %s", key)
	}
	assert.Equal(t, "postgresql", attrs["db.system"].AsString())
	assert.Equal(t, "SELECT", attrs["db.operation"].AsString())
	assert.Equal(t, "products", attrs["db.table"].AsString())
	assert.EqualValues(t, 2, attrs["db.rows_returned"].AsInt64())
	assert.EqualValues(t, 4, attrs["db.pool.max"].AsInt64())
	assert.GreaterOrEqual(t, attrs["db.query.duration_ms"].AsFloat64(), 0.0)
}

func TestQuery_DriverErrorMarksSpanAndReleases(t *testing.T) {
	sr := setupTracing(t)
	conn := &fakeConn{failErr: errors.New("relation does not exist")}
	exec, p := newExecutor(t, conn, 2)

	_, err := exec.Query(context.Background(), "SELECT * FROM missing")
	require.ErrorIs(t, err, domain.ErrQueryFailed)
	// Released on the error path too.
	assert.Equal(t, 0, p.Stats().Active)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestQuery_PoolExhaustedSurfaces(t *testing.T) {
	sr := setupTracing(t)
	conn := &fakeConn{rows: &fakeRows{}}
	dial := func(_ context.Context) (pool.Queryer, error) { return conn, nil }
	p, err := pool.New(context.Background(), pool.Config{MaxConns: 1}, dial, nil)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	exec := dbquery.New(p, "demo", "db.internal", 50*time.Millisecond)

	held, err := p.EnableExhaustion(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, held)

	_, err = exec.Query(context.Background(), "SELECT 1")
	require.ErrorIs(t, err, domain.ErrPoolExhausted)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	attrs := attrMap(spans[0])
	assert.EqualValues(t, 1, attrs["db.pool.active"].AsInt64())
	assert.InDelta(t, 100.0, attrs["db.pool.utilization_percent"].AsFloat64(), 0.001)
}

// After enable_latency(d), every query's observed duration is >= d.
func TestQuery_LatencyInjectionFloor(t *testing.T) {
	setupTracing(t)
	conn := &fakeConn{rows: &fakeRows{}}
	exec, p := newExecutor(t, conn, 2)

	const delay = 80 * time.Millisecond
	p.EnableLatency(delay)
	for i := 0; i < 2; i++ {
		start := time.Now()
		_, err := exec.Query(context.Background(), "SELECT 1")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), delay)
	}

	p.Reset()
	start := time.Now()
	_, err := exec.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), delay)
}

func TestQuery_ExplicitParentAttachment(t *testing.T) {
	sr := setupTracing(t)
	conn := &fakeConn{rows: &fakeRows{}}
	exec, _ := newExecutor(t, conn, 2)

	tr := otel.Tracer("test")
	ctx, parent := tr.Start(context.Background(), "request")
	_, err := exec.Query(ctx, "SELECT 1")
	require.NoError(t, err)
	parent.End()

	var child sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		if s.SpanKind() == trace.SpanKindClient {
			child = s
		}
	}
	require.NotNil(t, child)
	assert.Equal(t, parent.SpanContext().SpanID(), child.Parent().SpanID())
	assert.Equal(t, parent.SpanContext().TraceID(), child.SpanContext().TraceID())
}
