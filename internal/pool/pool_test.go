package pool_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/db-degradation-demo/internal/domain"
	"github.com/fairyhunter13/db-degradation-demo/internal/pool"
)

type emptyRows struct{}

func (emptyRows) Next() bool                                   { return false }
func (emptyRows) Values() ([]any, error)                       { return nil, nil }
func (emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (emptyRows) Err() error                                   { return nil }
func (emptyRows) Close()                                       {}

type stubConn struct{ closed atomic.Bool }

func (s *stubConn) Query(_ context.Context, _ string, _ ...any) (pool.Rows, error) {
	return emptyRows{}, nil
}
func (s *stubConn) Ping(_ context.Context) error { return nil }
func (s *stubConn) Close(_ context.Context) error {
	s.closed.Store(true)
	return nil
}

func stubDialer() pool.Dialer {
	return func(_ context.Context) (pool.Queryer, error) { return &stubConn{}, nil }
}

func newPool(t *testing.T, maxConns, minConns int) *pool.Pool {
	t.Helper()
	p, err := pool.New(context.Background(), pool.Config{MaxConns: maxConns, MinConns: minConns}, stubDialer(), nil)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := pool.New(context.Background(), pool.Config{MaxConns: 0}, stubDialer(), nil)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = pool.New(context.Background(), pool.Config{MaxConns: 2, MinConns: 5}, stubDialer(), nil)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestAcquireRelease_Bounds(t *testing.T) {
	p := newPool(t, 3, 1)

	conns := make([]*pool.Conn, 0, 3)
	for i := 0; i < 3; i++ {
		c, err := p.Acquire(context.Background(), time.Second)
		require.NoError(t, err)
		conns = append(conns, c)
	}
	st := p.Stats()
	assert.Equal(t, 3, st.Active)
	assert.Equal(t, 0, st.Available)
	assert.InDelta(t, 100.0, st.UtilizationPercent, 0.001)

	_, err := p.Acquire(context.Background(), 50*time.Millisecond)
	require.ErrorIs(t, err, domain.ErrPoolExhausted)

	require.NoError(t, p.Release(conns[0]))
	c, err := p.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	require.NoError(t, p.Release(c))
	for _, c := range conns[1:] {
		require.NoError(t, p.Release(c))
	}
	assert.Equal(t, 0, p.Stats().Active)
}

func TestRelease_DoubleReleaseRejected(t *testing.T) {
	p := newPool(t, 2, 0)
	c, err := p.Acquire(context.Background(), time.Second)
	require.NoError(t, err)

	require.NoError(t, p.Release(c))
	err = p.Release(c)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Equal(t, 0, p.Stats().Active)

	require.ErrorIs(t, p.Release(nil), domain.ErrInvalidArgument)
}

func TestAcquire_ContextCancelled(t *testing.T) {
	p := newPool(t, 1, 0)
	c, err := p.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer func() { _ = p.Release(c) }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Acquire(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestAcquire_AfterCloseFails(t *testing.T) {
	p, err := pool.New(context.Background(), pool.Config{MaxConns: 2, MinConns: 1}, stubDialer(), nil)
	require.NoError(t, err)
	p.Close()
	_, err = p.Acquire(context.Background(), 50*time.Millisecond)
	require.ErrorIs(t, err, domain.ErrPoolClosed)
}

// The capacity invariant: with max=100 and 150 concurrent acquires and
// no releases, exactly 100 are granted, the rest time out, and the
// active count never exceeds capacity.
func TestAcquire_ConcurrencyBound(t *testing.T) {
	p := newPool(t, 100, 0)

	var granted, denied atomic.Int64
	var wg sync.WaitGroup
	stop := make(chan struct{})
	go func() {
		// Sample the invariant while acquires race.
		for {
			select {
			case <-stop:
				return
			default:
				if st := p.Stats(); st.Active > st.Max {
					t.Errorf("active %d exceeded max %d", st.Active, st.Max)
					return
				}
			}
		}
	}()

	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Acquire(context.Background(), 200*time.Millisecond)
			if err != nil {
				denied.Add(1)
				return
			}
			granted.Add(1)
		}()
	}
	wg.Wait()
	close(stop)

	assert.EqualValues(t, 100, granted.Load())
	assert.EqualValues(t, 50, denied.Load())
	assert.Equal(t, 100, p.Stats().Active)
}

func TestStats_SnapshotShape(t *testing.T) {
	p := newPool(t, 10, 2)
	st := p.Stats()
	assert.Equal(t, 0, st.Active)
	assert.Equal(t, 10, st.Max)
	assert.Equal(t, 10, st.Available)

	c, err := p.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	st = p.Stats()
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, 9, st.Available)
	assert.InDelta(t, 10.0, st.UtilizationPercent, 0.001)
	require.NoError(t, p.Release(c))
}
