package pool_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/db-degradation-demo/internal/domain"
)

func TestLatency_EnableAndReset(t *testing.T) {
	p := newPool(t, 5, 0)
	assert.Equal(t, time.Duration(0), p.QueryDelay())
	assert.Equal(t, domain.FaultModeNormal, p.FaultState().Mode)

	st := p.EnableLatency(150 * time.Millisecond)
	assert.Equal(t, domain.FaultModeSlow, st.Mode)
	assert.EqualValues(t, 150, st.DelayMS)
	assert.Equal(t, 150*time.Millisecond, p.QueryDelay())

	released := p.Reset()
	assert.Equal(t, 0, released)
	assert.Equal(t, time.Duration(0), p.QueryDelay())
	assert.Equal(t, domain.FaultModeNormal, p.FaultState().Mode)
}

// After enable-exhaustion followed by reset, the active count returns
// exactly to its baseline: no leaked holds.
func TestExhaustion_RoundTrip(t *testing.T) {
	p := newPool(t, 10, 0)
	baseline := p.Stats().Active

	held, err := p.EnableExhaustion(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, 9, held)

	st := p.Stats()
	assert.Equal(t, 9, st.Active)
	assert.InDelta(t, 90.0, st.UtilizationPercent, 0.001)

	fs := p.FaultState()
	assert.Equal(t, domain.FaultModeExhausted, fs.Mode)
	assert.Equal(t, 9, fs.HeldCount)

	released := p.Reset()
	assert.Equal(t, 9, released)
	assert.Equal(t, baseline, p.Stats().Active)
	assert.Equal(t, domain.FaultModeNormal, p.FaultState().Mode)
}

func TestExhaustion_CappedByAvailability(t *testing.T) {
	p := newPool(t, 2, 0)
	held, err := p.EnableExhaustion(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 2, held)
	assert.Equal(t, 2, p.Stats().Active)
	assert.Equal(t, 2, p.Reset())
}

func TestExhaustion_NegativeRejected(t *testing.T) {
	p := newPool(t, 2, 0)
	_, err := p.EnableExhaustion(context.Background(), -1)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

// Pool of 10 with 9 held: of 5 concurrent acquires exactly one wins the
// remaining slot and the other four time out.
func TestExhaustion_Scenario(t *testing.T) {
	p := newPool(t, 10, 0)
	held, err := p.EnableExhaustion(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, 9, held)
	assert.InDelta(t, 90.0, p.Stats().UtilizationPercent, 0.001)

	var succeeded, timedOut atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Acquire(context.Background(), 100*time.Millisecond)
			if err != nil {
				timedOut.Add(1)
				return
			}
			succeeded.Add(1)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, succeeded.Load())
	assert.EqualValues(t, 4, timedOut.Load())
	assert.InDelta(t, 100.0, p.Stats().UtilizationPercent, 0.001)
}

func TestReset_Concurrent(t *testing.T) {
	p := newPool(t, 4, 0)
	_, err := p.EnableExhaustion(context.Background(), 3)
	require.NoError(t, err)

	var total atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			total.Add(int64(p.Reset()))
		}()
	}
	wg.Wait()
	// Each hold is released exactly once across all concurrent resets.
	assert.EqualValues(t, 3, total.Load())
	assert.Equal(t, 0, p.Stats().Active)
}
