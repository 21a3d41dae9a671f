package browser

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateAcquireReleaseAndClose(t *testing.T) {
	g := NewGate(1, time.Second)

	release, err := g.Acquire(context.Background())
	require.NoError(t, err)

	st := g.Stats()
	assert.Equal(t, 1, st.InUse)
	assert.Equal(t, 0, st.Idle)

	release()
	release() // idempotent
	st = g.Stats()
	assert.Equal(t, 0, st.InUse)
	assert.Equal(t, 1, st.Idle)

	g.Close()
	_, err = g.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrGateClosed)
	assert.False(t, g.Stats().Enabled)
}

func TestGateAcquireTimesOutWhenNoCapacity(t *testing.T) {
	g := NewGate(1, 20*time.Millisecond)
	release, err := g.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	_, err = g.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
}

func TestGateAcquireContextCanceled(t *testing.T) {
	g := NewGate(1, time.Minute)
	release, err := g.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Acquire(ctx)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestGateUnbounded(t *testing.T) {
	g := NewGate(0, 0)
	var releases []func()
	for i := 0; i < 10; i++ {
		r, err := g.Acquire(context.Background())
		require.NoError(t, err)
		releases = append(releases, r)
	}
	assert.Equal(t, 10, g.Stats().InUse)
	for _, r := range releases {
		r()
	}
	assert.Equal(t, 0, g.Stats().InUse)
}

func TestGateBoundsConcurrency(t *testing.T) {
	const capacity = 2
	g := NewGate(capacity, 0)

	var (
		mu      sync.Mutex
		current int
		peak    int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(context.Background())
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer release()

			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak, capacity)
	assert.Equal(t, capacity, g.Stats().Idle)
}

func TestGateRecordLaunch(t *testing.T) {
	g := NewGate(1, 0)
	g.RecordLaunch(nil)
	g.RecordLaunch(errors.New("exec: not found"))

	st := g.Stats()
	assert.Equal(t, int64(2), st.Launches)
	assert.Equal(t, int64(1), st.Failures)
	assert.False(t, st.LastFailure.IsZero())
}
