package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrGateClosed is returned by Acquire after Close.
	ErrGateClosed = errors.New("browser gate closed")
	// ErrBusy is returned when no browser slot frees up within the acquire timeout.
	ErrBusy = errors.New("all browser slots are busy")
)

// Gate bounds how many browser processes run at once. Each render holds one
// slot from launch until the process is gone.
type Gate struct {
	sem            chan struct{}
	capacity       int
	acquireTimeout time.Duration

	mu          sync.Mutex
	closed      bool
	lastFailure time.Time

	inUse    atomic.Int64
	launches atomic.Int64
	failures atomic.Int64
}

// Stats is a snapshot of gate usage.
type Stats struct {
	Enabled     bool      `json:"enabled"`
	Capacity    int       `json:"capacity"`
	Idle        int       `json:"idle"`
	InUse       int       `json:"in_use"`
	Launches    int64     `json:"launches"`
	Failures    int64     `json:"failures"`
	LastFailure time.Time `json:"last_failure,omitempty"`
}

// NewGate returns a gate with capacity slots. A capacity of zero or less
// disables the bound; acquireTimeout of zero waits until ctx is done.
func NewGate(capacity int, acquireTimeout time.Duration) *Gate {
	g := &Gate{capacity: capacity, acquireTimeout: acquireTimeout}
	if capacity > 0 {
		g.sem = make(chan struct{}, capacity)
		for i := 0; i < capacity; i++ {
			g.sem <- struct{}{}
		}
	}
	return g
}

// Acquire waits for a free slot. The returned release func is safe to call
// more than once.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return nil, ErrGateClosed
	}

	if g.sem != nil {
		waitCtx := ctx
		if g.acquireTimeout > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, g.acquireTimeout)
			defer cancel()
		}
		select {
		case <-g.sem:
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrBusy
		}
	}

	g.inUse.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			g.inUse.Add(-1)
			if g.sem != nil {
				g.sem <- struct{}{}
			}
		})
	}, nil
}

// RecordLaunch counts a browser launch attempt and its outcome.
func (g *Gate) RecordLaunch(err error) {
	g.launches.Add(1)
	if err == nil {
		return
	}
	g.failures.Add(1)
	g.mu.Lock()
	g.lastFailure = time.Now()
	g.mu.Unlock()
}

// Stats returns current usage.
func (g *Gate) Stats() Stats {
	g.mu.Lock()
	closed := g.closed
	last := g.lastFailure
	g.mu.Unlock()

	inUse := int(g.inUse.Load())
	s := Stats{
		Enabled:     !closed,
		Capacity:    g.capacity,
		InUse:       inUse,
		Launches:    g.launches.Load(),
		Failures:    g.failures.Load(),
		LastFailure: last,
	}
	if g.sem != nil {
		s.Idle = len(g.sem)
	}
	return s
}

// Close rejects further Acquire calls. Slots already handed out stay valid.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
