package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests drive the refill law directly.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTokensNeverExceedCapacityOrGoNegative(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := NewWithClock(10, time.Second, clock.Now)

	// A full bucket drains exactly capacity times.
	for i := 0; i < 10; i++ {
		require.True(t, l.TryAcquire(), "token %d should be available", i)
	}
	assert.False(t, l.TryAcquire(), "empty bucket must not admit")
	assert.GreaterOrEqual(t, l.Tokens(), 0.0)

	// A long idle period refills to capacity, never beyond.
	clock.Advance(time.Hour)
	assert.InDelta(t, 10.0, l.Tokens(), 1e-9)

	// Partial refill credits proportionally.
	for i := 0; i < 10; i++ {
		require.True(t, l.TryAcquire())
	}
	clock.Advance(250 * time.Millisecond) // 2.5 tokens at 10/s
	assert.InDelta(t, 2.5, l.Tokens(), 1e-9)
	require.True(t, l.TryAcquire())
	require.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
}

func TestAcquireBlocksUntilRefill(t *testing.T) {
	l := New(2, 200*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	start := time.Now()
	require.NoError(t, l.Acquire(ctx))
	elapsed := time.Since(start)
	// One token accrues every 100ms at 2 per 200ms.
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond, "third acquire should have waited for a refill")
}

func TestSustainedThroughputConvergesToRate(t *testing.T) {
	if testing.Short() {
		t.Skip("timing-sensitive")
	}

	const (
		capacity = 20
		window   = 200 * time.Millisecond
		runFor   = time.Second
	)
	l := New(capacity, window)
	ctx, cancel := context.WithTimeout(context.Background(), runFor)
	defer cancel()

	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := l.Acquire(ctx); err != nil {
					return
				}
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	// Expect initial burst (capacity) plus capacity/window for the run
	// duration: 20 + 100/s * 1s = 120. Generous tolerance for scheduler
	// jitter and the 100ms retry granularity.
	got := atomic.LoadInt64(&admitted)
	assert.Greater(t, got, int64(60), "throughput collapsed under contention")
	assert.Less(t, got, int64(140), "admitted more than the bucket allows")
}

func TestCancelledAcquireDoesNotConsumeToken(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := NewWithClock(1, time.Second, clock.Now)

	require.True(t, l.TryAcquire())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Acquire(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled Acquire did not return")
	}

	// The waiter left without consuming: one refilled token serves the
	// next caller immediately.
	clock.Advance(time.Second)
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
}

func TestConcurrentAcquiresNeverOverAdmit(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := NewWithClock(50, time.Hour, clock.Now) // effectively no refill

	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire() {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), atomic.LoadInt64(&admitted))
}
