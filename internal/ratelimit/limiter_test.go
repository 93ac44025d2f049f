package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profile-enricher/internal/config"
	"profile-enricher/internal/platform"
)

func TestBucketStaysWithinBounds(t *testing.T) {
	b := NewBucket(50, 3)
	assert.Equal(t, 3, b.Capacity())
	assert.InDelta(t, 3.0, b.Tokens(), 0.01)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Acquire(ctx))
		tok := b.Tokens()
		assert.GreaterOrEqual(t, tok, 0.0)
		assert.LessOrEqual(t, tok, 3.0)
	}

	// Idle refill never overshoots the capacity.
	time.Sleep(200 * time.Millisecond)
	assert.LessOrEqual(t, b.Tokens(), 3.0)
}

func TestBucketDefaultsCapacityToOne(t *testing.T) {
	b := NewBucket(1, 0)
	assert.Equal(t, 1, b.Capacity())
}

func TestAcquireWaitsForRefill(t *testing.T) {
	b := NewBucket(20, 1) // one token every 50ms
	ctx := context.Background()

	require.NoError(t, b.Acquire(ctx))
	start := time.Now()
	require.NoError(t, b.Acquire(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestAcquireHonoursContext(t *testing.T) {
	b := NewBucket(0.01, 1)
	require.NoError(t, b.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := b.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, b.Tokens(), 0.0)
}

func TestPlatformsAreIndependent(t *testing.T) {
	l := New(map[platform.Platform]config.PlatformConfig{
		platform.LinkedIn: {Rate: 0.01, Capacity: 1},
		platform.GitHub:   {Rate: 100, Capacity: 1},
	})
	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, platform.LinkedIn))

	// LinkedIn is now empty for ~100s; GitHub must still flow.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			_ = l.Acquire(ctx, platform.GitHub)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("github acquisition blocked by exhausted linkedin bucket")
	}

	err := l.Acquire(ctx, platform.LeetCode)
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestConcurrentAcquireNeverDoubleSpends(t *testing.T) {
	const (
		capacity = 5
		perSec   = 20.0
		window   = 300 * time.Millisecond
	)
	b := NewBucket(perSec, capacity)

	ctx, cancel := context.WithTimeout(context.Background(), window)
	defer cancel()

	var consumed int64
	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := b.Acquire(ctx); err != nil {
					return
				}
				atomic.AddInt64(&consumed, 1)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start).Seconds()

	limit := float64(capacity) + elapsed*perSec
	assert.LessOrEqual(t, float64(atomic.LoadInt64(&consumed)), limit)
	assert.GreaterOrEqual(t, atomic.LoadInt64(&consumed), int64(capacity))
}
