package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"

	"profile-enricher/internal/config"
	"profile-enricher/internal/platform"
)

// ErrUnknownPlatform is returned when acquiring for a platform that has no bucket.
var ErrUnknownPlatform = errors.New("no rate limiter configured for platform")

// minPoll bounds how often a waiting caller re-checks its bucket.
const minPoll = 5 * time.Millisecond

// Bucket is a token bucket for one platform. Tokens refill lazily at Rate per
// second up to Capacity. Acquire only ever takes a token that is already
// there, so the level stays within [0, Capacity].
type Bucket struct {
	lim *rate.Limiter
}

// NewBucket creates a bucket that starts full.
func NewBucket(tokensPerSecond float64, capacity int) *Bucket {
	if capacity < 1 {
		capacity = 1
	}
	return &Bucket{lim: rate.NewLimiter(rate.Limit(tokensPerSecond), capacity)}
}

// Acquire blocks until a token is available and takes it. It returns early
// only when ctx is done.
func (b *Bucket) Acquire(ctx context.Context) error {
	for {
		// Allow refills and decrements under the limiter's lock and leaves
		// the bucket untouched when fewer than one token is available.
		if b.lim.Allow() {
			return nil
		}

		timer := time.NewTimer(b.untilNextToken())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Tokens reports the current bucket level, refill included.
func (b *Bucket) Tokens() float64 {
	return b.lim.Tokens()
}

// Capacity reports the bucket size.
func (b *Bucket) Capacity() int {
	return b.lim.Burst()
}

func (b *Bucket) untilNextToken() time.Duration {
	missing := 1 - b.lim.Tokens()
	r := float64(b.lim.Limit())
	if missing <= 0 || r <= 0 || math.IsInf(r, 1) {
		return minPoll
	}
	d := time.Duration(missing / r * float64(time.Second))
	if d < minPoll {
		return minPoll
	}
	return d
}

// Limiters holds one independent bucket per platform. A fresh set is built
// for every job.
type Limiters struct {
	buckets map[platform.Platform]*Bucket
}

// New builds full buckets from the per-platform configuration.
func New(platforms map[platform.Platform]config.PlatformConfig) *Limiters {
	l := &Limiters{buckets: make(map[platform.Platform]*Bucket, len(platforms))}
	for p, pc := range platforms {
		l.buckets[p] = NewBucket(pc.Rate, pc.Capacity)
	}
	return l
}

// Acquire waits for a token on p's bucket.
func (l *Limiters) Acquire(ctx context.Context, p platform.Platform) error {
	b, ok := l.buckets[p]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlatform, p)
	}
	return b.Acquire(ctx)
}

// Bucket returns p's bucket, or nil.
func (l *Limiters) Bucket(p platform.Platform) *Bucket {
	return l.buckets[p]
}
