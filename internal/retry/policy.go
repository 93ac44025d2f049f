package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"profile-enricher/internal/config"
	"profile-enricher/internal/model"
)

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real-time Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Attempt describes one finished try. Outcome is OutcomeSuccess,
// OutcomeRetry (another try follows) or OutcomeFailure (terminal).
type Attempt struct {
	Number  int
	Err     error
	Outcome model.Outcome
	Backoff time.Duration
}

// Operation is a single fallible try. attempt starts at 1.
type Operation func(ctx context.Context, attempt int) (model.Fields, error)

// Policy runs an Operation with bounded retries, exponential backoff and a
// random pre-attempt delay.
type Policy struct {
	MaxRetries  int
	BackoffBase float64
	Jitter      time.Duration
	DelayMin    time.Duration
	DelayMax    time.Duration

	sleep Sleeper
	mu    sync.Mutex
	rnd   *rand.Rand
}

// Option customises a Policy.
type Option func(*Policy)

// WithSleeper replaces the wall-clock sleeper, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(p *Policy) { p.sleep = s }
}

// WithRand seeds the jitter source.
func WithRand(r *rand.Rand) Option {
	return func(p *Policy) { p.rnd = r }
}

// NewPolicy builds a Policy from the retry and delay configuration.
func NewPolicy(rc config.RetryConfig, dc config.DelayConfig, opts ...Option) *Policy {
	p := &Policy{
		MaxRetries:  rc.MaxRetries,
		BackoffBase: rc.BackoffBase,
		Jitter:      time.Duration(rc.JitterMS) * time.Millisecond,
		DelayMin:    time.Duration(dc.MinMS) * time.Millisecond,
		DelayMax:    time.Duration(dc.MaxMS) * time.Millisecond,
		sleep:       SleepContext,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// MaxAttempts is MaxRetries + 1.
func (p *Policy) MaxAttempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Backoff returns BackoffBase^attempt seconds, attempt being the 1-based
// number of the try that just failed. Jitter is not included.
func (p *Policy) Backoff(attempt int) time.Duration {
	secs := math.Pow(p.BackoffBase, float64(attempt))
	return time.Duration(secs * float64(time.Second))
}

// Execute runs op until it succeeds, fails permanently or runs out of
// attempts. observe, when non-nil, is called after every try before any
// backoff. The returned error is the last operation error, or ctx's error
// when the context ended first; in that case no terminal attempt is reported.
func (p *Policy) Execute(ctx context.Context, op Operation, observe func(Attempt)) (model.Fields, error) {
	maxAttempts := p.MaxAttempts()
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := p.sleep(ctx, p.interRequestDelay()); err != nil {
			return nil, err
		}

		fields, err := op(ctx, attempt)
		if err == nil {
			notify(observe, Attempt{Number: attempt, Outcome: model.OutcomeSuccess})
			return fields, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		lastErr = err

		if IsPermanent(err) || attempt == maxAttempts {
			notify(observe, Attempt{Number: attempt, Err: err, Outcome: model.OutcomeFailure})
			break
		}

		backoff := p.Backoff(attempt) + p.jitter()
		notify(observe, Attempt{Number: attempt, Err: err, Outcome: model.OutcomeRetry, Backoff: backoff})
		logrus.WithFields(logrus.Fields{
			"attempt": attempt,
			"max":     maxAttempts,
			"backoff": backoff,
		}).Debugf("attempt failed, backing off: %v", err)

		if err := p.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func notify(observe func(Attempt), a Attempt) {
	if observe != nil {
		observe(a)
	}
}

func (p *Policy) interRequestDelay() time.Duration {
	if p.DelayMax <= p.DelayMin {
		return p.DelayMin
	}
	return p.DelayMin + p.randDuration(p.DelayMax-p.DelayMin)
}

func (p *Policy) jitter() time.Duration {
	if p.Jitter <= 0 {
		return 0
	}
	return p.randDuration(p.Jitter)
}

// randDuration returns a value in [0, d].
func (p *Policy) randDuration(d time.Duration) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.rnd.Int63n(int64(d) + 1))
}
