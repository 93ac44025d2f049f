package sink

import (
	"time"

	"github.com/sirupsen/logrus"

	"profile-enricher/internal/model"
)

// RetrySink decorates another Sink adding automatic retry capabilities.
// It attempts to write the record up to the configured number of attempts,
// waiting the specified delay between retries, so a briefly unavailable
// database does not lose attempt-log entries.
//
// If attempts is < 1, it defaults to 1 (no retries).
// If delayMs is 0, it defaults to 1000ms.
//
// The RetrySink propagates the error from the last attempt if all retries
// fail.
type RetrySink struct {
	inner    Sink
	attempts int
	delay    time.Duration
}

// NewRetrySink wraps inner with retry behaviour. A nil inner yields nil.
func NewRetrySink(inner Sink, attempts int, delayMs int) Sink {
	if inner == nil {
		return nil
	}
	if attempts < 1 {
		attempts = 1
	}
	if delayMs == 0 {
		delayMs = 1000
	}
	return &RetrySink{
		inner:    inner,
		attempts: attempts,
		delay:    time.Duration(delayMs) * time.Millisecond,
	}
}

// Write forwards the call to the wrapped sink retrying on failure.
func (r *RetrySink) Write(rec model.AttemptRecord) error {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err = r.inner.Write(rec)
		if err == nil {
			return nil
		}

		logrus.Warnf("sink write failed (attempt %d/%d): %v", attempt, r.attempts, err)

		if attempt < r.attempts {
			time.Sleep(r.delay)
		}
	}
	return err
}

// Close closes the wrapped sink.
func (r *RetrySink) Close() error {
	return Close(r.inner)
}
