package enricher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"profile-enricher/internal/config"
	"profile-enricher/internal/model"
	"profile-enricher/internal/platform"
	"profile-enricher/internal/ratelimit"
	"profile-enricher/internal/retry"
	"profile-enricher/internal/sink"
)

var (
	// ErrNoRows is returned before scheduling when the job has no input rows.
	ErrNoRows = errors.New("no rows to enrich")
	// ErrDuplicateRow is returned when two rows share an id.
	ErrDuplicateRow = errors.New("duplicate row id")
	// ErrEmptyRowID is returned for a row without an id.
	ErrEmptyRowID = errors.New("empty row id")
)

// Scheduler enriches rows by running one FetchTask per (row, platform) pair on
// a fixed-size worker pool. It is decoupled from concrete fetchers and sinks
// so tests can inject fakes.
type Scheduler struct {
	cfg       *config.Config
	fetchers  map[platform.Platform]Fetcher
	sink      sink.Sink
	retryOpts []retry.Option
	now       func() time.Time
	platforms []platform.Platform
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSink forwards every attempt record to s.
func WithSink(s sink.Sink) Option {
	return func(sc *Scheduler) { sc.sink = s }
}

// WithRetryOptions passes options to every job's retry policy.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(sc *Scheduler) { sc.retryOpts = append(sc.retryOpts, opts...) }
}

// WithClock replaces time.Now for attempt timestamps.
func WithClock(now func() time.Time) Option {
	return func(sc *Scheduler) { sc.now = now }
}

// New validates a normalized copy of cfg and builds a Scheduler. cfg itself is
// only read.
func New(cfg *config.Config, fetchers map[platform.Platform]Fetcher, opts ...Option) (*Scheduler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	// The scheduler works on its own copy so jobs sharing cfg never write to it.
	own := cfg.Clone()
	own.Normalize()
	if err := own.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	s := &Scheduler{
		cfg:       own,
		fetchers:  fetchers,
		now:       time.Now,
		platforms: platform.All,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Run enriches rows and blocks until every (row, platform) pair reached a
// terminal state or ctx is done. Per-pair failures never abort the job; the
// only error before scheduling is invalid input. When ctx ends early the
// partial result is returned together with ctx's error.
func (s *Scheduler) Run(ctx context.Context, rows []model.RowRecord) (*JobResult, error) {
	if err := validateRows(rows); err != nil {
		return nil, err
	}

	// Every job starts with full, private buckets.
	env := &taskEnv{
		fetchers: s.fetchers,
		limiters: ratelimit.New(s.cfg.Platforms),
		policy:   retry.NewPolicy(s.cfg.Retry, s.cfg.Delay, s.retryOpts...),
	}

	var (
		queue   *spool
		drained chan struct{}
		emit    func(model.AttemptRecord)
	)
	if s.sink != nil {
		queue = newSpool()
		drained = make(chan struct{})
		go s.drain(queue, drained)
		emit = queue.push
	}
	env.result = newJobResult(rows, s.now, emit)

	workers := s.cfg.Workers
	logrus.Infof("Starting enrichment | rows=%d platforms=%d workers=%d", len(rows), len(s.platforms), workers)

	tasks := make(chan FetchTask, workers*2)
	var wg sync.WaitGroup
	worker := func() {
		defer wg.Done()
		for t := range tasks {
			if ctx.Err() != nil {
				// Drain without running so the producer never blocks.
				continue
			}
			t.Run(ctx, env)
		}
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker()
	}

	// Row-major interleaving: every platform of row 1, then row 2, ...
enqueue:
	for _, row := range rows {
		for _, p := range s.platforms {
			t := FetchTask{RowID: row.ID, Platform: p, URL: row.URL(p)}
			select {
			case <-ctx.Done():
				break enqueue
			case tasks <- t:
			}
		}
	}
	close(tasks)
	wg.Wait()

	if queue != nil {
		// Fetching is over; wait for the sink to catch up before it is closed.
		queue.close()
		<-drained
	}

	res := env.result
	res.FinishedAt = s.now()
	logrus.Infof("Enrichment finished | rows=%d attempts=%d elapsed=%s",
		res.Len(), len(res.Attempts()), res.Duration().Round(time.Millisecond))

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// drain forwards records to the sink in order. Sink errors are logged only.
func (s *Scheduler) drain(queue *spool, done chan<- struct{}) {
	defer close(done)
	queue.drain(func(rec model.AttemptRecord) {
		if err := s.sink.Write(rec); err != nil {
			logrus.Warnf("failed to persist attempt | row=%s platform=%s err=%v", rec.RowID, rec.Platform, err)
		}
	})
}

func validateRows(rows []model.RowRecord) error {
	if len(rows) == 0 {
		return ErrNoRows
	}
	seen := make(map[string]struct{}, len(rows))
	for i, r := range rows {
		if strings.TrimSpace(r.ID) == "" {
			return fmt.Errorf("%w at index %d", ErrEmptyRowID, i)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateRow, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}
