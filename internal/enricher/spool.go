package enricher

import (
	"sync"

	"profile-enricher/internal/model"
)

// spool is an unbounded FIFO between the attempt log and the sink. push never
// blocks, so a slow sink only delays persistence, never fetching.
type spool struct {
	mu      sync.Mutex
	items   []model.AttemptRecord
	closed  bool
	pending chan struct{}
}

func newSpool() *spool {
	return &spool{pending: make(chan struct{}, 1)}
}

func (q *spool) push(rec model.AttemptRecord) {
	q.mu.Lock()
	q.items = append(q.items, rec)
	q.mu.Unlock()
	q.wake()
}

// close lets drain return once the queue is empty.
func (q *spool) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *spool) wake() {
	select {
	case q.pending <- struct{}{}:
	default:
	}
}

// drain hands records to write in push order until the spool is closed and
// empty.
func (q *spool) drain(write func(model.AttemptRecord)) {
	for {
		q.mu.Lock()
		batch := q.items
		q.items = nil
		closed := q.closed
		q.mu.Unlock()

		for _, rec := range batch {
			write(rec)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.pending
	}
}
