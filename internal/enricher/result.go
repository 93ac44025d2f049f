package enricher

import (
	"sync"
	"time"

	"profile-enricher/internal/model"
	"profile-enricher/internal/platform"
)

// maxSampleErrors caps the failure messages kept per platform.
const maxSampleErrors = 5

// JobResult collects everything a job produced: one terminal FieldResult per
// (row, platform) pair, the chronological attempt log and per-platform
// statistics. It is filled concurrently while the job runs and must be treated
// as read-only once Run returns.
type JobResult struct {
	mu       sync.RWMutex
	order    []string
	rows     map[string]map[platform.Platform]model.FieldResult
	attempts []model.AttemptRecord

	now  func() time.Time
	emit func(model.AttemptRecord)

	StartedAt  time.Time
	FinishedAt time.Time
}

func newJobResult(rows []model.RowRecord, now func() time.Time, emit func(model.AttemptRecord)) *JobResult {
	order := make([]string, len(rows))
	for i, r := range rows {
		order[i] = r.ID
	}
	return &JobResult{
		order:     order,
		rows:      make(map[string]map[platform.Platform]model.FieldResult, len(rows)),
		now:       now,
		emit:      emit,
		StartedAt: now(),
	}
}

// appendAttempt stamps rec and appends it. The timestamp is taken under the
// lock so log order and timestamp order agree. emit must not block: it runs
// under the lock to hand records on in log order.
func (r *JobResult) appendAttempt(rec model.AttemptRecord) model.AttemptRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.Timestamp = r.now().UTC()
	r.attempts = append(r.attempts, rec)
	if r.emit != nil {
		r.emit(rec)
	}
	return rec
}

// setField records the terminal result of a pair. A pair that already has a
// terminal result keeps it and false is returned.
func (r *JobResult) setField(fr model.FieldResult) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[fr.RowID]
	if !ok {
		row = make(map[platform.Platform]model.FieldResult, len(platform.All))
		r.rows[fr.RowID] = row
	}
	if _, done := row[fr.Platform]; done {
		return false
	}
	row[fr.Platform] = fr
	return true
}

// RowIDs returns the ids of rows that have at least one terminal result, in
// input order.
func (r *JobResult) RowIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.rows))
	for _, id := range r.order {
		if _, ok := r.rows[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Len is the number of row entries.
func (r *JobResult) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

// Row returns a copy of the results recorded for id.
func (r *JobResult) Row(id string) map[platform.Platform]model.FieldResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.rows[id]
	out := make(map[platform.Platform]model.FieldResult, len(src))
	for p, fr := range src {
		out[p] = fr
	}
	return out
}

// Field returns the terminal result for (id, p).
func (r *JobResult) Field(id string, p platform.Platform) (model.FieldResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fr, ok := r.rows[id][p]
	return fr, ok
}

// Attempts returns a copy of the attempt log.
func (r *JobResult) Attempts() []model.AttemptRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.AttemptRecord, len(r.attempts))
	copy(out, r.attempts)
	return out
}

// Duration is the wall time of the job.
func (r *JobResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// PlatformStats summarises the terminal results of one platform.
type PlatformStats struct {
	Succeeded    int
	NotAvailable int
	Failed       int
	Skipped      int
	// Attempts counts attempt records, skips excluded.
	Attempts     int
	SampleErrors []string
}

// Attempted is the number of pairs that were actually fetched.
func (s PlatformStats) Attempted() int {
	return s.Succeeded + s.NotAvailable + s.Failed
}

// SuccessRate is succeeded / (succeeded + failed + not-available); skipped
// pairs do not count. Zero when nothing was attempted.
func (s PlatformStats) SuccessRate() float64 {
	n := s.Attempted()
	if n == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(n)
}

// Stats derives per-platform statistics for every known platform.
func (r *JobResult) Stats() map[platform.Platform]PlatformStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[platform.Platform]PlatformStats, len(platform.All))
	for _, p := range platform.All {
		stats[p] = PlatformStats{}
	}
	for _, id := range r.order {
		for p, fr := range r.rows[id] {
			st := stats[p]
			switch fr.Status {
			case model.StatusSucceeded:
				st.Succeeded++
			case model.StatusNotAvailable:
				st.NotAvailable++
			case model.StatusFailed:
				st.Failed++
				if len(st.SampleErrors) < maxSampleErrors {
					st.SampleErrors = append(st.SampleErrors, "Row "+fr.RowID+": "+fr.Message)
				}
			case model.StatusSkipped:
				st.Skipped++
			}
			stats[p] = st
		}
	}
	for _, a := range r.attempts {
		if a.Outcome == model.OutcomeSkipped {
			continue
		}
		st := stats[a.Platform]
		st.Attempts++
		stats[a.Platform] = st
	}
	return stats
}
