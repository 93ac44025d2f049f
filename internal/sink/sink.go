package sink

import "profile-enricher/internal/model"

// Sink persists attempt-log records as they are produced (CSV files,
// Postgres, etc.).
//
// The scheduler delivers records from a single goroutine in attempt-log order,
// but implementations may still be shared between jobs and should be safe for
// concurrent use.
//
// A failing Write never fails the job; the scheduler logs the error and moves
// on, so wrap flaky back-ends in a RetrySink.
type Sink interface {
	// Write persists one attempt record.
	Write(model.AttemptRecord) error
}

// Closer is implemented by sinks holding files or connections.
type Closer interface {
	Close() error
}

// Close closes s when it holds resources.
func Close(s Sink) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}
