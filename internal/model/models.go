package model

import (
	"strings"
	"time"

	"profile-enricher/internal/platform"
)

// RowRecord is one candidate row handed to the scheduler. A platform whose
// URL is missing or blank is skipped for this row.
type RowRecord struct {
	ID   string
	URLs map[platform.Platform]string
	// Cells keeps the original spreadsheet values, aligned with the input
	// headers, so the writer can reproduce them.
	Cells []string
}

// URL returns the trimmed target URL for p.
func (r RowRecord) URL(p platform.Platform) string {
	return strings.TrimSpace(r.URLs[p])
}

// Fields maps enriched column names to values.
type Fields map[string]string

// AllNotAvailable reports whether no field carries a real value.
func (f Fields) AllNotAvailable() bool {
	for _, v := range f {
		if v != "" && v != platform.NotAvailable {
			return false
		}
	}
	return true
}

// FetchRequest is what a platform fetch collaborator receives.
type FetchRequest struct {
	RowID    string
	Platform platform.Platform
	URL      string
	Attempt  int
}

// Outcome of a single attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeRetry   Outcome = "retry"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

// AttemptRecord is an immutable entry of the attempt log.
type AttemptRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	RowID     string            `json:"row_id"`
	Platform  platform.Platform `json:"platform"`
	URL       string            `json:"url"`
	Attempt   int               `json:"attempt"`
	Outcome   Outcome           `json:"status"`
	Message   string            `json:"message"`
}

// Status is the terminal state of a (row, platform) pair.
type Status string

const (
	StatusSucceeded    Status = "succeeded"
	StatusNotAvailable Status = "not-available"
	StatusFailed       Status = "failed"
	StatusSkipped      Status = "skipped"
)

// FieldResult is the single terminal record for a (row, platform) pair.
type FieldResult struct {
	RowID    string
	Platform platform.Platform
	Status   Status
	// Fields holds one entry per enriched column of the platform; failed,
	// skipped and not-available pairs carry the N/A sentinel.
	Fields  Fields
	Message string
}

// Value returns the value of column, or the N/A sentinel.
func (r FieldResult) Value(column string) string {
	if v, ok := r.Fields[column]; ok && v != "" {
		return v
	}
	return platform.NotAvailable
}

// NotAvailableFields returns the sentinel for every column of p.
func NotAvailableFields(p platform.Platform) Fields {
	f := make(Fields, len(p.Columns()))
	for _, c := range p.Columns() {
		f[c] = platform.NotAvailable
	}
	return f
}
