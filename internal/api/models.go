package api

import (
	"time"

	"profile-enricher/internal/report"
)

// Job states reported by GET /jobs/{id}.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusFinished  = "finished"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// JobResponse is returned after a successful job creation.
type JobResponse struct {
	JobID string `json:"job_id"`
}

// JobStatus represents the runtime state of a launched job.
type JobStatus struct {
	JobID      string          `json:"job_id"`
	Status     string          `json:"status"` // queued | running | finished | error | cancelled
	FileName   string          `json:"file_name"`
	Rows       int             `json:"rows"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Summary    *report.Summary `json:"summary,omitempty"`
}

func (s *JobStatus) terminal() bool {
	switch s.Status {
	case StatusFinished, StatusError, StatusCancelled:
		return true
	}
	return false
}
