package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"profile-enricher/internal/input"
	"profile-enricher/internal/pipeline"
)

// UploadField is the multipart field carrying the spreadsheet.
const UploadField = "excel"

// ResultFileName is the attachment name of GET /jobs/{id}/result.
const ResultFileName = "enriched_results.zip"

// handleJobs acts as a multiplexer: POST creates new job, other verbs not allowed.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createJob(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobByID routes GET and DELETE for specific job IDs.
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	// Expected path: /jobs/{id} or /jobs/{id}/result
	rest := strings.TrimPrefix(r.URL.Path, "/jobs/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		http.Error(w, "job id missing", http.StatusBadRequest)
		return
	}

	switch {
	case sub == "result" && r.Method == http.MethodGet:
		s.getResult(w, id)
	case sub != "":
		http.NotFound(w, r)
	case r.Method == http.MethodGet:
		s.getJob(w, id)
	case r.Method == http.MethodDelete:
		s.cancelJob(w, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// createJob handles POST /jobs
func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.Files.MaxBytes
	// Leave room for the multipart envelope around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	defer r.Body.Close()

	file, header, err := r.FormFile(UploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("file exceeds %d bytes", maxBytes), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, fmt.Sprintf("multipart field %q is required", UploadField), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !input.Supported(header.Filename) {
		http.Error(w, "only .xlsx and .csv files are accepted", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if int64(len(data)) > maxBytes {
		http.Error(w, fmt.Sprintf("file exceeds %d bytes", maxBytes), http.StatusRequestEntityTooLarge)
		return
	}

	tbl, err := input.Read(bytes.NewReader(data), header.Filename)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	jobID := pipeline.NewJobID()
	status := &JobStatus{
		JobID:     jobID,
		Status:    StatusQueued,
		FileName:  header.Filename,
		Rows:      len(tbl.Rows),
		StartedAt: time.Now(),
	}
	ctx, cancel := context.WithCancel(s.baseCtx)

	s.mu.Lock()
	s.jobs[jobID] = &jobEntry{status: status, cancel: cancel}
	s.mu.Unlock()

	job := pipeline.Job{
		ID:         jobID,
		Table:      tbl,
		InputBytes: int64(len(data)),
		PhotosDir:  s.photosDir(jobID),
	}
	s.wg.Add(1)
	go s.runJob(ctx, job)

	logrus.Infof("job %s queued | file=%s rows=%d", jobID, header.Filename, len(tbl.Rows))
	writeJSON(w, http.StatusAccepted, JobResponse{JobID: jobID})
}

// runJob executes the pipeline and records its outcome on the job entry.
func (s *Server) runJob(ctx context.Context, job pipeline.Job) {
	defer s.wg.Done()

	s.mu.Lock()
	entry := s.jobs[job.ID]
	if entry == nil || entry.status.terminal() {
		// Cancelled before it started.
		s.mu.Unlock()
		return
	}
	entry.status.Status = StatusRunning
	s.mu.Unlock()

	var buf bytes.Buffer
	summary, err := s.runner.Run(ctx, job, &buf)
	defer entry.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.status.terminal() {
		// DELETE got here first; drop whatever the run produced.
		return
	}
	finished := time.Now()
	entry.status.FinishedAt = &finished
	switch {
	case ctx.Err() != nil:
		entry.status.Status = StatusCancelled
	case err != nil:
		logrus.Errorf("job %s failed: %v", job.ID, err)
		entry.status.Status = StatusError
		entry.status.Error = err.Error()
	default:
		entry.status.Status = StatusFinished
		entry.status.Summary = &summary
		entry.result = buf.Bytes()
	}
}

// getJob handles GET /jobs/{id}
func (s *Server) getJob(w http.ResponseWriter, id string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.jobs[id]
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, entry.status)
}

// getResult handles GET /jobs/{id}/result
func (s *Server) getResult(w http.ResponseWriter, id string) {
	s.mu.RLock()
	entry, ok := s.jobs[id]
	var (
		status string
		result []byte
	)
	if ok {
		status = entry.status.Status
		result = entry.result
	}
	s.mu.RUnlock()

	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if status != StatusFinished {
		http.Error(w, fmt.Sprintf("job is %s", status), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ResultFileName))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result); err != nil {
		logrus.Warnf("job %s: failed to send result: %v", id, err)
	}
}

// cancelJob handles DELETE /jobs/{id}. A pending job is cancelled; a job that
// already ended is removed from the registry.
func (s *Server) cancelJob(w http.ResponseWriter, id string) {
	s.mu.Lock()
	entry, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if entry.status.terminal() {
		delete(s.jobs, id)
	} else {
		entry.status.Status = StatusCancelled
		finished := time.Now()
		entry.status.FinishedAt = &finished
	}
	s.mu.Unlock()

	entry.cancel()
	logrus.Infof("job %s cancelled", id)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("failed to encode response: %v", err)
	}
}
