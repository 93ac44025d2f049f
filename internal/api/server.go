package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"profile-enricher/internal/config"
	"profile-enricher/internal/pipeline"
	"profile-enricher/internal/report"
)

const shutdownTimeout = 10 * time.Second

// Runner executes one enrichment job. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, job pipeline.Job, w io.Writer) (report.Summary, error)
}

// Server encapsulates the HTTP server, router and job registry.
type Server struct {
	mux    *http.ServeMux
	runner Runner
	cfg    *config.Config

	mu   sync.RWMutex
	jobs map[string]*jobEntry

	// baseCtx parents every job so shutdown cancels them all.
	baseCtx    context.Context
	cancelJobs context.CancelFunc
	wg         sync.WaitGroup
}

type jobEntry struct {
	status *JobStatus
	cancel context.CancelFunc // allows cancellation via DELETE /jobs/{id}
	result []byte
}

// NewServer builds a server with basic logging and panic recovery middlewares.
func NewServer(runner Runner, cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		mux:        http.NewServeMux(),
		runner:     runner,
		cfg:        cfg,
		jobs:       make(map[string]*jobEntry),
		baseCtx:    ctx,
		cancelJobs: cancel,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/jobs", s.handleJobs)     // POST /jobs
	s.mux.HandleFunc("/jobs/", s.handleJobByID) // GET/DELETE /jobs/{id}, GET /jobs/{id}/result
}

// Handler returns the router wrapped in the middlewares.
func (s *Server) Handler() http.Handler {
	return s.recoveryMiddleware(s.loggingMiddleware(s.mux))
}

// Run serves on port until ctx is done, then shuts down gracefully and
// cancels the jobs still running.
func (s *Server) Run(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.Infof("HTTP server running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.Close()
		return err
	})
	return g.Wait()
}

// Close cancels every job and waits for them to stop.
func (s *Server) Close() {
	s.cancelJobs()
	s.wg.Wait()
}

func (s *Server) photosDir(jobID string) string {
	return filepath.Join(s.cfg.PhotosDir, jobID)
}

// Simple request logger middleware.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logrus.Infof("%s %s (%s)", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

// recoveryMiddleware catches panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logrus.Errorf("panic recovered: %v", rec)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
