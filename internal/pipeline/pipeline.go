// Package pipeline runs one enrichment job end to end: it wires the fetchers,
// the attempt-log sink and the scheduler, then packages the result.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"profile-enricher/internal/config"
	"profile-enricher/internal/enricher"
	"profile-enricher/internal/input"
	"profile-enricher/internal/photo"
	"profile-enricher/internal/platform"
	"profile-enricher/internal/report"
	"profile-enricher/internal/scrapers"
	"profile-enricher/internal/sink"
)

// Job is one uploaded file.
type Job struct {
	ID    string
	Table *input.Table
	// InputBytes is the size of the uploaded file.
	InputBytes int64
	// PhotosDir overrides the configured photo directory.
	PhotosDir string
}

// NewJobID returns a fresh job identifier.
func NewJobID() string {
	return uuid.NewString()
}

// FetcherFactory builds the fetchers of one job around its photo saver.
type FetcherFactory func(cfg *config.Config, photos scrapers.PhotoSaver) map[platform.Platform]enricher.Fetcher

// Pipeline holds what jobs share: the configuration, the HTTP client and the
// optional headless browser.
type Pipeline struct {
	cfg       *config.Config
	client    *scrapers.Client
	browser   *scrapers.Browser
	fetchers  FetcherFactory
	schedOpts []enricher.Option
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFetcherFactory replaces the real platform scrapers.
func WithFetcherFactory(f FetcherFactory) Option {
	return func(p *Pipeline) { p.fetchers = f }
}

// WithSchedulerOptions passes options to every job's scheduler.
func WithSchedulerOptions(opts ...enricher.Option) Option {
	return func(p *Pipeline) { p.schedOpts = append(p.schedOpts, opts...) }
}

// New validates a normalized copy of cfg and prepares the shared
// collaborators. The copy is never modified afterwards.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	cfg = cfg.Clone()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	p := &Pipeline{
		cfg:    cfg,
		client: scrapers.NewClient(cfg.RequestTimeout(), cfg.Browser.UserAgent),
	}
	if cfg.Browser.Enabled {
		p.browser = scrapers.NewBrowser(cfg.Browser, cfg.RequestTimeout())
	}
	p.fetchers = p.scraperFetchers
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

func (p *Pipeline) scraperFetchers(cfg *config.Config, photos scrapers.PhotoSaver) map[platform.Platform]enricher.Fetcher {
	var finder scrapers.PhotoFinder
	if p.browser != nil {
		finder = p.browser
	}
	return scrapers.NewFetchers(cfg, p.client, photos, finder)
}

// Config returns the validated configuration.
func (p *Pipeline) Config() *config.Config {
	return p.cfg
}

// Run enriches job and writes the result archive to w. When ctx is cancelled
// the partial result is discarded and ctx's error returned.
func (p *Pipeline) Run(ctx context.Context, job Job, w io.Writer) (report.Summary, error) {
	if job.Table == nil {
		return report.Summary{}, fmt.Errorf("job %s has no input", job.ID)
	}
	photosDir := job.PhotosDir
	if photosDir == "" {
		photosDir = p.cfg.PhotosDir
	}
	log := logrus.WithField("job", job.ID)

	sk, err := sink.Open(ctx, p.cfg.Storage, job.ID)
	if err != nil {
		return report.Summary{}, fmt.Errorf("failed to open attempt log: %w", err)
	}
	defer func() {
		if err := sink.Close(sk); err != nil {
			log.Warnf("failed to close attempt log: %v", err)
		}
	}()

	opts := append([]enricher.Option(nil), p.schedOpts...)
	if sk != nil {
		opts = append(opts, enricher.WithSink(sk))
	}
	fetchers := p.fetchers(p.cfg, photo.NewSaver(p.client, photosDir))
	sched, err := enricher.New(p.cfg, fetchers, opts...)
	if err != nil {
		return report.Summary{}, err
	}

	log.Infof("job started | rows=%d bytes=%d", len(job.Table.Rows), job.InputBytes)
	started := time.Now()
	res, err := sched.Run(ctx, job.Table.Rows)
	if err != nil {
		return report.Summary{}, err
	}

	streaming := report.NeedsStreaming(job.InputBytes, job.Table.Cells(), p.cfg.Files)
	if streaming {
		log.Info("large input, streaming workbook rows")
	}
	summary, err := report.WriteArchive(w, job.Table, res, report.Options{
		JobID:     job.ID,
		PhotosDir: photosDir,
		Streaming: streaming,
	})
	if err != nil {
		return summary, fmt.Errorf("failed to write results: %w", err)
	}

	log.Infof("job finished | rows=%d success_rate=%.4f elapsed=%s",
		summary.TotalRows, summary.OverallSuccessRate, time.Since(started).Round(time.Millisecond))
	return summary, nil
}

// Close releases the shared browser, if any.
func (p *Pipeline) Close() {
	if p.browser != nil {
		p.browser.Close()
	}
}
