package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"profile-enricher/internal/config"
	"profile-enricher/internal/input"
	"profile-enricher/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file (optional)")
	inputPath := flag.String("input", "", "Spreadsheet to enrich (.xlsx or .csv)")
	outputPath := flag.String("output", "enriched_results.zip", "Where to write the result archive")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if *inputPath == "" {
		logrus.Fatal("-input is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	logrus.SetLevel(level)

	// Prepare cancellable context that listens to OS signals (Ctrl+C).
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logrus.Info("interrupt received, shutting down gracefully")
		cancel()
	}()

	in, err := os.Open(*inputPath)
	if err != nil {
		logrus.Fatalf("failed to open input: %v", err)
	}
	info, err := in.Stat()
	if err != nil {
		logrus.Fatalf("failed to stat input: %v", err)
	}
	tbl, err := input.Read(in, filepath.Base(*inputPath))
	in.Close()
	if err != nil {
		logrus.Fatalf("failed to read input: %v", err)
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		logrus.Fatalf("failed to initialise pipeline: %v", err)
	}
	defer p.Close()

	out, err := os.Create(*outputPath)
	if err != nil {
		logrus.Fatalf("failed to create output: %v", err)
	}

	job := pipeline.Job{ID: pipeline.NewJobID(), Table: tbl, InputBytes: info.Size()}
	summary, err := p.Run(ctx, job, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(*outputPath)
		p.Close()
		logrus.Fatalf("enrichment terminated with error: %v", err)
	}

	logrus.Infof("wrote %s | rows=%d success_rate=%.4f", *outputPath, summary.TotalRows, summary.OverallSuccessRate)
}
