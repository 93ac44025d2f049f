package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"profile-enricher/internal/api"
	"profile-enricher/internal/config"
	"profile-enricher/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file (optional)")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	logrus.SetLevel(level)

	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8080"
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		logrus.Fatalf("failed to initialise pipeline: %v", err)
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := api.NewServer(p, cfg)
	if err := srv.Run(ctx, port); err != nil {
		p.Close()
		logrus.Fatalf("server stopped with error: %v", err)
	}
}
