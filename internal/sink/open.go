package sink

import (
	"context"
	"fmt"

	"profile-enricher/internal/config"
)

// Open builds the sink selected by cfg.Type, wrapped with retries. It returns
// nil when persistence is disabled.
func Open(ctx context.Context, cfg config.StorageConfig, jobID string) (Sink, error) {
	var (
		s   Sink
		err error
	)
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "csv":
		s, err = NewCSVSink(cfg.CSV.OutputDir)
	case "postgres":
		s, err = NewPostgresSink(ctx, cfg.Postgres.DSN, cfg.Postgres.Table, jobID)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return NewRetrySink(s, cfg.Retry.Attempts, cfg.Retry.DelayMS), nil
}
