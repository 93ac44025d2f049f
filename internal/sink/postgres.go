package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"profile-enricher/internal/model"
)

// DefaultTable receives attempt records when no table is configured.
const DefaultTable = "enrich_logs"

const writeTimeout = 10 * time.Second

// PostgresSink inserts attempt records into a Postgres table.
type PostgresSink struct {
	pool  *pgxpool.Pool
	table string
	jobID string
}

// NewPostgresSink connects to dsn and makes sure the target table exists.
// jobID tags every row so several runs can share one table.
func NewPostgresSink(ctx context.Context, dsn, table, jobID string) (*PostgresSink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := &PostgresSink{pool: pool, table: tableIdent(table), jobID: jobID}
	if err := s.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func tableIdent(table string) string {
	if strings.TrimSpace(table) == "" {
		table = DefaultTable
	}
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

func (s *PostgresSink) ensureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		id         BIGSERIAL PRIMARY KEY,
		job_id     TEXT        NOT NULL,
		ts         TIMESTAMPTZ NOT NULL,
		row_id     TEXT        NOT NULL,
		platform   TEXT        NOT NULL,
		url        TEXT        NOT NULL,
		attempt    INT         NOT NULL,
		status     TEXT        NOT NULL,
		message    TEXT        NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Write inserts rec.
func (s *PostgresSink) Write(rec model.AttemptRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table+` (job_id, ts, row_id, platform, url, attempt, status, message)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		s.jobID, rec.Timestamp, rec.RowID, rec.Platform.String(), rec.URL, rec.Attempt, string(rec.Outcome), rec.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to insert attempt record: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
