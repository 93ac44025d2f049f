package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profile-enricher/internal/config"
	"profile-enricher/internal/model"
	"profile-enricher/internal/platform"
)

func record(row string, n int, out model.Outcome) model.AttemptRecord {
	return model.AttemptRecord{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		RowID:     row,
		Platform:  platform.GitHub,
		URL:       "https://github.com/" + row,
		Attempt:   n,
		Outcome:   out,
		Message:   "msg " + row,
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVSinkWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()

	s, err := NewCSVSink(dir)
	require.NoError(t, err)
	require.NoError(t, s.Write(record("a", 1, model.OutcomeRetry)))
	require.NoError(t, s.Write(record("a", 2, model.OutcomeSuccess)))
	require.NoError(t, s.Close())

	// Reopening appends without repeating the header.
	s, err = NewCSVSink(dir)
	require.NoError(t, err)
	require.NoError(t, s.Write(record("b", 1, model.OutcomeFailure)))
	require.NoError(t, Close(s))

	rows := readCSV(t, filepath.Join(dir, LogFileName))
	require.Len(t, rows, 4)
	assert.Equal(t, LogColumns, rows[0])
	assert.Equal(t, []string{"2026-01-02T03:04:05Z", "a", "github", "https://github.com/a", "1", "retry", "msg a"}, rows[1])
	assert.Equal(t, "success", rows[2][5])
	assert.Equal(t, "b", rows[3][1])
}

type flakySink struct {
	failures int
	calls    int
	got      []model.AttemptRecord
}

func (f *flakySink) Write(rec model.AttemptRecord) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection reset")
	}
	f.got = append(f.got, rec)
	return nil
}

func TestRetrySink(t *testing.T) {
	inner := &flakySink{failures: 2}
	s := NewRetrySink(inner, 3, 1)
	require.NoError(t, s.Write(record("a", 1, model.OutcomeSuccess)))
	assert.Equal(t, 3, inner.calls)
	assert.Len(t, inner.got, 1)

	inner = &flakySink{failures: 5}
	s = NewRetrySink(inner, 2, 1)
	assert.Error(t, s.Write(record("a", 1, model.OutcomeSuccess)))
	assert.Equal(t, 2, inner.calls)

	assert.Nil(t, NewRetrySink(nil, 3, 1))
	assert.NoError(t, Close(s))
}

func TestTableIdent(t *testing.T) {
	assert.Equal(t, `"enrich_logs"`, tableIdent(""))
	assert.Equal(t, `"audit"."attempts"`, tableIdent("audit.attempts"))
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), config.StorageConfig{Type: "none"}, "job")
	require.NoError(t, err)
	assert.Nil(t, s)

	cfg := config.StorageConfig{Type: "csv"}
	cfg.CSV.OutputDir = filepath.Join(t.TempDir(), "logs")
	s, err = Open(context.Background(), cfg, "job")
	require.NoError(t, err)
	require.IsType(t, &RetrySink{}, s)
	require.NoError(t, s.Write(record("a", 1, model.OutcomeSuccess)))
	require.NoError(t, Close(s))
	assert.Len(t, readCSV(t, filepath.Join(cfg.CSV.OutputDir, LogFileName)), 2)

	_, err = Open(context.Background(), config.StorageConfig{Type: "mysql"}, "job")
	assert.Error(t, err)
}
