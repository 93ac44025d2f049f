package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"profile-enricher/internal/model"
)

// LogFileName is the file CSVSink appends to inside its output directory.
const LogFileName = "enrich_logs.csv"

// LogColumns is the column order of the attempt log.
var LogColumns = []string{"timestamp", "row_id", "platform", "url", "attempt", "status", "message"}

// CSVSink appends attempt records to a single CSV file, flushing after every
// row so an interrupted job still leaves its progress on disk. When the file
// already exists (from a previous run) rows are appended without a new header.
type CSVSink struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVSink opens (or creates) outputDir/enrich_logs.csv, creating the
// directory tree if it doesn't already exist.
func NewCSVSink(outputDir string) (*CSVSink, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create csv output directory: %w", err)
	}

	fp := filepath.Join(outputDir, LogFileName)
	_, err := os.Stat(fp)
	exists := !os.IsNotExist(err)

	f, err := os.OpenFile(fp, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file %s: %w", fp, err)
	}
	w := csv.NewWriter(f)

	if !exists {
		if err := w.Write(LogColumns); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write csv header for %s: %w", fp, err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to flush csv header for %s: %w", fp, err)
		}
	}

	return &CSVSink{file: f, writer: w}, nil
}

// Write appends rec as one CSV row.
func (s *CSVSink) Write(rec model.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writer.Write(Row(rec)); err != nil {
		return err
	}
	s.writer.Flush()
	return s.writer.Error()
}

// Close flushes and closes the file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// Row renders rec in LogColumns order.
func Row(rec model.AttemptRecord) []string {
	return []string{
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.RowID,
		rec.Platform.String(),
		rec.URL,
		strconv.Itoa(rec.Attempt),
		string(rec.Outcome),
		rec.Message,
	}
}
