package report

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"profile-enricher/internal/enricher"
	"profile-enricher/internal/input"
	"profile-enricher/internal/model"
	"profile-enricher/internal/photo"
	"profile-enricher/internal/platform"
)

// Archive entry names.
const (
	WorkbookName = "enriched.xlsx"
	SummaryName  = "summary.json"
)

// Options controls WriteArchive.
type Options struct {
	JobID string
	// PhotosDir is where the photo saver wrote this job's files.
	PhotosDir string
	Streaming bool
}

// WriteArchive writes the zip handed back to the user and returns the
// summary it contains. Only photos referenced by this job are included.
func WriteArchive(w io.Writer, tbl *input.Table, res *enricher.JobResult, opts Options) (Summary, error) {
	summary := BuildSummary(opts.JobID, len(tbl.Rows), res)

	var book bytes.Buffer
	if err := WriteWorkbook(&book, tbl, res, opts.Streaming); err != nil {
		return summary, err
	}
	summaryJSON, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return summary, fmt.Errorf("failed to encode summary: %w", err)
	}

	zw := zip.NewWriter(w)
	if err := addFile(zw, WorkbookName, book.Bytes()); err != nil {
		return summary, err
	}
	if err := addFile(zw, SummaryName, summaryJSON); err != nil {
		return summary, err
	}
	for _, rel := range PhotoPaths(res) {
		data, err := os.ReadFile(filepath.Join(opts.PhotosDir, path.Base(rel)))
		if err != nil {
			logrus.Warnf("photo %s missing from archive: %v", rel, err)
			continue
		}
		if err := addFile(zw, rel, data); err != nil {
			return summary, err
		}
	}
	if err := zw.Close(); err != nil {
		return summary, fmt.Errorf("failed to finish archive: %w", err)
	}
	return summary, nil
}

// PhotoPaths lists the distinct photo paths of succeeded LinkedIn pairs in
// row order.
func PhotoPaths(res *enricher.JobResult) []string {
	var out []string
	seen := map[string]bool{}
	for _, id := range res.RowIDs() {
		fr, ok := res.Field(id, platform.LinkedIn)
		if !ok || fr.Status != model.StatusSucceeded {
			continue
		}
		rel := fr.Value(platform.ColPhotoPath)
		if rel == platform.NotAvailable || !strings.HasPrefix(rel, photo.RelDir+"/") || seen[rel] {
			continue
		}
		seen[rel] = true
		out = append(out, rel)
	}
	return out
}

func addFile(zw *zip.Writer, name string, data []byte) error {
	fw, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
