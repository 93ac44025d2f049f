// Package input reads candidate spreadsheets into row records.
package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"profile-enricher/internal/model"
	"profile-enricher/internal/platform"
)

var (
	// ErrEmpty is returned for a file without data rows.
	ErrEmpty = errors.New("file is empty (no data rows)")
	// ErrMissingColumns is returned when a required URL column is absent.
	ErrMissingColumns = errors.New("missing required columns")
	// ErrUnsupportedFormat is returned for extensions other than .xlsx and .csv.
	ErrUnsupportedFormat = errors.New("unsupported file type")
)

// IDColumn is the optional column holding the row identifier.
const IDColumn = "RollNo"

// UnknownID is used when a row has neither an id nor a usable profile URL.
const UnknownID = "unknown"

// Table is a parsed input file.
type Table struct {
	// Headers are the input column names, canonicalised where recognised.
	Headers []string
	Rows    []model.RowRecord
}

// Cells is the number of data cells, used to choose the output writer.
func (t *Table) Cells() int {
	return len(t.Headers) * len(t.Rows)
}

// Supported reports whether name has an extension Read understands.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".csv":
		return true
	}
	return false
}

// Read parses r according to the extension of name.
func Read(r io.Reader, name string) (*Table, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".xlsx":
		return ReadXLSX(r)
	case ".csv":
		return ReadCSV(r)
	default:
		return nil, fmt.Errorf("%w %q, expected .xlsx or .csv", ErrUnsupportedFormat, ext)
	}
}

// ReadXLSX reads the first sheet of a workbook row by row.
func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmpty
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	defer rows.Close()

	return build(func() ([]string, error) {
		if !rows.Next() {
			if err := rows.Error(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		return rows.Columns()
	})
}

// ReadCSV reads a comma separated file whose first record is the header.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return build(cr.Read)
}

// build consumes records from next until io.EOF.
func build(next func() ([]string, error)) (*Table, error) {
	raw, err := next()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	headers := canonicalHeaders(raw)
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	var missing []string
	for _, p := range platform.All {
		if _, ok := index[p.URLColumn()]; !ok {
			missing = append(missing, strings.ToLower(p.URLColumn()))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	t := &Table{Headers: headers}
	ids := newIDSet()
	for line := 2; ; line++ {
		rec, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", line, err)
		}
		if blank(rec) {
			continue
		}

		cells := make([]string, len(headers))
		for i := range cells {
			if i < len(rec) {
				cells[i] = strings.TrimSpace(rec[i])
			}
		}
		row := model.RowRecord{
			URLs:  make(map[platform.Platform]string, len(platform.All)),
			Cells: cells,
		}
		for _, p := range platform.All {
			row.URLs[p] = cells[index[p.URLColumn()]]
		}
		id := ""
		if i, ok := index[IDColumn]; ok {
			id = cells[i]
		}
		row.ID = ids.unique(rowID(id, row))
		t.Rows = append(t.Rows, row)
	}

	if len(t.Rows) == 0 {
		return nil, ErrEmpty
	}
	logrus.Infof("input parsed | rows=%d columns=%d", len(t.Rows), len(headers))
	return t, nil
}

// canonicalHeaders maps known headers case-insensitively to their canonical
// spelling and keeps the others as written.
func canonicalHeaders(raw []string) []string {
	known := map[string]string{strings.ToLower(IDColumn): IDColumn}
	for _, p := range platform.All {
		known[strings.ToLower(p.URLColumn())] = p.URLColumn()
	}
	out := make([]string, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if c, ok := known[strings.ToLower(h)]; ok {
			h = c
		}
		if h == "" {
			h = "col_" + strconv.Itoa(i+1)
		}
		out[i] = h
	}
	return out
}

// rowID prefers the roll number, then the GitHub user, then the LinkedIn slug.
func rowID(id string, row model.RowRecord) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	for _, p := range []platform.Platform{platform.GitHub, platform.LinkedIn} {
		if u := platform.Username(row.URL(p), p); u != "" {
			return u
		}
	}
	return UnknownID
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// idSet hands out ids that are unique within one file. Repeats get a -2, -3,
// ... suffix.
type idSet map[string]int

func newIDSet() idSet { return idSet{} }

func (s idSet) unique(id string) string {
	if _, taken := s[id]; !taken {
		s[id] = 1
		return id
	}
	for {
		s[id]++
		candidate := id + "-" + strconv.Itoa(s[id])
		if _, taken := s[candidate]; !taken {
			s[candidate] = 1
			return candidate
		}
	}
}
