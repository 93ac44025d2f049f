package report

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"profile-enricher/internal/config"
	"profile-enricher/internal/enricher"
	"profile-enricher/internal/input"
	"profile-enricher/internal/model"
	"profile-enricher/internal/platform"
	"profile-enricher/internal/sink"
)

const (
	DataSheet = "Sheet1"
	LogSheet  = "Enrich_Logs"

	maxColumnWidth = 50
)

// NeedsStreaming reports whether an input of the given size should be
// written with the stream writer.
func NeedsStreaming(sizeBytes int64, cells int, files config.FilesConfig) bool {
	return (files.LargeBytes > 0 && sizeBytes > files.LargeBytes) ||
		(files.LargeCells > 0 && cells > files.LargeCells)
}

// enrichedRows builds the data sheet: the original columns followed by the
// enriched ones. An enriched column already present in the input is filled
// in place.
func enrichedRows(tbl *input.Table, res *enricher.JobResult) [][]any {
	headers := append([]string(nil), tbl.Headers...)
	type target struct {
		p   platform.Platform
		col string
	}
	targets := map[int]target{}
	for _, p := range platform.All {
		for _, col := range p.Columns() {
			idx := -1
			for i, h := range headers {
				if h == col {
					idx = i
					break
				}
			}
			if idx < 0 {
				headers = append(headers, col)
				idx = len(headers) - 1
			}
			targets[idx] = target{p: p, col: col}
		}
	}

	out := make([][]any, 0, len(tbl.Rows)+1)
	out = append(out, toAny(headers))
	for _, row := range tbl.Rows {
		vals := make([]any, len(headers))
		for i := range headers {
			if t, ok := targets[i]; ok {
				vals[i] = platform.NotAvailable
				if fr, ok := res.Field(row.ID, t.p); ok {
					vals[i] = fr.Value(t.col)
				}
				continue
			}
			if i < len(row.Cells) {
				vals[i] = row.Cells[i]
			} else {
				vals[i] = ""
			}
		}
		out = append(out, vals)
	}
	return out
}

func logRows(attempts []model.AttemptRecord) [][]any {
	out := make([][]any, 0, len(attempts)+1)
	out = append(out, toAny(sink.LogColumns))
	for _, a := range attempts {
		out = append(out, toAny(sink.Row(a)))
	}
	return out
}

// WriteWorkbook writes the enriched workbook to w. With streaming set rows
// are flushed through the excelize stream writer, otherwise column widths
// are fitted to their content.
func WriteWorkbook(w io.Writer, tbl *input.Table, res *enricher.JobResult, streaming bool) error {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(LogSheet); err != nil {
		return fmt.Errorf("failed to add %s sheet: %w", LogSheet, err)
	}

	sheets := []struct {
		name string
		rows [][]any
	}{
		{DataSheet, enrichedRows(tbl, res)},
		{LogSheet, logRows(res.Attempts())},
	}
	for _, s := range sheets {
		write := writeSheet
		if streaming {
			write = streamSheet
		}
		if err := write(f, s.name, s.rows); err != nil {
			return fmt.Errorf("failed to write sheet %s: %w", s.name, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, rows [][]any) error {
	widths := map[int]int{}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
		for c, v := range row {
			if n := utf8.RuneCountInString(fmt.Sprint(v)); n > widths[c] {
				widths[c] = n
			}
		}
	}
	for c, n := range widths {
		col, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, float64(min(n+3, maxColumnWidth))); err != nil {
			return err
		}
	}
	return nil
}

func streamSheet(f *excelize.File, sheet string, rows [][]any) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	return sw.Flush()
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
