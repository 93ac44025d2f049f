// Package report turns a finished job into the files handed back to the user:
// the enriched workbook, summary.json and the saved photos, bundled as a zip.
package report

import (
	"math"

	"profile-enricher/internal/enricher"
	"profile-enricher/internal/platform"
)

// PlatformSummary is the per-platform block of summary.json.
type PlatformSummary struct {
	SuccessRate  float64  `json:"success_rate"`
	Succeeded    int      `json:"succeeded"`
	NotAvailable int      `json:"not_available"`
	Failed       int      `json:"failed"`
	Skipped      int      `json:"skipped"`
	Attempts     int      `json:"attempts"`
	ErrorCount   int      `json:"error_count"`
	SampleErrors []string `json:"sample_errors"`
}

// Summary is the content of summary.json.
type Summary struct {
	JobID              string                     `json:"job_id,omitempty"`
	TotalRows          int                        `json:"total_rows"`
	TotalDurationMS    int64                      `json:"total_duration_ms"`
	OverallSuccessRate float64                    `json:"overall_success_rate"`
	Platforms          map[string]PlatformSummary `json:"platforms"`
}

// BuildSummary derives the job statistics. Rates are rounded to four
// decimals; skipped pairs count towards neither side of a rate.
func BuildSummary(jobID string, totalRows int, res *enricher.JobResult) Summary {
	s := Summary{
		JobID:           jobID,
		TotalRows:       totalRows,
		TotalDurationMS: res.Duration().Milliseconds(),
		Platforms:       make(map[string]PlatformSummary, len(platform.All)),
	}

	var succeeded, attempted int
	stats := res.Stats()
	for _, p := range platform.All {
		st := stats[p]
		samples := st.SampleErrors
		if samples == nil {
			samples = []string{}
		}
		s.Platforms[p.String()] = PlatformSummary{
			SuccessRate:  round4(st.SuccessRate()),
			Succeeded:    st.Succeeded,
			NotAvailable: st.NotAvailable,
			Failed:       st.Failed,
			Skipped:      st.Skipped,
			Attempts:     st.Attempts,
			ErrorCount:   st.Failed,
			SampleErrors: samples,
		}
		succeeded += st.Succeeded
		attempted += st.Attempted()
	}
	if attempted > 0 {
		s.OverallSuccessRate = round4(float64(succeeded) / float64(attempted))
	}
	return s
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
