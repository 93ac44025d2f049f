package enricher

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profile-enricher/internal/model"
	"profile-enricher/internal/platform"
)

func TestStatsSuccessRateExcludesSkipped(t *testing.T) {
	rows := []model.RowRecord{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	res := newJobResult(rows, time.Now, nil)

	res.setField(model.FieldResult{RowID: "a", Platform: platform.GitHub, Status: model.StatusSucceeded})
	res.setField(model.FieldResult{RowID: "b", Platform: platform.GitHub, Status: model.StatusNotAvailable})
	res.setField(model.FieldResult{RowID: "c", Platform: platform.GitHub, Status: model.StatusFailed, Message: "404"})
	res.setField(model.FieldResult{RowID: "d", Platform: platform.GitHub, Status: model.StatusSkipped})
	res.appendAttempt(model.AttemptRecord{RowID: "a", Platform: platform.GitHub, Attempt: 1, Outcome: model.OutcomeSuccess})
	res.appendAttempt(model.AttemptRecord{RowID: "d", Platform: platform.GitHub, Outcome: model.OutcomeSkipped})

	gh := res.Stats()[platform.GitHub]
	assert.Equal(t, 1, gh.Succeeded)
	assert.Equal(t, 1, gh.NotAvailable)
	assert.Equal(t, 1, gh.Failed)
	assert.Equal(t, 1, gh.Skipped)
	assert.Equal(t, 1, gh.Attempts)
	assert.Equal(t, 3, gh.Attempted())
	assert.InDelta(t, 1.0/3.0, gh.SuccessRate(), 1e-9)
	assert.Equal(t, []string{"Row c: 404"}, gh.SampleErrors)

	lc := res.Stats()[platform.LeetCode]
	assert.Zero(t, lc.SuccessRate())
}

func TestStatsCapsSampleErrors(t *testing.T) {
	var rows []model.RowRecord
	for i := 0; i < 8; i++ {
		rows = append(rows, model.RowRecord{ID: fmt.Sprintf("r%d", i)})
	}
	res := newJobResult(rows, time.Now, nil)
	for _, r := range rows {
		res.setField(model.FieldResult{RowID: r.ID, Platform: platform.LinkedIn, Status: model.StatusFailed, Message: "blocked"})
	}

	li := res.Stats()[platform.LinkedIn]
	assert.Equal(t, 8, li.Failed)
	require.Len(t, li.SampleErrors, maxSampleErrors)
	assert.Equal(t, "Row r0: blocked", li.SampleErrors[0])
}

func TestSetFieldKeepsFirstTerminalResult(t *testing.T) {
	res := newJobResult([]model.RowRecord{{ID: "a"}}, time.Now, nil)

	assert.True(t, res.setField(model.FieldResult{RowID: "a", Platform: platform.LeetCode, Status: model.StatusSucceeded}))
	assert.False(t, res.setField(model.FieldResult{RowID: "a", Platform: platform.LeetCode, Status: model.StatusFailed}))

	fr, ok := res.Field("a", platform.LeetCode)
	require.True(t, ok)
	assert.Equal(t, model.StatusSucceeded, fr.Status)
}

func TestRowIDsFollowInputOrder(t *testing.T) {
	res := newJobResult([]model.RowRecord{{ID: "z"}, {ID: "y"}, {ID: "x"}}, time.Now, nil)
	res.setField(model.FieldResult{RowID: "x", Platform: platform.GitHub, Status: model.StatusSkipped})
	res.setField(model.FieldResult{RowID: "z", Platform: platform.GitHub, Status: model.StatusSkipped})

	assert.Equal(t, []string{"z", "x"}, res.RowIDs())
	assert.Equal(t, 2, res.Len())
}

func TestDescribeSortsColumns(t *testing.T) {
	assert.Equal(t, "no data", describe(nil))
	assert.Equal(t, "GH_Commits_12mo=10, GH_Public_Repos=3",
		describe(model.Fields{platform.ColGitHubRepos: "3", platform.ColGitHubCommits: "10"}))
}
