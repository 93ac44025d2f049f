package enricher

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"profile-enricher/internal/model"
	"profile-enricher/internal/platform"
	"profile-enricher/internal/ratelimit"
	"profile-enricher/internal/retry"
)

// Fetcher is the per-platform fetch collaborator. It returns the enriched
// fields for the profile at req.URL, or an error. Errors wrapped with
// retry.Permanent are not retried; anything else is treated as transient.
type Fetcher interface {
	Fetch(ctx context.Context, req model.FetchRequest) (model.Fields, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req model.FetchRequest) (model.Fields, error)

func (f FetcherFunc) Fetch(ctx context.Context, req model.FetchRequest) (model.Fields, error) {
	return f(ctx, req)
}

const msgNoURL = "No URL provided"

// FetchTask fetches the fields of one row from one platform.
type FetchTask struct {
	RowID    string
	Platform platform.Platform
	URL      string
}

// taskEnv is the per-job state shared by every task.
type taskEnv struct {
	fetchers map[platform.Platform]Fetcher
	limiters *ratelimit.Limiters
	policy   *retry.Policy
	result   *JobResult
}

// Run drives the task to a terminal state and records it in env.result.
// Nothing escapes: errors and panics become a failed FieldResult. When ctx
// ends before a terminal state is reached the pair is left unrecorded.
func (t FetchTask) Run(ctx context.Context, env *taskEnv) {
	log := logrus.WithFields(logrus.Fields{"row": t.RowID, "platform": t.Platform})
	current := 0

	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("panic: %v", rec)
			log.Errorf("fetch task crashed: %s", msg)
			t.record(env, current, model.OutcomeFailure, msg)
			t.finish(env, model.StatusFailed, nil, msg)
		}
	}()

	// Attempt records and fetch requests carry the same trimmed URL.
	t.URL = strings.TrimSpace(t.URL)
	url := t.URL
	if url == "" {
		t.record(env, 0, model.OutcomeSkipped, msgNoURL)
		t.finish(env, model.StatusSkipped, nil, msgNoURL)
		log.Debug("no url, skipped")
		return
	}

	fetcher, ok := env.fetchers[t.Platform]
	if !ok || fetcher == nil {
		msg := "no fetcher registered for " + t.Platform.String()
		t.record(env, 1, model.OutcomeFailure, msg)
		t.finish(env, model.StatusFailed, nil, msg)
		return
	}

	// fields is set by op before observe reports the success.
	var fields model.Fields
	op := func(ctx context.Context, attempt int) (model.Fields, error) {
		current = attempt
		if err := env.limiters.Acquire(ctx, t.Platform); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, retry.Permanent(err)
		}
		f, err := fetcher.Fetch(ctx, model.FetchRequest{
			RowID:    t.RowID,
			Platform: t.Platform,
			URL:      url,
			Attempt:  attempt,
		})
		if err == nil {
			fields = f
		}
		return f, err
	}

	observe := func(a retry.Attempt) {
		msg := ""
		if a.Err != nil {
			msg = a.Err.Error()
		}
		if a.Outcome == model.OutcomeSuccess {
			msg = describe(fields)
		}
		t.record(env, a.Number, a.Outcome, msg)

		entry := log.WithFields(logrus.Fields{"attempt": a.Number, "outcome": a.Outcome})
		switch a.Outcome {
		case model.OutcomeSuccess:
			entry.Info("fetched")
		case model.OutcomeRetry:
			entry.WithField("backoff", a.Backoff).Warnf("retrying: %s", msg)
		default:
			entry.Warnf("giving up: %s", msg)
		}
	}

	_, err := env.policy.Execute(ctx, op, observe)
	if err != nil {
		if ctx.Err() != nil {
			log.Debug("abandoned, job cancelled")
			return
		}
		t.finish(env, model.StatusFailed, nil, err.Error())
		return
	}

	if fields.AllNotAvailable() {
		t.finish(env, model.StatusNotAvailable, nil, "no data available")
		return
	}
	t.finish(env, model.StatusSucceeded, fields, "")
}

func (t FetchTask) record(env *taskEnv, attempt int, outcome model.Outcome, msg string) {
	env.result.appendAttempt(model.AttemptRecord{
		RowID:    t.RowID,
		Platform: t.Platform,
		URL:      t.URL,
		Attempt:  attempt,
		Outcome:  outcome,
		Message:  msg,
	})
}

// finish stores the terminal result, keeping only the platform's own
// columns and filling missing ones with the N/A sentinel.
func (t FetchTask) finish(env *taskEnv, status model.Status, fields model.Fields, msg string) {
	out := model.NotAvailableFields(t.Platform)
	for col := range out {
		if v := strings.TrimSpace(fields[col]); v != "" {
			out[col] = v
		}
	}
	env.result.setField(model.FieldResult{
		RowID:    t.RowID,
		Platform: t.Platform,
		Status:   status,
		Fields:   out,
		Message:  msg,
	})
}

// describe renders fields as "col=value" pairs for the attempt log.
func describe(f model.Fields) string {
	if len(f) == 0 {
		return "no data"
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + f[k]
	}
	return strings.Join(parts, ", ")
}
