package scrapers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profile-enricher/internal/config"
	"profile-enricher/internal/model"
	"profile-enricher/internal/platform"
	"profile-enricher/internal/retry"
)

func newTestClient() *Client {
	return NewClient(5*time.Second, "")
}

func fetchReq(p platform.Platform, url string) model.FetchRequest {
	return model.FetchRequest{RowID: "r1", Platform: p, URL: url, Attempt: 1}
}

func TestClientClassifiesStatuses(t *testing.T) {
	cases := []struct {
		code      int
		permanent bool
		target    error
	}{
		{http.StatusNotFound, true, ErrNotFound},
		{http.StatusGone, true, ErrNotFound},
		{http.StatusForbidden, true, nil},
		{http.StatusBadRequest, true, nil},
		{http.StatusRequestTimeout, false, nil},
		{http.StatusTooManyRequests, false, nil},
		{http.StatusInternalServerError, false, nil},
		{http.StatusBadGateway, false, nil},
		{999, false, ErrBlocked},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
			}))
			defer srv.Close()

			_, err := newTestClient().Get(context.Background(), srv.URL)
			require.Error(t, err)
			assert.Equal(t, tc.permanent, retry.IsPermanent(err))
			if tc.target != nil {
				assert.ErrorIs(t, err, tc.target)
			}
			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.code, se.Code)
		})
	}
}

func TestClientSendsBrowserHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("Accept-Language"))
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	body, err := newTestClient().Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestInvalidURLIsPermanent(t *testing.T) {
	c := newTestClient()
	fetchers := map[platform.Platform]interface {
		Fetch(context.Context, model.FetchRequest) (model.Fields, error)
	}{
		platform.LeetCode:   NewLeetCode(c),
		platform.Codeforces: NewCodeforces(c),
		platform.LinkedIn:   NewLinkedIn(c, nil),
		platform.GitHub:     NewGitHub(c),
	}
	for p, f := range fetchers {
		_, err := f.Fetch(context.Background(), fetchReq(p, "javascript:alert(1)"))
		require.Error(t, err, p)
		assert.True(t, retry.IsPermanent(err), p)
		assert.ErrorIs(t, err, platform.ErrInvalidURL, p)
	}
}

func leetCodeServer(t *testing.T, respond func(username string) string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/graphql/", r.URL.Path)
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "userContestRanking")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, respond(fmt.Sprint(req.Variables["username"])))
	}))
}

func TestLeetCodeFetch(t *testing.T) {
	srv := leetCodeServer(t, func(username string) string {
		switch username {
		case "alice":
			return `{"data":{"userContestRanking":{"attendedContestsCount":12,"rating":1850.4,"globalRanking":20345}}}`
		case "newbie":
			return `{"data":{"userContestRanking":null}}`
		case "zero":
			return `{"data":{"userContestRanking":{"globalRanking":0}}}`
		default:
			return `{"data":{"userContestRanking":null},"errors":[{"message":"That user does not exist."}]}`
		}
	})
	defer srv.Close()

	lc := NewLeetCode(newTestClient())
	lc.BaseURL = srv.URL

	fields, err := lc.Fetch(context.Background(), fetchReq(platform.LeetCode, "https://leetcode.com/u/alice/"))
	require.NoError(t, err)
	assert.Equal(t, model.Fields{platform.ColLeetCodeRank: "20345"}, fields)

	for _, user := range []string{"newbie", "zero"} {
		fields, err = lc.Fetch(context.Background(), fetchReq(platform.LeetCode, "leetcode.com/"+user))
		require.NoError(t, err)
		assert.Equal(t, platform.NotAvailable, fields[platform.ColLeetCodeRank], user)
	}

	_, err = lc.Fetch(context.Background(), fetchReq(platform.LeetCode, "https://leetcode.com/ghost"))
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLeetCodeServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	lc := NewLeetCode(newTestClient())
	lc.BaseURL = srv.URL
	_, err := lc.Fetch(context.Background(), fetchReq(platform.LeetCode, "https://leetcode.com/alice"))
	require.Error(t, err)
	assert.False(t, retry.IsPermanent(err))
}

const codeforcesProfile = `<html><body><div class="info">
<ul><li>Contest rating: <span style="font-weight:bold;" class="user-blue">1587</span>
<span class="smaller">(max. expert, 1650)</span></li></ul></div></body></html>`

func TestCodeforcesRatingFromPage(t *testing.T) {
	var apiCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/profile/tourist":
			fmt.Fprint(w, codeforcesProfile)
		default:
			apiCalls++
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	cf := NewCodeforces(newTestClient())
	cf.BaseURL = srv.URL
	fields, err := cf.Fetch(context.Background(), fetchReq(platform.Codeforces, "https://codeforces.com/profile/tourist"))
	require.NoError(t, err)
	assert.Equal(t, "1587", fields[platform.ColCodeforcesRate])
	assert.Zero(t, apiCalls)
}

func TestCodeforcesFallsBackToAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/profile/petr", "/profile/unrated":
			fmt.Fprint(w, `<html><body><div class="info"><ul><li>no rating yet</li></ul></div></body></html>`)
		case "/api/user.info":
			switch r.URL.Query().Get("handles") {
			case "petr":
				fmt.Fprint(w, `{"status":"OK","result":[{"handle":"petr","rating":2900}]}`)
			case "unrated":
				fmt.Fprint(w, `{"status":"OK","result":[{"handle":"unrated"}]}`)
			default:
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"status":"FAILED","comment":"handles: User with handle nobody not found"}`)
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cf := NewCodeforces(newTestClient())
	cf.BaseURL = srv.URL

	fields, err := cf.Fetch(context.Background(), fetchReq(platform.Codeforces, "codeforces.com/profile/petr"))
	require.NoError(t, err)
	assert.Equal(t, "2900", fields[platform.ColCodeforcesRate])

	fields, err = cf.Fetch(context.Background(), fetchReq(platform.Codeforces, "codeforces.com/profile/unrated"))
	require.NoError(t, err)
	assert.Equal(t, platform.NotAvailable, fields[platform.ColCodeforcesRate])

	_, err = cf.Fetch(context.Background(), fetchReq(platform.Codeforces, "codeforces.com/profile/nobody"))
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCodeforcesBothSourcesDownIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cf := NewCodeforces(newTestClient())
	cf.BaseURL = srv.URL
	_, err := cf.Fetch(context.Background(), fetchReq(platform.Codeforces, "codeforces.com/profile/petr"))
	require.Error(t, err)
	assert.False(t, retry.IsPermanent(err))
}

const githubProfile = `<html><body>
<nav aria-label="User profile">
  <a href="/octocat">Overview</a>
  <a href="/octocat?tab=repositories">Repositories <span title="8" class="Counter">8</span></a>
</nav></body></html>`

const githubContributions = `<html><body>
<h2 class="f4 text-normal mb-2">
  1,234
  contributions
  in the last year
</h2></body></html>`

func TestGitHubFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/octocat":
			fmt.Fprint(w, githubProfile)
		case "/users/octocat/contributions":
			fmt.Fprint(w, githubContributions)
		case "/quiet":
			fmt.Fprint(w, `<html><body><nav aria-label="User profile"><a href="/quiet?tab=repositories">Repositories</a></nav></body></html>`)
		case "/users/quiet/contributions":
			fmt.Fprint(w, `<html><body><p>loading</p></body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	gh := NewGitHub(newTestClient())
	gh.BaseURL = srv.URL

	fields, err := gh.Fetch(context.Background(), fetchReq(platform.GitHub, "https://github.com/octocat"))
	require.NoError(t, err)
	assert.Equal(t, model.Fields{
		platform.ColGitHubCommits: "1234",
		platform.ColGitHubRepos:   "8",
	}, fields)

	fields, err = gh.Fetch(context.Background(), fetchReq(platform.GitHub, "github.com/quiet"))
	require.NoError(t, err)
	assert.True(t, fields.AllNotAvailable())

	_, err = gh.Fetch(context.Background(), fetchReq(platform.GitHub, "github.com/missing"))
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParsePublicReposFromNavText(t *testing.T) {
	repos, err := parsePublicRepos([]byte(`<nav aria-label="User profile"><a href="/x/repos">Repositories 1,024</a></nav>`))
	require.NoError(t, err)
	assert.Equal(t, "1024", repos)
}

type fakeSaver struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeSaver) Save(ctx context.Context, imageURL, rowID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rowID+" "+imageURL)
	if f.err != nil {
		return "", f.err
	}
	return "photos/" + rowID + ".jpg", nil
}

type fakeFinder struct {
	src string
	err error
}

func (f fakeFinder) FindPhoto(ctx context.Context, profileURL string) (string, error) {
	return f.src, f.err
}

func TestLinkedInFetch(t *testing.T) {
	const photo = "https://media.licdn.com/dms/image/profile-displayphoto-shrink_800_800/abc"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/in/jane":
			fmt.Fprintf(w, `<html><head><meta property="og:image" content="%s"></head></html>`, photo)
		case "/in/img-only":
			fmt.Fprintf(w, `<html><body><img src="https://static.licdn.com/ghost.png"><img src="%s"></body></html>`, photo)
		case "/in/nophoto":
			fmt.Fprint(w, `<html><head><meta property="og:image" content="https://example.com/banner.png"></head></html>`)
		case "/in/blocked":
			w.WriteHeader(999)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	saver := &fakeSaver{}
	li := NewLinkedIn(newTestClient(), saver)
	li.BaseURL = srv.URL

	fields, err := li.Fetch(context.Background(), fetchReq(platform.LinkedIn, "https://www.linkedin.com/in/jane/"))
	require.NoError(t, err)
	assert.Equal(t, "photos/r1.jpg", fields[platform.ColPhotoPath])

	_, err = li.Fetch(context.Background(), fetchReq(platform.LinkedIn, "https://in.linkedin.com/in/img-only"))
	require.NoError(t, err)
	assert.Equal(t, []string{"r1 " + photo, "r1 " + photo}, saver.calls)

	fields, err = li.Fetch(context.Background(), fetchReq(platform.LinkedIn, "linkedin.com/in/nophoto"))
	require.NoError(t, err)
	assert.Equal(t, platform.NotAvailable, fields[platform.ColPhotoPath])

	_, err = li.Fetch(context.Background(), fetchReq(platform.LinkedIn, "linkedin.com/in/blocked"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlocked)
	assert.False(t, retry.IsPermanent(err))

	_, err = li.Fetch(context.Background(), fetchReq(platform.LinkedIn, "https://www.linkedin.com/company/acme"))
	assert.True(t, retry.IsPermanent(err))
}

func TestLinkedInPrefersBrowser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected http request to %s", r.URL)
	}))
	defer srv.Close()

	saver := &fakeSaver{}
	li := NewLinkedIn(newTestClient(), saver)
	li.BaseURL = srv.URL
	li.Browser = fakeFinder{src: "https://media.licdn.com/rendered.jpg"}

	fields, err := li.Fetch(context.Background(), fetchReq(platform.LinkedIn, "linkedin.com/in/jane"))
	require.NoError(t, err)
	assert.Equal(t, "photos/r1.jpg", fields[platform.ColPhotoPath])
	assert.Equal(t, []string{"r1 https://media.licdn.com/rendered.jpg"}, saver.calls)
}

func TestLinkedInBrowserFailureFallsBackToHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<meta property="og:image" content="https://media.licdn.com/og.jpg">`)
	}))
	defer srv.Close()

	saver := &fakeSaver{}
	li := NewLinkedIn(newTestClient(), saver)
	li.BaseURL = srv.URL
	li.Browser = fakeFinder{err: errors.New("chrome not installed")}

	_, err := li.Fetch(context.Background(), fetchReq(platform.LinkedIn, "linkedin.com/in/jane"))
	require.NoError(t, err)
	assert.Equal(t, []string{"r1 https://media.licdn.com/og.jpg"}, saver.calls)
}

func TestNewFetchersWiresBrowserOnlyWhenEnabled(t *testing.T) {
	cfg := config.Default()
	finder := fakeFinder{}

	fetchers := NewFetchers(cfg, newTestClient(), &fakeSaver{}, finder)
	require.Len(t, fetchers, len(platform.All))
	assert.Nil(t, fetchers[platform.LinkedIn].(*LinkedIn).Browser)

	cfg.Browser.Enabled = true
	fetchers = NewFetchers(cfg, newTestClient(), &fakeSaver{}, finder)
	assert.NotNil(t, fetchers[platform.LinkedIn].(*LinkedIn).Browser)
}
