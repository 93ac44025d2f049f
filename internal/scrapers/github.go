package scrapers

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"profile-enricher/internal/model"
	"profile-enricher/internal/platform"
)

var (
	contributionsRe = regexp.MustCompile(`(?i)([\d,]+)\s+contributions?\s+in the last year`)
	repositoriesRe  = regexp.MustCompile(`Repositories\s*([\d,]+)`)
)

// GitHub scrapes the contribution count of the last year and the number of
// public repositories. Each column falls back to N/A on its own.
type GitHub struct {
	client  *Client
	BaseURL string
}

func NewGitHub(client *Client) *GitHub {
	return &GitHub{client: client, BaseURL: "https://github.com"}
}

func (g *GitHub) Fetch(ctx context.Context, req model.FetchRequest) (model.Fields, error) {
	_, username, err := profileHandle(req.URL, platform.GitHub)
	if err != nil {
		return nil, err
	}
	base := baseURL(g.BaseURL, "https://github.com")
	user := url.PathEscape(username)

	// Fetch the profile first so an unknown user fails permanently before the
	// contributions request.
	profile, err := g.client.Get(ctx, base+"/"+user)
	if err != nil {
		return nil, err
	}
	repos, err := parsePublicRepos(profile)
	if err != nil {
		return nil, err
	}

	calendar, err := g.client.Get(ctx, base+"/users/"+user+"/contributions")
	if err != nil {
		return nil, err
	}
	commits, err := parseContributions(calendar)
	if err != nil {
		return nil, err
	}

	logrus.Debugf("github %s: contributions=%s repos=%s", username, commits, repos)
	return model.Fields{
		platform.ColGitHubCommits: commits,
		platform.ColGitHubRepos:   repos,
	}, nil
}

func parseContributions(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse contributions page: %w", err)
	}

	found := ""
	doc.Find("h2").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := contributionsRe.FindStringSubmatch(strings.Join(strings.Fields(s.Text()), " ")); m != nil {
			found = m[1]
			return false
		}
		return true
	})
	if found == "" {
		if m := contributionsRe.FindStringSubmatch(strings.Join(strings.Fields(doc.Text()), " ")); m != nil {
			found = m[1]
		}
	}
	return countOrNA(found), nil
}

func parsePublicRepos(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse github profile: %w", err)
	}

	tab := doc.Find(`a[href*="tab=repositories"]`).First()
	if counter := tab.Find(`span[class*="Counter"]`).First(); counter.Length() > 0 {
		if v := countOrNA(counter.Text()); v != platform.NotAvailable {
			return v, nil
		}
	}

	found := ""
	doc.Find("nav").EachWithBreak(func(_ int, nav *goquery.Selection) bool {
		label, _ := nav.Attr("aria-label")
		if !strings.Contains(strings.ToLower(label), "user profile") {
			return true
		}
		nav.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			if m := repositoriesRe.FindStringSubmatch(strings.Join(strings.Fields(a.Text()), "")); m != nil {
				found = m[1]
				return false
			}
			return true
		})
		return found == ""
	})
	return countOrNA(found), nil
}

// countOrNA normalises "1,234" to "1234", anything unparsable to N/A.
func countOrNA(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return platform.NotAvailable
	}
	return strconv.Itoa(n)
}
