package scrapers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"profile-enricher/internal/model"
	"profile-enricher/internal/platform"
	"profile-enricher/internal/retry"
)

var contestRatingRe = regexp.MustCompile(`Contest rating:\s*(\d+)`)

// Codeforces scrapes the current rating from the profile page and falls back
// to the public user.info API.
type Codeforces struct {
	client  *Client
	BaseURL string
}

func NewCodeforces(client *Client) *Codeforces {
	return &Codeforces{client: client, BaseURL: "https://codeforces.com"}
}

type userInfoResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Result  []struct {
		Handle string `json:"handle"`
		Rating *int   `json:"rating"`
	} `json:"result"`
}

func (c *Codeforces) Fetch(ctx context.Context, req model.FetchRequest) (model.Fields, error) {
	_, handle, err := profileHandle(req.URL, platform.Codeforces)
	if err != nil {
		return nil, err
	}
	base := baseURL(c.BaseURL, "https://codeforces.com")

	rating, pageErr := c.ratingFromPage(ctx, base, handle)
	if pageErr == nil && rating != "" {
		return model.Fields{platform.ColCodeforcesRate: rating}, nil
	}
	if pageErr != nil {
		logrus.Debugf("codeforces %s: profile page failed, trying api: %v", handle, pageErr)
	}

	rating, apiErr := c.ratingFromAPI(ctx, base, handle)
	switch {
	case apiErr == nil:
	case retry.IsPermanent(apiErr):
		return nil, apiErr
	case pageErr != nil:
		return nil, fmt.Errorf("profile page: %v; api: %w", pageErr, apiErr)
	default:
		// The page loaded but shows no rating; an unreachable API does not
		// change that.
		logrus.Debugf("codeforces %s: api failed after page without rating: %v", handle, apiErr)
	}

	if rating == "" {
		rating = platform.NotAvailable
	}
	return model.Fields{platform.ColCodeforcesRate: rating}, nil
}

func (c *Codeforces) ratingFromPage(ctx context.Context, base, handle string) (string, error) {
	body, err := c.client.Get(ctx, base+"/profile/"+url.PathEscape(handle))
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse codeforces profile: %w", err)
	}

	info := doc.Find("div.info").First()
	if m := contestRatingRe.FindStringSubmatch(info.Text()); m != nil {
		return m[1], nil
	}
	if span := info.Find("ul li span").First(); span.Length() > 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(span.Text())); err == nil {
			return strconv.Itoa(n), nil
		}
	}
	return "", nil
}

func (c *Codeforces) ratingFromAPI(ctx context.Context, base, handle string) (string, error) {
	body, err := c.client.Get(ctx, base+"/api/user.info?handles="+url.QueryEscape(handle))
	if err != nil {
		// The API reports unknown handles as HTTP 400 with a FAILED body.
		var se *StatusError
		if errors.As(err, &se) && len(se.Body) > 0 {
			var failed userInfoResponse
			if json.Unmarshal(se.Body, &failed) == nil && strings.Contains(strings.ToLower(failed.Comment), "not found") {
				return "", retry.Permanent(fmt.Errorf("%w: %s", ErrNotFound, failed.Comment))
			}
		}
		return "", err
	}

	var resp userInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode codeforces api response: %w", err)
	}
	if resp.Status != "OK" {
		if strings.Contains(strings.ToLower(resp.Comment), "not found") {
			return "", retry.Permanent(fmt.Errorf("%w: %s", ErrNotFound, resp.Comment))
		}
		return "", fmt.Errorf("codeforces api status %s: %s", resp.Status, resp.Comment)
	}
	if len(resp.Result) == 0 || resp.Result[0].Rating == nil {
		return "", nil
	}
	return strconv.Itoa(*resp.Result[0].Rating), nil
}
