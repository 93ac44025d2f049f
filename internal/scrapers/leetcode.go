package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"profile-enricher/internal/model"
	"profile-enricher/internal/platform"
	"profile-enricher/internal/retry"
)

const contestRankingQuery = `query userContestRankingInfo($username: String!) {
  userContestRanking(username: $username) {
    attendedContestsCount
    rating
    globalRanking
  }
}`

// LeetCode reads the global contest rank through the public GraphQL endpoint.
// The profile page is rendered client-side and carries no data.
type LeetCode struct {
	client  *Client
	BaseURL string
}

func NewLeetCode(client *Client) *LeetCode {
	return &LeetCode{client: client, BaseURL: "https://leetcode.com"}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type contestRankingResponse struct {
	Data struct {
		UserContestRanking *struct {
			AttendedContestsCount int     `json:"attendedContestsCount"`
			Rating                float64 `json:"rating"`
			GlobalRanking         int     `json:"globalRanking"`
		} `json:"userContestRanking"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (l *LeetCode) Fetch(ctx context.Context, req model.FetchRequest) (model.Fields, error) {
	_, username, err := profileHandle(req.URL, platform.LeetCode)
	if err != nil {
		return nil, err
	}

	base := baseURL(l.BaseURL, "https://leetcode.com")
	header := http.Header{}
	header.Set("Referer", base)
	body, err := l.client.PostJSON(ctx, base+"/graphql/", graphQLRequest{
		Query:     contestRankingQuery,
		Variables: map[string]any{"username": username},
	}, header)
	if err != nil {
		return nil, err
	}

	var resp contestRankingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode leetcode response: %w", err)
	}
	for _, e := range resp.Errors {
		if strings.Contains(strings.ToLower(e.Message), "does not exist") {
			return nil, retry.Permanent(fmt.Errorf("%w: leetcode user %s", ErrNotFound, username))
		}
	}
	if len(resp.Errors) > 0 && resp.Data.UserContestRanking == nil {
		return nil, fmt.Errorf("leetcode graphql error: %s", resp.Errors[0].Message)
	}

	rank := platform.NotAvailable
	if r := resp.Data.UserContestRanking; r != nil && r.GlobalRanking > 0 {
		rank = strconv.Itoa(r.GlobalRanking)
	}
	logrus.Debugf("leetcode %s: global rank %s", username, rank)
	return model.Fields{platform.ColLeetCodeRank: rank}, nil
}
