// Package scrapers implements the per-platform fetchers that turn a profile
// URL into enriched column values.
package scrapers

import (
	"context"
	"fmt"
	"strings"

	"profile-enricher/internal/config"
	"profile-enricher/internal/enricher"
	"profile-enricher/internal/platform"
	"profile-enricher/internal/retry"
)

// PhotoSaver stores a downloaded profile photo for a row and returns the
// path written into the output.
type PhotoSaver interface {
	Save(ctx context.Context, imageURL, rowID string) (string, error)
}

// PhotoFinder locates the profile photo URL on a rendered page. It returns ""
// when the page has none.
type PhotoFinder interface {
	FindPhoto(ctx context.Context, profileURL string) (string, error)
}

// NewFetchers builds the fetcher of every platform. browser may be nil.
func NewFetchers(cfg *config.Config, client *Client, photos PhotoSaver, browser PhotoFinder) map[platform.Platform]enricher.Fetcher {
	li := NewLinkedIn(client, photos)
	if cfg.Browser.Enabled && browser != nil {
		li.Browser = browser
	}
	return map[platform.Platform]enricher.Fetcher{
		platform.LeetCode:   NewLeetCode(client),
		platform.Codeforces: NewCodeforces(client),
		platform.LinkedIn:   li,
		platform.GitHub:     NewGitHub(client),
	}
}

// profileHandle validates rawURL for p and extracts the user handle. Both
// failures are permanent.
func profileHandle(rawURL string, p platform.Platform) (string, string, error) {
	clean, err := platform.SanitizeURL(rawURL, p)
	if err != nil {
		return "", "", retry.Permanent(err)
	}
	handle := platform.Username(clean, p)
	if handle == "" {
		return "", "", retry.Permanent(fmt.Errorf("%w: no %s handle in %s", platform.ErrInvalidURL, p, clean))
	}
	return clean, handle, nil
}

func baseURL(s, def string) string {
	if s == "" {
		s = def
	}
	return strings.TrimRight(s, "/")
}
