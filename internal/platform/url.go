package platform

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidURL is returned for URLs that are empty, use a rejected scheme or
// do not point at the expected platform.
var ErrInvalidURL = errors.New("invalid profile url")

var rejectedSchemes = []string{"javascript:", "data:", "file:", "ftp:"}

var domainPatterns = map[Platform]*regexp.Regexp{
	LeetCode:   regexp.MustCompile(`(?i)^https?://(www\.)?leetcode\.com/`),
	Codeforces: regexp.MustCompile(`(?i)^https?://(www\.)?codeforces\.com/`),
	LinkedIn:   regexp.MustCompile(`(?i)^https?://([a-z]{2,3}\.|www\.)?linkedin\.com/in/`),
	GitHub:     regexp.MustCompile(`(?i)^https?://(www\.)?github\.com/`),
}

var usernamePatterns = map[Platform]*regexp.Regexp{
	LeetCode:   regexp.MustCompile(`(?i)leetcode\.com/(?:u/)?([A-Za-z0-9_-]+)`),
	Codeforces: regexp.MustCompile(`(?i)codeforces\.com/profile/([A-Za-z0-9_.-]+)`),
	LinkedIn:   regexp.MustCompile(`(?i)linkedin\.com/in/([A-Za-z0-9_%-]+)`),
	GitHub:     regexp.MustCompile(`(?i)github\.com/([A-Za-z0-9-]+)`),
}

// SanitizeURL normalises raw into an http(s) URL without query or fragment
// and checks that it belongs to p.
func SanitizeURL(raw string, p Platform) (string, error) {
	s := strings.TrimRight(strings.TrimSpace(raw), "/")
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	lower := strings.ToLower(s)
	for _, scheme := range rejectedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return "", fmt.Errorf("%w: scheme %s not allowed", ErrInvalidURL, strings.TrimSuffix(scheme, ":"))
		}
	}
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %s not allowed", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	clean := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: strings.TrimRight(u.Path, "/")}).String()

	if pat, ok := domainPatterns[p]; ok && !pat.MatchString(clean+"/") {
		return "", fmt.Errorf("%w: %s is not a %s profile", ErrInvalidURL, clean, p)
	}
	return clean, nil
}

// Username extracts the handle of the profile rawURL points at, or "" when
// none can be found.
func Username(rawURL string, p Platform) string {
	pat, ok := usernamePatterns[p]
	if !ok {
		return ""
	}
	m := pat.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	// "u" alone is the LeetCode path prefix, not a user.
	if p == LeetCode && strings.EqualFold(m[1], "u") {
		return ""
	}
	return m[1]
}
