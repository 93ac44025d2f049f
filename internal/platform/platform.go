package platform

import (
	"fmt"
	"strings"
)

// Platform identifies one of the external profile sites a candidate row is
// enriched from. The string value is used as a key in configuration, logs and
// the summary file.
type Platform string

const (
	LeetCode   Platform = "leetcode"   // contest-rank site
	Codeforces Platform = "codeforces" // rating site
	LinkedIn   Platform = "linkedin"   // profile-photo site
	GitHub     Platform = "github"     // activity site
)

// NotAvailable is the sentinel written in place of any value that could not be
// fetched.
const NotAvailable = "N/A"

// Enriched column names.
const (
	ColLeetCodeRank   = "LC_Global_Contest_Rank"
	ColCodeforcesRate = "CF_Rating"
	ColPhotoPath      = "Photos_Path"
	ColGitHubCommits  = "GH_Commits_12mo"
	ColGitHubRepos    = "GH_Public_Repos"
)

// All lists every platform in scheduling order.
var All = []Platform{LeetCode, Codeforces, LinkedIn, GitHub}

var columns = map[Platform][]string{
	LeetCode:   {ColLeetCodeRank},
	Codeforces: {ColCodeforcesRate},
	LinkedIn:   {ColPhotoPath},
	GitHub:     {ColGitHubCommits, ColGitHubRepos},
}

var urlColumns = map[Platform]string{
	LeetCode:   "LeetCodeURL",
	Codeforces: "CodeforcesURL",
	LinkedIn:   "LinkedInURL",
	GitHub:     "GitHubURL",
}

// Parse resolves a case-insensitive platform name.
func Parse(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := columns[p]; !ok {
		return "", fmt.Errorf("unknown platform %q", s)
	}
	return p, nil
}

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	_, ok := columns[p]
	return ok
}

func (p Platform) String() string { return string(p) }

// Columns returns the enriched output columns filled from p.
func (p Platform) Columns() []string {
	return columns[p]
}

// URLColumn returns the canonical input column holding p's profile URL.
func (p Platform) URLColumn() string {
	return urlColumns[p]
}

// EnrichedColumns returns every enriched column in output order.
func EnrichedColumns() []string {
	var out []string
	for _, p := range All {
		out = append(out, columns[p]...)
	}
	return out
}
