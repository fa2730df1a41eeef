package model

// RepoStats is one repository row of the GitHub snapshot
type RepoStats struct {
	Name         string `json:"name"`
	Stars        int64  `json:"stars"`
	Forks        int64  `json:"forks"`
	Issues       int64  `json:"issues"`
	PullRequests int64  `json:"pull_requests"`
	Contributors int64  `json:"contributors"`
}

// RepoCounterFields are the RepoStats fields reconciled against the previous snapshot
var RepoCounterFields = []string{"stars", "forks", "issues", "pull_requests", "contributors"}

// GitHubStats is the github.json document
type GitHubStats struct {
	Org               string      `json:"org"`
	TotalStars        int64       `json:"total_stars"`
	TotalForks        int64       `json:"total_forks"`
	TotalIssues       int64       `json:"total_issues"`
	TotalPullRequests int64       `json:"total_pull_requests"`
	TotalContributors int64       `json:"total_contributors"`
	PublicRepos       int         `json:"public_repos"`
	Timestamp         string      `json:"timestamp"`
	Repos             []RepoStats `json:"repos"`
}

// RepoStars is one repository row of the star-only org snapshot
type RepoStars struct {
	Name  string `json:"name"`
	Stars int64  `json:"stars"`
}

// OrgStars is the org_stars.json document
type OrgStars struct {
	Org         string      `json:"org"`
	TotalStars  int64       `json:"total_stars"`
	PublicRepos int         `json:"public_repos"`
	Timestamp   string      `json:"timestamp"`
	Repos       []RepoStars `json:"repos"`
}

// PackageStats holds download counts for one PyPI package
type PackageStats struct {
	Package   string `json:"package"`
	LastDay   int64  `json:"last_day"`
	LastWeek  int64  `json:"last_week"`
	LastMonth int64  `json:"last_month"`
	Total     int64  `json:"total"`
}

// PackageCounterFields are the PackageStats fields reconciled against the previous snapshot
var PackageCounterFields = []string{"last_day", "last_week", "last_month", "total"}

// PyPIStats is the pypi.json document
type PyPIStats struct {
	TotalDownloads int64          `json:"total_downloads"`
	TotalLastMonth int64          `json:"total_last_month"`
	Timestamp      string         `json:"timestamp"`
	Packages       []PackageStats `json:"packages"`
}

// PeriodStats holds Google Analytics metrics for one trailing window
type PeriodStats struct {
	ActiveUsers        int64   `json:"active_users"`
	Sessions           int64   `json:"sessions"`
	Events             int64   `json:"events"`
	AvgSessionDuration float64 `json:"avg_session_duration"`
}

// PeriodCounterFields are the PeriodStats fields reconciled against the previous snapshot
var PeriodCounterFields = []string{"active_users", "sessions", "events", "avg_session_duration"}

// AnalyticsStats is the google_analytics.json document.
// Periods is keyed by window suffix: 1d, 7d, 30d, 90d, 365d.
type AnalyticsStats struct {
	PropertyID string                 `json:"property_id"`
	Timestamp  string                 `json:"timestamp"`
	Periods    map[string]PeriodStats `json:"periods"`
}

// RedditStats is the reddit.json document
type RedditStats struct {
	Subreddit   string `json:"subreddit"`
	Subscribers int64  `json:"subscribers"`
	Timestamp   string `json:"timestamp"`
}

// Summary is the summary.json document combining every source
type Summary struct {
	TotalStars        int64  `json:"total_stars"`
	TotalForks        int64  `json:"total_forks"`
	TotalIssues       int64  `json:"total_issues"`
	TotalPullRequests int64  `json:"total_pull_requests"`
	TotalDownloads    int64  `json:"total_downloads"`
	EventsPerDay      int64  `json:"events_per_day"`
	TotalContributors int64  `json:"total_contributors"`
	RedditSubscribers int64  `json:"reddit_subscribers"`
	Timestamp         string `json:"timestamp"`
}

// SummaryCounterFields is every Summary field except the timestamp
var SummaryCounterFields = []string{
	"total_stars", "total_forks", "total_issues", "total_pull_requests",
	"total_downloads", "events_per_day", "total_contributors", "reddit_subscribers",
}
