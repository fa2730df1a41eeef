package pipeline

import (
	"math"

	"github.com/ultralytics/stars/internal/model"
)

// eventsWindowDays is the analytics window averaged into events_per_day
const eventsWindowDays = 90

// aggregateGitHub fills the org-level totals from the repository rows
func aggregateGitHub(doc *model.GitHubStats) {
	doc.TotalStars, doc.TotalForks, doc.TotalIssues = 0, 0, 0
	doc.TotalPullRequests, doc.TotalContributors = 0, 0
	for _, r := range doc.Repos {
		doc.TotalStars += r.Stars
		doc.TotalForks += r.Forks
		doc.TotalIssues += r.Issues
		doc.TotalPullRequests += r.PullRequests
		doc.TotalContributors += r.Contributors
	}
	doc.PublicRepos = len(doc.Repos)
}

// aggregatePyPI fills the download totals from the package rows
func aggregatePyPI(doc *model.PyPIStats) {
	doc.TotalDownloads, doc.TotalLastMonth = 0, 0
	for _, p := range doc.Packages {
		doc.TotalDownloads += p.Total
		doc.TotalLastMonth += p.LastMonth
	}
}

// aggregateOrgStars fills the star total from the repository rows
func aggregateOrgStars(doc *model.OrgStars) {
	doc.TotalStars = 0
	for _, r := range doc.Repos {
		doc.TotalStars += r.Stars
	}
	doc.PublicRepos = len(doc.Repos)
}

// eventsPerDay is the mean daily event count over the 90 day window,
// rounded half to even. Without analytics it is 0.
func eventsPerDay(ga *model.AnalyticsStats) int64 {
	if ga == nil {
		return 0
	}
	p, ok := ga.Periods["90d"]
	if !ok {
		return 0
	}
	return int64(math.RoundToEven(float64(p.Events) / eventsWindowDays))
}
