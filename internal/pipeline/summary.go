package pipeline

import (
	"github.com/ultralytics/stars/internal/model"
	"github.com/ultralytics/stars/pkg/utils"
)

// BuildSummary combines the per-source snapshots. Analytics and Reddit may be nil.
func BuildSummary(gh *model.GitHubStats, pypi *model.PyPIStats, ga *model.AnalyticsStats, reddit *model.RedditStats) model.Summary {
	var s model.Summary
	if gh != nil {
		s.TotalStars = gh.TotalStars
		s.TotalForks = gh.TotalForks
		s.TotalIssues = gh.TotalIssues
		s.TotalPullRequests = gh.TotalPullRequests
		s.TotalContributors = gh.TotalContributors
	}
	if pypi != nil {
		s.TotalDownloads = pypi.TotalDownloads
	}
	s.EventsPerDay = eventsPerDay(ga)
	if reddit != nil {
		s.RedditSubscribers = reddit.Subscribers
	}
	return s
}

// CollectSummary builds the summary, reconciles it field by field with the
// previous summary.json and writes it.
func (c *Collector) CollectSummary(gh *model.GitHubStats, pypi *model.PyPIStats, ga *model.AnalyticsStats, reddit *model.RedditStats) (*model.Summary, error) {
	path := c.out.Path(utils.SummaryFile)
	existing, _ := ReadJSON[model.Summary](path)

	summary := BuildSummary(gh, pypi, ga, reddit)
	summary.Timestamp = utils.Timestamp(c.now())
	restored := SafeMerge(c.log, "summary", &summary, &existing, model.SummaryCounterFields...)

	c.tracker.AddRestored(SourceSummary, len(restored))
	if err := c.export(path, &summary, 1); err != nil {
		return nil, err
	}
	return &summary, nil
}
