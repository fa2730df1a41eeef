package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ultralytics/stars/internal/model"
)

func githubLine(gh *model.GitHubStats) string {
	return fmt.Sprintf("✅ GitHub: %d repos, %s stars, %s forks, %s issues, %s PRs, %s contributors",
		len(gh.Repos),
		humanize.Comma(gh.TotalStars),
		humanize.Comma(gh.TotalForks),
		humanize.Comma(gh.TotalIssues),
		humanize.Comma(gh.TotalPullRequests),
		humanize.Comma(gh.TotalContributors))
}

func pypiLine(p *model.PyPIStats) string {
	return fmt.Sprintf("✅ PyPI: %d packages, %s total downloads, %s downloads (30d)",
		len(p.Packages),
		humanize.Comma(p.TotalDownloads),
		humanize.Comma(p.TotalLastMonth))
}

func analyticsLine(ga *model.AnalyticsStats) string {
	day := ga.Periods["1d"]
	return fmt.Sprintf("✅ GA: %s users, %s sessions, %s events (1d/7d/30d/90d/365d)",
		humanize.Comma(day.ActiveUsers),
		humanize.Comma(day.Sessions),
		humanize.Comma(day.Events))
}

func redditLine(r *model.RedditStats) string {
	return fmt.Sprintf("✅ Reddit: %s subscribers", humanize.Comma(r.Subscribers))
}

func summaryLine(s *model.Summary) string {
	return fmt.Sprintf("✅ Summary: %s stars, %s forks, %s issues, %s PRs, %s downloads, %s events/day, %s contributors, %s reddit",
		humanize.Comma(s.TotalStars),
		humanize.Comma(s.TotalForks),
		humanize.Comma(s.TotalIssues),
		humanize.Comma(s.TotalPullRequests),
		humanize.Comma(s.TotalDownloads),
		humanize.Comma(s.EventsPerDay),
		humanize.Comma(s.TotalContributors),
		humanize.Comma(s.RedditSubscribers))
}

func orgStarsLine(path string, o *model.OrgStars) string {
	return fmt.Sprintf("✅ Wrote %s with %d repos, %s total stars", path, len(o.Repos), humanize.Comma(o.TotalStars))
}

func starWindowLine(w model.StarWindow) string {
	return fmt.Sprintf("%-40s%-12s%-12s",
		w.Repo,
		fmt.Sprintf("%d stars", w.Stars),
		fmt.Sprintf("(%.1f/day)", w.PerDay()))
}

func runLine(r model.RunRecord) string {
	ended := "-"
	if r.EndedAt != nil {
		ended = r.EndedAt.Sub(r.StartedAt).Round(time.Second).String()
	}
	line := fmt.Sprintf("%s  %-9s  %s  %-10s  restored=%d errors=%d",
		r.ID, r.Status, r.StartedAt.Format("2006-01-02 15:04:05"), ended, r.Metrics.Restored, r.Metrics.Errors)
	if r.Summary != nil {
		line += fmt.Sprintf("  stars=%s downloads=%s",
			humanize.Comma(r.Summary.TotalStars), humanize.Comma(r.Summary.TotalDownloads))
	}
	return line
}
