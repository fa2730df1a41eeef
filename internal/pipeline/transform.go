package pipeline

import (
	"sort"

	"github.com/ultralytics/stars/internal/model"
)

// toRepoStats converts a GraphQL node into a snapshot row
func toRepoStats(n *repoNode, contributors int64) model.RepoStats {
	return model.RepoStats{
		Name:         n.Name,
		Stars:        n.StargazerCount,
		Forks:        n.ForkCount,
		Issues:       n.Issues.TotalCount,
		PullRequests: n.PullRequests.TotalCount,
		Contributors: contributors,
	}
}

// sortByStars orders repository nodes by star count, most starred first.
// Ties keep their API order.
func sortByStars(nodes []*repoNode) []*repoNode {
	sorted := make([]*repoNode, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StargazerCount > sorted[j].StargazerCount
	})
	return sorted
}

// toRepoStars converts nodes into star-only rows, most starred first
func toRepoStars(nodes []*repoNode) []model.RepoStars {
	sorted := sortByStars(nodes)
	out := make([]model.RepoStars, 0, len(sorted))
	for _, n := range sorted {
		out = append(out, model.RepoStars{Name: n.Name, Stars: n.StargazerCount})
	}
	return out
}

// indexRepos maps repository name to its previous snapshot row
func indexRepos(repos []model.RepoStats) map[string]model.RepoStats {
	idx := make(map[string]model.RepoStats, len(repos))
	for _, r := range repos {
		idx[r.Name] = r
	}
	return idx
}

// indexPackages maps package name to its previous snapshot row
func indexPackages(pkgs []model.PackageStats) map[string]model.PackageStats {
	idx := make(map[string]model.PackageStats, len(pkgs))
	for _, p := range pkgs {
		idx[p.Package] = p
	}
	return idx
}
