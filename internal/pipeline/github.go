package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ultralytics/stars/internal/model"
	"github.com/ultralytics/stars/pkg/utils"
)

var (
	// ErrMissingToken is returned when no GitHub token is configured.
	ErrMissingToken = errors.New("GITHUB_TOKEN is not set")
	// ErrOrgNotFound is returned when GraphQL has no organization for the login.
	ErrOrgNotFound = errors.New("organization not found or inaccessible")
	// ErrPaginationStalled is returned when a page claims more results without a new cursor.
	ErrPaginationStalled = errors.New("pagination cursor did not advance")
)

const reposQuery = `query($org: String!, $cursor: String) {
  organization(login: $org) {
    repositories(first: 100, after: $cursor, isFork: false, privacy: PUBLIC) {
      pageInfo { hasNextPage endCursor }
      nodes { name stargazerCount forkCount issues { totalCount } pullRequests { totalCount } isArchived isDisabled isLocked isMirror }
    }
  }
}`

// GraphQLError carries the errors array of a GraphQL response
type GraphQLError struct {
	Messages []string
	Raw      json.RawMessage
}

func (e *GraphQLError) Error() string {
	if len(e.Messages) == 0 {
		return "GraphQL errors: " + string(e.Raw)
	}
	return "GraphQL errors: " + strings.Join(e.Messages, "; ")
}

type totalCount struct {
	TotalCount int64 `json:"totalCount"`
}

type repoNode struct {
	Name           string     `json:"name"`
	StargazerCount int64      `json:"stargazerCount"`
	ForkCount      int64      `json:"forkCount"`
	Issues         totalCount `json:"issues"`
	PullRequests   totalCount `json:"pullRequests"`
	IsArchived     bool       `json:"isArchived"`
	IsDisabled     bool       `json:"isDisabled"`
	IsLocked       bool       `json:"isLocked"`
	IsMirror       bool       `json:"isMirror"`
}

type pageInfo struct {
	HasNextPage bool    `json:"hasNextPage"`
	EndCursor   *string `json:"endCursor"`
}

type reposResponse struct {
	Data *struct {
		Organization *struct {
			Repositories *struct {
				PageInfo pageInfo    `json:"pageInfo"`
				Nodes    []*repoNode `json:"nodes"`
			} `json:"repositories"`
		} `json:"organization"`
	} `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

type graphQLErrorEntry struct {
	Message string `json:"message"`
}

func graphQLErrors(raw json.RawMessage) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	gqlErr := &GraphQLError{Raw: raw}
	var entries []graphQLErrorEntry
	if err := json.Unmarshal(raw, &entries); err == nil {
		for _, e := range entries {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
		}
	}
	return gqlErr
}

// FetchRepos pages through every public, non-fork repository of org and
// returns the ones that are not archived, disabled, locked or mirrors.
func (c *Collector) FetchRepos(ctx context.Context, org, token string) ([]*repoNode, error) {
	endpoint := strings.TrimRight(c.endpoints.GitHub, "/") + "/graphql"
	headers := bearer(token)

	var (
		cursor *string
		repos  []*repoNode
		seen   = make(map[string]bool)
		page   int
	)
	for {
		page++
		payload := map[string]any{
			"query":     reposQuery,
			"variables": map[string]any{"org": org, "cursor": cursor},
		}
		var resp reposResponse
		if err := c.client.PostJSON(ctx, endpoint, headers, payload, &resp); err != nil {
			return nil, fmt.Errorf("github repos page %d: %w", page, err)
		}
		if err := graphQLErrors(resp.Errors); err != nil {
			return nil, err
		}
		if resp.Data == nil || resp.Data.Organization == nil {
			return nil, fmt.Errorf("%w: %q", ErrOrgNotFound, org)
		}

		block := resp.Data.Organization.Repositories
		if block == nil {
			break
		}
		kept := 0
		for _, n := range block.Nodes {
			if keepRepo(n) {
				repos = append(repos, n)
				kept++
			}
		}
		c.log.Debug("github repos page",
			zap.Int("page", page),
			zap.Int("nodes", len(block.Nodes)),
			zap.Int("kept", kept))

		if !block.PageInfo.HasNextPage {
			break
		}
		next := block.PageInfo.EndCursor
		if next == nil || *next == "" || seen[*next] {
			return nil, fmt.Errorf("github repos page %d: %w", page, ErrPaginationStalled)
		}
		seen[*next] = true
		cursor = next

		if err := c.sleep(ctx, c.pacing.GraphQLPage); err != nil {
			return nil, err
		}
	}
	return repos, nil
}

// FetchContributors counts contributors (anonymous included) of org/repo.
// With per_page=1 the page number of the "last" link is the count. Any
// failure is logged and counted as 0 so the merge can keep the prior value.
func (c *Collector) FetchContributors(ctx context.Context, org, repo, token string) int64 {
	headers := bearer(token)
	headers["Accept"] = "application/vnd.github+json"
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contributors",
		strings.TrimRight(c.endpoints.GitHub, "/"), url.PathEscape(org), url.PathEscape(repo))
	params := url.Values{"per_page": {"1"}, "anon": {"true"}}

	resp, err := c.client.Get(ctx, endpoint, headers, params)
	if err != nil {
		c.log.Warn("failed to fetch contributors", zap.String("repo", repo), zap.Error(err))
		return 0
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		// empty repository
		return 0
	default:
		c.log.Warn("failed to fetch contributors",
			zap.String("repo", repo),
			zap.Int("status", resp.StatusCode))
		return 0
	}

	if last, ok := lastPage(resp.Header.Get("Link")); ok {
		return int64(last)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(resp.Body, &items); err != nil {
		c.log.Warn("failed to decode contributors", zap.String("repo", repo), zap.Error(err))
		return 0
	}
	return int64(len(items))
}

// lastPage extracts the page number of the rel="last" entry of a Link header
func lastPage(link string) (int, bool) {
	for _, part := range strings.Split(link, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		isLast := false
		for _, s := range segs[1:] {
			s = strings.TrimSpace(s)
			if s == `rel="last"` || s == "rel=last" {
				isLast = true
				break
			}
		}
		if !isLast {
			continue
		}
		raw := strings.Trim(strings.TrimSpace(segs[0]), "<>")
		u, err := url.Parse(raw)
		if err != nil {
			return 0, false
		}
		n, err := strconv.Atoi(u.Query().Get("page"))
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// CollectGitHub fetches org repositories and contributor counts, reconciles
// them with the previous github.json and writes the merged snapshot.
func (c *Collector) CollectGitHub(ctx context.Context) (*model.GitHubStats, error) {
	org, token := c.spec.Org, c.spec.GitHubToken
	if token == "" {
		return nil, ErrMissingToken
	}
	path := c.out.Path(utils.GitHubFile)
	existing, _ := ReadJSON[model.GitHubStats](path)
	oldRepos := indexRepos(existing.Repos)

	nodes, err := c.FetchRepos(ctx, org, token)
	if err != nil {
		return nil, err
	}

	repos := make([]model.RepoStats, 0, len(nodes))
	restored := 0
	for i, n := range sortByStars(nodes) {
		if i > 0 {
			if err := c.sleep(ctx, c.pacing.Repo); err != nil {
				return nil, err
			}
		}
		fresh := toRepoStats(n, c.FetchContributors(ctx, org, n.Name, token))
		if old, ok := oldRepos[n.Name]; ok {
			restored += len(SafeMerge(c.log, n.Name, &fresh, &old, model.RepoCounterFields...))
		}
		repos = append(repos, fresh)
	}

	// If API returned no repos, keep existing repos
	if len(repos) == 0 && len(existing.Repos) > 0 {
		c.log.Warn("GitHub API returned no repos, keeping existing data",
			zap.Int("existing_repos", len(existing.Repos)))
		repos = existing.Repos
	}

	doc := &model.GitHubStats{
		Org:       org,
		Timestamp: utils.Timestamp(c.now()),
		Repos:     repos,
	}
	aggregateGitHub(doc)

	c.tracker.AddRestored(SourceGitHub, restored)
	if err := c.export(path, doc, len(doc.Repos)); err != nil {
		return nil, err
	}
	return doc, nil
}

// CollectOrgStars writes the star-only org snapshot to path
func (c *Collector) CollectOrgStars(ctx context.Context, path string) (*model.OrgStars, error) {
	org, token := c.spec.Org, c.spec.GitHubToken
	if token == "" {
		return nil, ErrMissingToken
	}
	if path == "" {
		path = c.out.Path(utils.OrgStarsFile)
	}

	nodes, err := c.FetchRepos(ctx, org, token)
	if err != nil {
		return nil, err
	}
	doc := &model.OrgStars{
		Org:       org,
		Timestamp: utils.Timestamp(c.now()),
		Repos:     toRepoStars(nodes),
	}
	aggregateOrgStars(doc)

	if err := c.export(path, doc, len(doc.Repos)); err != nil {
		return nil, err
	}
	return doc, nil
}
