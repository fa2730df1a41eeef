package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ultralytics/stars/internal/model"
)

const (
	starAccept      = "application/vnd.github.star+json"
	stargazersPage  = 100
	DefaultStarDays = 30
)

type repoList struct {
	Repositories []string `yaml:"repositories"`
}

// LoadRepoList reads the "repositories:" list of owner/name slugs from a YAML file
func LoadRepoList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read repo list: %w", err)
	}
	var list repoList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	repos := make([]string, 0, len(list.Repositories))
	for _, r := range list.Repositories {
		if _, _, err := splitRepoSlug(r); err != nil {
			return nil, err
		}
		repos = append(repos, strings.TrimSpace(r))
	}
	if len(repos) == 0 {
		return nil, fmt.Errorf("%s lists no repositories", path)
	}
	return repos, nil
}

// StarCountOptions controls a trailing-window stargazer count
type StarCountOptions struct {
	Token string
	Days  float64
	Save  bool // look up each recent stargazer and keep those with a public email
}

type stargazerEntry struct {
	StarredAt time.Time `json:"starred_at"`
	User      *struct {
		Login string `json:"login"`
	} `json:"user"`
}

type githubUser struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	Company   string `json:"company"`
	Email     string `json:"email"`
	Location  string `json:"location"`
	HTMLURL   string `json:"html_url"`
	Followers int    `json:"followers"`
}

// CountStars counts, per repository, the stars given inside the trailing
// window. Stargazers are listed oldest first, so pages are walked from the
// last one backwards and the walk stops at the first star older than the
// window. A repository that fails keeps the count reached so far.
func (c *Collector) CountStars(ctx context.Context, repos []string, opts StarCountOptions) ([]model.StarWindow, []model.Stargazer, error) {
	days := opts.Days
	if days <= 0 {
		days = DefaultStarDays
	}
	cutoff := c.now().Add(-time.Duration(days * float64(24*time.Hour)))

	windows := make([]model.StarWindow, 0, len(repos))
	var users []model.Stargazer
	for _, slug := range repos {
		owner, name, err := splitRepoSlug(slug)
		if err != nil {
			return nil, nil, err
		}
		full := owner + "/" + name
		recent, err := c.recentStargazers(ctx, owner, name, opts.Token, cutoff)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			c.log.Warn("failed to list stargazers", zap.String("repo", full), zap.Error(err))
		}
		windows = append(windows, model.StarWindow{Repo: full, Stars: len(recent), Days: days})
		c.log.Info("counted stars",
			zap.String("repo", full),
			zap.Int("stars", len(recent)),
			zap.Float64("days", days))

		if !opts.Save {
			continue
		}
		for _, s := range recent {
			if err := c.sleep(ctx, c.pacing.UserLookup); err != nil {
				return nil, nil, err
			}
			u, err := c.fetchUser(ctx, s.User.Login, opts.Token)
			if err != nil {
				c.log.Warn("failed to fetch user", zap.String("login", s.User.Login), zap.Error(err))
				continue
			}
			if u.Email == "" {
				continue
			}
			users = append(users, model.Stargazer{
				Repo:      full,
				Login:     u.Login,
				Name:      u.Name,
				Company:   u.Company,
				Email:     u.Email,
				Location:  u.Location,
				HTMLURL:   u.HTMLURL,
				Followers: u.Followers,
				StarredAt: s.StarredAt,
			})
		}
	}
	return windows, users, nil
}

// recentStargazers returns the stargazers newer than cutoff, newest first
func (c *Collector) recentStargazers(ctx context.Context, owner, name, token string, cutoff time.Time) ([]stargazerEntry, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/stargazers",
		strings.TrimRight(c.endpoints.GitHub, "/"), url.PathEscape(owner), url.PathEscape(name))
	headers := bearer(token)
	headers["Accept"] = starAccept

	first, link, err := c.stargazerPage(ctx, endpoint, headers, 1)
	if err != nil {
		return nil, err
	}
	last, ok := lastPage(link)
	if !ok || last < 1 {
		last = 1
	}

	var recent []stargazerEntry
	for page := last; page >= 1; page-- {
		entries := first
		if page != 1 {
			if entries, _, err = c.stargazerPage(ctx, endpoint, headers, page); err != nil {
				return recent, err
			}
		}
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			if !e.StarredAt.After(cutoff) {
				return recent, nil
			}
			if e.User != nil && e.User.Login != "" {
				recent = append(recent, e)
			}
		}
	}
	return recent, nil
}

func (c *Collector) stargazerPage(ctx context.Context, endpoint string, headers map[string]string, page int) ([]stargazerEntry, string, error) {
	params := url.Values{
		"per_page": {strconv.Itoa(stargazersPage)},
		"page":     {strconv.Itoa(page)},
	}
	resp, err := c.client.Get(ctx, endpoint, headers, params)
	if err != nil {
		return nil, "", err
	}
	if err := checkStatus(http.MethodGet, endpoint, resp); err != nil {
		return nil, "", err
	}
	var entries []stargazerEntry
	if err := json.Unmarshal(resp.Body, &entries); err != nil {
		return nil, "", fmt.Errorf("stargazers page %d: %w", page, err)
	}
	return entries, resp.Header.Get("Link"), nil
}

func (c *Collector) fetchUser(ctx context.Context, login, token string) (*githubUser, error) {
	endpoint := fmt.Sprintf("%s/users/%s", strings.TrimRight(c.endpoints.GitHub, "/"), url.PathEscape(login))
	var u githubUser
	if err := c.client.GetJSON(ctx, endpoint, bearer(token), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
