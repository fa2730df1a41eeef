package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ultralytics/stars/internal/model"
	"github.com/ultralytics/stars/pkg/utils"
)

// shields.io proxies Reddit with its own API access, so no Reddit
// credentials are needed.
type shieldsBadge struct {
	Value   string `json:"value"`
	Message string `json:"message"`
}

// FetchRedditSubscribers reads the subscriber badge of a subreddit; 0 on failure
func (c *Collector) FetchRedditSubscribers(ctx context.Context, subreddit string) int64 {
	endpoint := fmt.Sprintf("%s/reddit/subreddit-subscribers/%s.json",
		strings.TrimRight(c.endpoints.Shields, "/"), url.PathEscape(subreddit))

	resp, err := c.client.Do(ctx, Request{URL: endpoint, Timeout: pypiTimeout})
	if err != nil {
		c.log.Warn("shields.io Reddit endpoint failed", zap.Error(err))
		c.tracker.RecordError(ctx, SourceReddit, err)
		return 0
	}
	if err := checkStatus(http.MethodGet, endpoint, resp); err != nil {
		c.log.Warn("shields.io Reddit endpoint unavailable", zap.Int("status", resp.StatusCode))
		c.tracker.RecordError(ctx, SourceReddit, fmt.Errorf("r/%s: %w", subreddit, err))
		return 0
	}
	var badge shieldsBadge
	if err := resp.DecodeJSON(&badge); err != nil {
		c.log.Warn("shields.io Reddit endpoint failed", zap.Error(err))
		return 0
	}
	value := badge.Value
	if value == "" {
		value = badge.Message
	}
	return utils.ParseAbbreviatedNumber(value)
}

// CollectReddit fetches the subscriber count, reconciles it with the previous
// reddit.json and writes the merged snapshot.
func (c *Collector) CollectReddit(ctx context.Context) (*model.RedditStats, error) {
	path := c.out.Path(utils.RedditFile)
	existing, _ := ReadJSON[model.RedditStats](path)

	doc := &model.RedditStats{
		Subreddit:   c.spec.Subreddit,
		Subscribers: c.FetchRedditSubscribers(ctx, c.spec.Subreddit),
		Timestamp:   utils.Timestamp(c.now()),
	}
	restored := SafeMerge(c.log, "Reddit", doc, &existing, "subscribers")

	c.tracker.AddRestored(SourceReddit, len(restored))
	if err := c.export(path, doc, 1); err != nil {
		return nil, err
	}
	return doc, nil
}
