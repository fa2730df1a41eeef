package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultralytics/stars/internal/model"
	"github.com/ultralytics/stars/pkg/utils"
)

func TestFetchRedditSubscribers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/shields/reddit/subreddit-subscribers/ultralytics.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(t, w, http.StatusOK, map[string]any{"label": "follow r/ultralytics", "value": "1.4k"})
	})
	mux.HandleFunc("/shields/reddit/subreddit-subscribers/message.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(t, w, http.StatusOK, map[string]any{"message": "2.5M"})
	})
	mux.HandleFunc("/shields/reddit/subreddit-subscribers/garbage.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(t, w, http.StatusOK, map[string]any{"value": "invalid subreddit"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := newTestCollector(t, srv, model.CollectSpec{})
	ctx := context.Background()
	assert.Equal(t, int64(1400), c.FetchRedditSubscribers(ctx, "ultralytics"))
	assert.Equal(t, int64(2500000), c.FetchRedditSubscribers(ctx, "message"))
	assert.Equal(t, int64(0), c.FetchRedditSubscribers(ctx, "garbage"))
	assert.Equal(t, int64(0), c.FetchRedditSubscribers(ctx, "missing"))
}

func TestCollectRedditKeepsPriorOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := newTestCollector(t, srv, model.CollectSpec{Subreddit: "ultralytics"})
	seedJSON(t, c.out.Path(utils.RedditFile), model.RedditStats{Subreddit: "ultralytics", Subscribers: 2000})

	doc, err := c.CollectReddit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2000), doc.Subscribers)
	assert.Equal(t, "ultralytics", doc.Subreddit)

	written, ok := ReadJSON[model.RedditStats](c.out.Path(utils.RedditFile))
	require.True(t, ok)
	assert.Equal(t, int64(2000), written.Subscribers)
	assert.Equal(t, "2025-06-01T12:00:00.000000Z", written.Timestamp)
}
