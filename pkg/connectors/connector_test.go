package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialfi-engine/pkg/models"
)

func TestRegistryRoutesURLs(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		url     string
		network models.NetworkSource
	}{
		{"https://www.reddit.com/r/golang/comments/abc123/some_post/", models.NetworkReddit},
		{"https://redd.it/abc123", models.NetworkReddit},
		{"https://warpcast.com/dwr/0xabc123", models.NetworkFarcaster},
		{"https://x.com/someone/status/12345678", models.NetworkX},
		{"https://instagram.com/p/Cxyz-123", models.NetworkInstagram},
		{"https://clips.twitch.tv/FunnyClip-abc", models.NetworkTwitch},
	}
	for _, tt := range tests {
		c, ok := r.ForURL(tt.url)
		require.True(t, ok, "no connector for %s", tt.url)
		assert.Equal(t, tt.network, c.Network(), tt.url)
	}

	_, ok := r.ForURL("https://example.com/random")
	assert.False(t, ok)
}

func TestRedditFetchTrending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/r/all/hot.json", req.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"children":[
			{"data":{"id":"p1","title":"A post","author":"alice","subreddit":"golang","score":42,"num_comments":7,"url":"https://i.redd.it/pic.jpg","created_utc":1700000000}},
			{"data":{"id":"p2","title":"Pinned","author":"mod","subreddit":"golang","stickied":true}},
			{"data":{"id":"p3","title":"Self post","author":"bob","subreddit":"golang","is_self":true}}
		]}}`))
	}))
	defer srv.Close()

	c := NewRedditConnector()
	c.baseURL = srv.URL

	posts, err := c.FetchTrending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, posts, 1, "self and stickied posts are skipped")

	p := posts[0]
	assert.Equal(t, models.NetworkReddit, p.SourceNetwork)
	assert.Equal(t, "p1", p.SourceID)
	assert.Equal(t, "alice", p.AuthorUsername)
	assert.Equal(t, "golang", p.Subreddit)
	assert.Equal(t, 42, p.SourceLikes)
	assert.Equal(t, "image", p.MediaType)
	assert.Equal(t, []string{"https://i.redd.it/pic.jpg"}, models.DecodeMediaURLs(p.MediaURLs))
	require.NotNil(t, p.SourceCreatedAt)
}

func TestFarcasterFetchByURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/cast", req.URL.Path)
		assert.Equal(t, "0xdeadbeef", req.URL.Query().Get("hash"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":{"cast":{
			"hash":"0xdeadbeef","text":"gm","timestamp":1700000000000,
			"author":{"username":"dwr","displayName":"Dan"},
			"reactions":{"count":10},"replies":{"count":2},"recasts":{"count":3}
		}}}`))
	}))
	defer srv.Close()

	c := NewFarcasterConnector()
	c.baseURL = srv.URL

	post, err := c.FetchByURL(context.Background(), "https://warpcast.com/dwr/0xdeadbeef")
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", post.SourceID)
	assert.Equal(t, "dwr", post.AuthorUsername)
	assert.Equal(t, "gm", post.ContentText)
	assert.Equal(t, 10, post.SourceLikes)
	assert.Equal(t, 3, post.SourceShares)
}

func TestStubFetchByURL(t *testing.T) {
	c := NewStubConnector(models.NetworkX)

	post, err := c.FetchByURL(context.Background(), "https://x.com/someone/status/12345678")
	require.NoError(t, err)
	assert.Equal(t, models.NetworkX, post.SourceNetwork)
	assert.Equal(t, "12345678", post.SourceID)
	assert.Equal(t, "embed", post.MediaType)

	posts, err := c.FetchTrending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, posts)
}
