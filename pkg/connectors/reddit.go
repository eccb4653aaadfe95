package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"socialfi-engine/pkg/models"
)

const redditBaseURL = "https://www.reddit.com"

var redditURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`reddit\.com/r/\w+/comments/\w+`),
	regexp.MustCompile(`redd\.it/\w+`),
	regexp.MustCompile(`old\.reddit\.com/r/\w+/comments/\w+`),
}

// RedditConnector reads Reddit's public JSON API. Appending .json to any
// post URL returns public data without authentication.
type RedditConnector struct {
	baseURL    string
	httpClient *http.Client
}

func NewRedditConnector() *RedditConnector {
	return &RedditConnector{
		baseURL: redditBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (r *RedditConnector) Network() models.NetworkSource { return models.NetworkReddit }

func (r *RedditConnector) CanHandleURL(rawURL string) bool {
	for _, p := range redditURLPatterns {
		if p.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// redditListing mirrors the subset of Reddit's listing payload we read.
type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	SelfText    string  `json:"selftext"`
	URL         string  `json:"url"`
	Thumbnail   string  `json:"thumbnail"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	IsSelf      bool    `json:"is_self"`
	Stickied    bool    `json:"stickied"`
	CreatedUTC  float64 `json:"created_utc"`
	Preview     struct {
		Images []struct {
			Source struct {
				URL string `json:"url"`
			} `json:"source"`
		} `json:"images"`
	} `json:"preview"`
}

// FetchTrending returns hot posts from r/all, self and pinned posts skipped.
func (r *RedditConnector) FetchTrending(ctx context.Context, limit int) ([]models.Post, error) {
	if limit > 100 {
		limit = 100
	}
	endpoint := fmt.Sprintf("%s/r/all/hot.json?limit=%s", r.baseURL, strconv.Itoa(limit))

	body, err := r.doGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("reddit: fetch trending: %w", err)
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("reddit: decode listing: %w", err)
	}

	posts := make([]models.Post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		if child.Data.IsSelf || child.Data.Stickied {
			continue
		}
		posts = append(posts, r.normalize(child.Data))
		if len(posts) >= limit {
			break
		}
	}
	return posts, nil
}

// FetchByURL resolves a single Reddit post. Post pages return a two-element
// array whose first element holds the post listing.
func (r *RedditConnector) FetchByURL(ctx context.Context, rawURL string) (*models.Post, error) {
	cleanURL := strings.TrimRight(strings.SplitN(rawURL, "?", 2)[0], "/")
	if !strings.HasSuffix(cleanURL, ".json") {
		cleanURL += ".json"
	}

	body, err := r.doGet(ctx, cleanURL)
	if err != nil {
		return nil, fmt.Errorf("reddit: fetch by url: %w", err)
	}

	var pages []redditListing
	if err := json.Unmarshal(body, &pages); err != nil {
		return nil, fmt.Errorf("reddit: decode post page: %w", err)
	}
	if len(pages) == 0 || len(pages[0].Data.Children) == 0 {
		return nil, fmt.Errorf("reddit: post not found at %s", rawURL)
	}

	post := r.normalize(pages[0].Data.Children[0].Data)
	return &post, nil
}

func (r *RedditConnector) normalize(p redditPost) models.Post {
	var mediaURLs []string
	mediaType := ""

	switch {
	case hasImageExt(p.URL):
		mediaURLs = append(mediaURLs, p.URL)
		mediaType = "image"
		if strings.Contains(strings.ToLower(p.URL), ".gif") {
			mediaType = "gif"
		}
	case strings.Contains(p.URL, "v.redd.it") || strings.Contains(p.URL, "youtube.com") || strings.Contains(p.URL, "youtu.be"):
		mediaURLs = append(mediaURLs, p.URL)
		mediaType = "video"
	}
	if len(mediaURLs) == 0 && len(p.Preview.Images) > 0 {
		if src := p.Preview.Images[0].Source.URL; src != "" {
			mediaURLs = append(mediaURLs, strings.ReplaceAll(src, "&amp;", "&"))
			mediaType = "image"
		}
	}
	if len(mediaURLs) == 0 && strings.HasPrefix(p.Thumbnail, "http") {
		mediaURLs = append(mediaURLs, p.Thumbnail)
		mediaType = "image"
	}

	var createdAt *time.Time
	if p.CreatedUTC > 0 {
		t := time.Unix(int64(p.CreatedUTC), 0).UTC()
		createdAt = &t
	}

	return models.Post{
		SourceNetwork:   models.NetworkReddit,
		SourceID:        p.ID,
		SourceURL:       fmt.Sprintf("https://reddit.com/r/%s/comments/%s", p.Subreddit, p.ID),
		AuthorUsername:  p.Author,
		Title:           p.Title,
		Subreddit:       p.Subreddit,
		ContentText:     truncate(p.SelfText, 500),
		MediaURLs:       models.EncodeMediaURLs(mediaURLs),
		MediaType:       mediaType,
		SourceLikes:     p.Score,
		SourceComments:  p.NumComments,
		Status:          models.PostStatusActive,
		SourceCreatedAt: createdAt,
		IngestedAt:      time.Now().UTC(),
	}
}

func (r *RedditConnector) doGet(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "socialfi-engine/1.0 (content aggregator)")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func hasImageExt(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".webp"} {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
