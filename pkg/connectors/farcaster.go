package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"socialfi-engine/pkg/models"
)

const farcasterBaseURL = "https://api.warpcast.com/v2"

var (
	farcasterURLPatterns = []*regexp.Regexp{
		regexp.MustCompile(`warpcast\.com/\w+/0x[a-fA-F0-9]+`),
		regexp.MustCompile(`warpcast\.com/~/conversations/0x[a-fA-F0-9]+`),
	}
	castHashPattern = regexp.MustCompile(`0x[a-fA-F0-9]+`)
)

// FarcasterConnector reads Warpcast's public endpoints. Farcaster is
// decentralized; no API key is needed for basic queries.
type FarcasterConnector struct {
	baseURL    string
	httpClient *http.Client
}

func NewFarcasterConnector() *FarcasterConnector {
	return &FarcasterConnector{
		baseURL: farcasterBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (f *FarcasterConnector) Network() models.NetworkSource { return models.NetworkFarcaster }

func (f *FarcasterConnector) CanHandleURL(rawURL string) bool {
	for _, p := range farcasterURLPatterns {
		if p.MatchString(rawURL) {
			return true
		}
	}
	return false
}

type farcasterCast struct {
	Hash      string `json:"hash"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	ParentURL string `json:"parentUrl"`
	Author    struct {
		Username    string `json:"username"`
		DisplayName string `json:"displayName"`
		PFP         struct {
			URL string `json:"url"`
		} `json:"pfp"`
	} `json:"author"`
	Embeds []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"embeds"`
	Reactions struct {
		Count int `json:"count"`
	} `json:"reactions"`
	Replies struct {
		Count int `json:"count"`
	} `json:"replies"`
	Recasts struct {
		Count int `json:"count"`
	} `json:"recasts"`
}

// FetchTrending returns casts from the public home feed.
func (f *FarcasterConnector) FetchTrending(ctx context.Context, limit int) ([]models.Post, error) {
	if limit > 100 {
		limit = 100
	}
	endpoint := fmt.Sprintf("%s/feed-items?feedType=home&limit=%s", f.baseURL, strconv.Itoa(limit))

	body, err := f.doGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("farcaster: fetch trending: %w", err)
	}

	var payload struct {
		Result struct {
			Items []struct {
				Cast *farcasterCast `json:"cast"`
			} `json:"items"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("farcaster: decode feed: %w", err)
	}

	posts := make([]models.Post, 0, len(payload.Result.Items))
	for _, item := range payload.Result.Items {
		if item.Cast == nil {
			continue
		}
		posts = append(posts, f.normalize(item.Cast))
		if len(posts) >= limit {
			break
		}
	}
	return posts, nil
}

// FetchByURL resolves a single cast from a Warpcast URL by its hash.
func (f *FarcasterConnector) FetchByURL(ctx context.Context, rawURL string) (*models.Post, error) {
	hash := castHashPattern.FindString(rawURL)
	if hash == "" {
		return nil, fmt.Errorf("farcaster: no cast hash in url %s", rawURL)
	}

	endpoint := fmt.Sprintf("%s/cast?hash=%s", f.baseURL, url.QueryEscape(hash))
	body, err := f.doGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("farcaster: fetch by url: %w", err)
	}

	var payload struct {
		Result struct {
			Cast *farcasterCast `json:"cast"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("farcaster: decode cast: %w", err)
	}
	if payload.Result.Cast == nil {
		return nil, fmt.Errorf("farcaster: cast %s not found", hash)
	}

	post := f.normalize(payload.Result.Cast)
	return &post, nil
}

func (f *FarcasterConnector) normalize(cast *farcasterCast) models.Post {
	var mediaURLs []string
	mediaType := ""
	for _, embed := range cast.Embeds {
		switch embed.Type {
		case "image":
			mediaURLs = append(mediaURLs, embed.URL)
			mediaType = "image"
		case "video":
			mediaURLs = append(mediaURLs, embed.URL)
			mediaType = "video"
		}
	}

	var createdAt *time.Time
	if cast.Timestamp > 0 {
		// Warpcast timestamps are unix milliseconds.
		t := time.UnixMilli(cast.Timestamp).UTC()
		createdAt = &t
	}

	return models.Post{
		SourceNetwork:     models.NetworkFarcaster,
		SourceID:          cast.Hash,
		SourceURL:         fmt.Sprintf("https://warpcast.com/%s/%s", cast.Author.Username, cast.Hash),
		AuthorUsername:    cast.Author.Username,
		AuthorDisplayName: cast.Author.DisplayName,
		AuthorAvatarURL:   cast.Author.PFP.URL,
		Channel:           cast.ParentURL,
		ContentText:       truncate(cast.Text, 500),
		MediaURLs:         models.EncodeMediaURLs(mediaURLs),
		MediaType:         mediaType,
		SourceLikes:       cast.Reactions.Count,
		SourceComments:    cast.Replies.Count,
		SourceShares:      cast.Recasts.Count,
		Status:            models.PostStatusActive,
		SourceCreatedAt:   createdAt,
		IngestedAt:        time.Now().UTC(),
	}
}

func (f *FarcasterConnector) doGet(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "socialfi-engine/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
