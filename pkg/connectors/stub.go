package connectors

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"socialfi-engine/pkg/models"
)

var stubURLPatterns = map[models.NetworkSource][]*regexp.Regexp{
	models.NetworkX: {
		regexp.MustCompile(`twitter\.com/\w+/status/\d+`),
		regexp.MustCompile(`x\.com/\w+/status/\d+`),
	},
	models.NetworkInstagram: {
		regexp.MustCompile(`instagram\.com/p/[\w-]+`),
		regexp.MustCompile(`instagram\.com/reel/[\w-]+`),
	},
	models.NetworkTwitch: {
		regexp.MustCompile(`twitch\.tv/\w+/clip/[\w-]+`),
		regexp.MustCompile(`clips\.twitch\.tv/[\w-]+`),
	},
}

// StubConnector stands in for networks that require API keys or OAuth. It
// returns no trending content and builds embed-only posts from pasted URLs.
type StubConnector struct {
	network models.NetworkSource
}

func NewStubConnector(network models.NetworkSource) *StubConnector {
	return &StubConnector{network: network}
}

func (s *StubConnector) Network() models.NetworkSource { return s.network }

func (s *StubConnector) CanHandleURL(rawURL string) bool {
	for _, p := range stubURLPatterns[s.network] {
		if p.MatchString(rawURL) {
			return true
		}
	}
	return false
}

func (s *StubConnector) FetchTrending(ctx context.Context, limit int) ([]models.Post, error) {
	logrus.WithField("network", s.network).Debug("stub connector has no trending feed")
	return nil, nil
}

// FetchByURL builds a minimal post from the URL alone.
func (s *StubConnector) FetchByURL(ctx context.Context, rawURL string) (*models.Post, error) {
	return &models.Post{
		SourceNetwork:  s.network,
		SourceID:       extractIDFromURL(rawURL),
		SourceURL:      rawURL,
		AuthorUsername: "unknown",
		ContentText:    fmt.Sprintf("[Content from %s - embed preview only]", s.network),
		MediaType:      "embed",
		Status:         models.PostStatusActive,
		IngestedAt:     time.Now().UTC(),
	}, nil
}

func extractIDFromURL(rawURL string) string {
	parts := strings.Split(strings.TrimRight(rawURL, "/"), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if len(parts[i]) > 5 {
			return parts[i]
		}
	}
	return rawURL
}
