package connectors

import (
	"context"

	"github.com/sirupsen/logrus"

	"socialfi-engine/pkg/models"
)

// Connector ingests content from one social network and normalizes it to
// the unified post shape. Implementations must be safe for concurrent use.
type Connector interface {
	Network() models.NetworkSource
	FetchTrending(ctx context.Context, limit int) ([]models.Post, error)
	FetchByURL(ctx context.Context, url string) (*models.Post, error)
	CanHandleURL(url string) bool
}

// Registry holds every available connector.
type Registry struct {
	connectors map[models.NetworkSource]Connector
	log        *logrus.Entry
}

// NewRegistry builds the default registry: live connectors for networks with
// public APIs, stubs for the ones that need API keys.
func NewRegistry() *Registry {
	r := &Registry{
		connectors: make(map[models.NetworkSource]Connector),
		log:        logrus.WithField("component", "connectors"),
	}
	r.Register(NewRedditConnector())
	r.Register(NewFarcasterConnector())
	r.Register(NewStubConnector(models.NetworkX))
	r.Register(NewStubConnector(models.NetworkInstagram))
	r.Register(NewStubConnector(models.NetworkTwitch))
	return r
}

// Register adds or replaces a connector.
func (r *Registry) Register(c Connector) {
	r.connectors[c.Network()] = c
}

// Get returns the connector for a network.
func (r *Registry) Get(network models.NetworkSource) (Connector, bool) {
	c, ok := r.connectors[network]
	return c, ok
}

// ForURL finds the connector that can ingest the given URL.
func (r *Registry) ForURL(url string) (Connector, bool) {
	for _, c := range r.connectors {
		if c.CanHandleURL(url) {
			return c, true
		}
	}
	return nil, false
}

// FetchAllTrending pulls trending posts from the given networks, or from
// every registered network when none are named. A failing network is logged
// and skipped, the rest still return.
func (r *Registry) FetchAllTrending(ctx context.Context, networks []models.NetworkSource, limitPerNetwork int) []models.Post {
	if len(networks) == 0 {
		for n := range r.connectors {
			networks = append(networks, n)
		}
	}

	var all []models.Post
	for _, network := range networks {
		c, ok := r.connectors[network]
		if !ok {
			continue
		}
		posts, err := c.FetchTrending(ctx, limitPerNetwork)
		if err != nil {
			r.log.WithError(err).WithField("network", network).Error("trending fetch failed")
			continue
		}
		all = append(all, posts...)
	}
	return all
}
