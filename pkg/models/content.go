package models

import (
	"time"
)

// NetworkSource identifies the social network a post was ingested from.
type NetworkSource string

const (
	NetworkReddit    NetworkSource = "reddit"
	NetworkFarcaster NetworkSource = "farcaster"
	NetworkX         NetworkSource = "x"
	NetworkInstagram NetworkSource = "instagram"
	NetworkTwitch    NetworkSource = "twitch"
	NetworkManual    NetworkSource = "manual" // user-pasted URL
)

// KnownNetworks lists every network the platform can ingest from.
var KnownNetworks = []NetworkSource{
	NetworkReddit, NetworkFarcaster, NetworkX, NetworkInstagram, NetworkTwitch,
}

// ParseNetwork returns the NetworkSource for a name, or false if unknown.
func ParseNetwork(name string) (NetworkSource, bool) {
	for _, n := range KnownNetworks {
		if string(n) == name {
			return n, true
		}
	}
	return "", false
}

// PostStatus represents the moderation status of a post
type PostStatus string

const (
	PostStatusActive    PostStatus = "active"
	PostStatusPending   PostStatus = "pending"
	PostStatusModerated PostStatus = "moderated"
	PostStatusDeleted   PostStatus = "deleted"
)

// Post is the unified shape every ingested piece of content normalizes to,
// regardless of source network.
type Post struct {
	ID                string        `gorm:"primaryKey;size:20" json:"id"`
	SourceNetwork     NetworkSource `gorm:"not null;size:20;index;uniqueIndex:idx_posts_network_source" json:"source_network"`
	SourceID          string        `gorm:"not null;size:200;uniqueIndex:idx_posts_network_source" json:"source_id"`
	SourceURL         string        `gorm:"size:500;index" json:"source_url"`
	AuthorUsername    string        `gorm:"size:100" json:"author_username"`
	AuthorDisplayName string        `gorm:"size:200" json:"author_display_name,omitempty"`
	AuthorAvatarURL   string        `gorm:"size:500" json:"author_avatar_url,omitempty"`
	Title             string        `gorm:"size:500" json:"title,omitempty"`    // Reddit posts
	Subreddit         string        `gorm:"size:100" json:"subreddit,omitempty"` // Reddit specific
	Channel           string        `gorm:"size:100" json:"channel,omitempty"`   // Farcaster specific
	ContentText       string        `gorm:"type:text" json:"content_text,omitempty"`
	MediaURLs         string        `gorm:"type:text" json:"-"` // JSON-encoded list
	MediaType         string        `gorm:"size:10" json:"media_type,omitempty"` // image, video, gif, embed
	SourceLikes       int           `gorm:"default:0;index" json:"source_likes"`
	SourceComments    int           `gorm:"default:0;index" json:"source_comments"`
	SourceShares      int           `gorm:"default:0" json:"source_shares"`
	Status            PostStatus    `gorm:"not null;size:10;default:'active';index" json:"status"`
	ListedBy          string        `gorm:"size:200" json:"listed_by,omitempty"`
	SourceCreatedAt   *time.Time    `json:"source_created_at,omitempty"`
	IngestedAt        time.Time     `gorm:"index" json:"ingested_at"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// TableName methods
func (Post) TableName() string { return "posts" }
