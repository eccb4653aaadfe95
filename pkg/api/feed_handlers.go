package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/xid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"socialfi-engine/pkg/cache"
	"socialfi-engine/pkg/curve"
	"socialfi-engine/pkg/middleware"
	"socialfi-engine/pkg/models"
)

// feedPost is one feed entry: the post plus its market snapshot.
type feedPost struct {
	ID                string                `json:"id"`
	SourceNetwork     models.NetworkSource  `json:"source_network"`
	SourceURL         string                `json:"source_url"`
	AuthorUsername    string                `json:"author_username"`
	AuthorDisplayName string                `json:"author_display_name,omitempty"`
	AuthorAvatarURL   string                `json:"author_avatar_url,omitempty"`
	Title             string                `json:"title,omitempty"`
	Subreddit         string                `json:"subreddit,omitempty"`
	Channel           string                `json:"channel,omitempty"`
	ContentText       string                `json:"content_text,omitempty"`
	MediaURLs         []string              `json:"media_urls"`
	MediaType         string                `json:"media_type,omitempty"`
	SourceLikes       int                   `json:"source_likes"`
	SourceComments    int                   `json:"source_comments"`
	SourceShares      int                   `json:"source_shares"`
	SourceCreatedAt   *time.Time            `json:"source_created_at,omitempty"`
	IngestedAt        time.Time             `json:"ingested_at"`
	Market            *feedMarket           `json:"market,omitempty"`
}

type feedMarket struct {
	ID          string          `json:"id"`
	Price       decimal.Decimal `json:"price"`
	Supply      decimal.Decimal `json:"supply"`
	TotalVolume decimal.Decimal `json:"total_volume"`
	IsFrozen    bool            `json:"is_frozen"`
}

type feedResponse struct {
	Posts   []feedPost `json:"posts"`
	Total   int64      `json:"total"`
	HasMore bool       `json:"has_more"`
}

// GetFeed returns the unified feed with network filters, sorting, and
// offset paging. Pages are cached briefly.
func (h *Handlers) GetFeed(c *gin.Context) {
	networksParam := c.DefaultQuery("networks", "")
	sort := c.DefaultQuery("sort", "trending")
	limit := parseIntQuery(c, "limit", h.cfg.Market.FeedPageSize, 100)
	offset := parseIntQuery(c, "offset", 0, 1<<20)

	var networks []models.NetworkSource
	if networksParam != "" {
		for _, name := range strings.Split(networksParam, ",") {
			if n, ok := models.ParseNetwork(strings.ToLower(strings.TrimSpace(name))); ok {
				networks = append(networks, n)
			}
		}
	}

	cacheKey := fmt.Sprintf(cache.KeyFeed, networksParam, sort, offset)
	if h.cache != nil {
		var cached feedResponse
		if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	query := h.db.Model(&models.Post{}).Where("posts.status = ?", models.PostStatusActive)
	if len(networks) > 0 {
		query = query.Where("posts.source_network IN ?", networks)
	}

	switch sort {
	case "new":
		query = query.Order("posts.ingested_at DESC")
	case "price":
		query = query.Joins("LEFT JOIN markets ON markets.post_id = posts.id").
			Order("markets.price DESC")
	case "volume":
		query = query.Joins("LEFT JOIN markets ON markets.post_id = posts.id").
			Order("markets.total_volume DESC")
	default: // trending
		query = query.Order("posts.source_likes DESC, posts.source_comments DESC")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		h.log.WithError(err).Error("feed count failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load feed"})
		return
	}

	var posts []models.Post
	if err := query.Offset(offset).Limit(limit).Find(&posts).Error; err != nil {
		h.log.WithError(err).Error("feed query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load feed"})
		return
	}

	markets, err := h.marketsByPostID(posts)
	if err != nil {
		h.log.WithError(err).Error("feed market lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load feed"})
		return
	}

	resp := feedResponse{
		Posts:   make([]feedPost, 0, len(posts)),
		Total:   total,
		HasMore: int64(offset+limit) < total,
	}
	for i := range posts {
		resp.Posts = append(resp.Posts, toFeedPost(&posts[i], markets[posts[i].ID]))
	}

	if h.cache != nil {
		_ = h.cache.Set(c.Request.Context(), cacheKey, resp, cache.ExpireFeed)
	}
	c.JSON(http.StatusOK, resp)
}

// GetNetworks lists the ingestable networks and whether each has a live
// connector.
func (h *Handlers) GetNetworks(c *gin.Context) {
	type networkInfo struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	names := map[models.NetworkSource]string{
		models.NetworkReddit:    "Reddit",
		models.NetworkFarcaster: "Farcaster",
		models.NetworkX:         "X (Twitter)",
		models.NetworkInstagram: "Instagram",
		models.NetworkTwitch:    "Twitch",
	}
	live := map[models.NetworkSource]bool{
		models.NetworkReddit:    true,
		models.NetworkFarcaster: true,
	}

	networks := make([]networkInfo, 0, len(models.KnownNetworks))
	for _, n := range models.KnownNetworks {
		status := "stub"
		if live[n] {
			status = "active"
		}
		networks = append(networks, networkInfo{ID: string(n), Name: names[n], Status: status})
	}
	c.JSON(http.StatusOK, gin.H{"networks": networks})
}

// RefreshFeed triggers a background ingest of trending content from the
// requested networks and returns immediately.
func (h *Handlers) RefreshFeed(c *gin.Context) {
	networksParam := c.DefaultQuery("networks", "reddit,farcaster")

	var networks []models.NetworkSource
	for _, name := range strings.Split(networksParam, ",") {
		if n, ok := models.ParseNetwork(strings.ToLower(strings.TrimSpace(name))); ok {
			networks = append(networks, n)
		}
	}
	if len(networks) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no valid networks"})
		return
	}

	go h.ingestTrending(networks)

	c.JSON(http.StatusAccepted, gin.H{
		"message":  "Feed refresh started",
		"networks": networks,
	})
}

// ingestTrending pulls trending posts per network concurrently and lists a
// market for each new post.
func (h *Handlers) ingestTrending(networks []models.NetworkSource) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var g errgroup.Group
	for _, network := range networks {
		network := network
		g.Go(func() error {
			connector, ok := h.registry.Get(network)
			if !ok {
				return nil
			}
			posts, err := connector.FetchTrending(ctx, 30)
			if err != nil {
				h.log.WithError(err).WithField("network", network).Error("trending fetch failed")
				return nil
			}
			created := 0
			for i := range posts {
				ok, err := h.listPost(&posts[i], "")
				if err != nil {
					h.log.WithError(err).WithField("network", network).Warn("failed to list post")
					continue
				}
				if ok {
					created++
				}
			}
			h.log.WithFields(logrus.Fields{
				"network": network,
				"fetched": len(posts),
				"created": created,
			}).Info("feed refresh completed")
			return nil
		})
	}
	_ = g.Wait()

	if h.cache != nil {
		_ = h.cache.DeletePattern(ctx, "feed:*")
	}
}

type pasteURLRequest struct {
	URL string `json:"url" binding:"required"`
}

// PasteURL lists a market for a pasted social post URL. The lister earns XP
// and reputation for bringing new content in.
func (h *Handlers) PasteURL(c *gin.Context) {
	wallet, ok := middleware.GetWallet(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req pasteURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	rawURL := strings.TrimSpace(req.URL)

	connector, ok := h.registry.ForURL(rawURL)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported URL. Supported: Reddit, Farcaster, X, Instagram, Twitch"})
		return
	}

	// Already listed?
	var existing models.Post
	err := h.db.Where("source_url = ?", rawURL).First(&existing).Error
	if err == nil {
		var market models.Market
		marketID := ""
		if err := h.db.Where("post_id = ?", existing.ID).First(&market).Error; err == nil {
			marketID = market.ID
		}
		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"post_id":        existing.ID,
			"market_id":      marketID,
			"network":        existing.SourceNetwork,
			"message":        "Post already listed",
			"already_exists": true,
		})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		h.log.WithError(err).Error("paste-url lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list post"})
		return
	}

	post, err := connector.FetchByURL(c.Request.Context(), rawURL)
	if err != nil {
		h.log.WithError(err).WithField("url", rawURL).Warn("connector fetch failed, using embed fallback")
		post = &models.Post{
			SourceNetwork:  connector.Network(),
			SourceID:       rawURL[strings.LastIndex(rawURL, "/")+1:],
			SourceURL:      rawURL,
			AuthorUsername: "unknown",
			ContentText:    fmt.Sprintf("[Content from %s]", connector.Network()),
			MediaType:      "embed",
			Status:         models.PostStatusActive,
			IngestedAt:     time.Now().UTC(),
		}
	}
	if post.SourceURL == "" {
		post.SourceURL = rawURL
	}

	created, err := h.listPost(post, wallet)
	if err != nil {
		h.log.WithError(err).Error("failed to list pasted post")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list post"})
		return
	}

	if created {
		if err := h.store.AwardXP(c.Request.Context(), wallet, 25, decimal.NewFromFloat(0.1)); err != nil {
			h.log.WithError(err).Warn("failed to award listing xp")
		}
	}

	var market models.Market
	marketID := ""
	if err := h.db.Where("post_id = ?", post.ID).First(&market).Error; err == nil {
		marketID = market.ID
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"post_id":        post.ID,
		"market_id":      marketID,
		"network":        post.SourceNetwork,
		"message":        fmt.Sprintf("Successfully listed %s post", post.SourceNetwork),
		"already_exists": !created,
	})
}

// listPost persists an ingested post and opens its market at the initial
// supply. Returns false when the post already existed.
func (h *Handlers) listPost(post *models.Post, listedBy string) (bool, error) {
	var existing models.Post
	err := h.db.Where("source_network = ? AND source_id = ?", post.SourceNetwork, post.SourceID).
		First(&existing).Error
	if err == nil {
		post.ID = existing.ID
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	if post.ID == "" {
		post.ID = xid.New().String()
	}
	if post.Status == "" {
		post.Status = models.PostStatusActive
	}
	post.ListedBy = listedBy

	if err := h.db.Create(post).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}

	market := models.Market{
		ID:       xid.New().String(),
		PostID:   post.ID,
		Supply:   models.DecimalFromFloat(h.cfg.Market.InitialSupply),
		Price:    decimal.NewFromFloat(curve.Price(h.cfg.Market.InitialSupply)).Round(curve.Precision),
		ListedBy: listedBy,
	}
	if err := h.db.Create(&market).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (h *Handlers) marketsByPostID(posts []models.Post) (map[string]*models.Market, error) {
	if len(posts) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(posts))
	for i := range posts {
		ids = append(ids, posts[i].ID)
	}

	var markets []models.Market
	if err := h.db.Where("post_id IN ?", ids).Find(&markets).Error; err != nil {
		return nil, err
	}
	byPost := make(map[string]*models.Market, len(markets))
	for i := range markets {
		byPost[markets[i].PostID] = &markets[i]
	}
	return byPost, nil
}

func toFeedPost(post *models.Post, market *models.Market) feedPost {
	fp := feedPost{
		ID:                post.ID,
		SourceNetwork:     post.SourceNetwork,
		SourceURL:         post.SourceURL,
		AuthorUsername:    post.AuthorUsername,
		AuthorDisplayName: post.AuthorDisplayName,
		AuthorAvatarURL:   post.AuthorAvatarURL,
		Title:             post.Title,
		Subreddit:         post.Subreddit,
		Channel:           post.Channel,
		ContentText:       post.ContentText,
		MediaURLs:         models.DecodeMediaURLs(post.MediaURLs),
		MediaType:         post.MediaType,
		SourceLikes:       post.SourceLikes,
		SourceComments:    post.SourceComments,
		SourceShares:      post.SourceShares,
		SourceCreatedAt:   post.SourceCreatedAt,
		IngestedAt:        post.IngestedAt,
	}
	if market != nil {
		fp.Market = &feedMarket{
			ID:          market.ID,
			Price:       market.Price,
			Supply:      market.Supply,
			TotalVolume: market.TotalVolume,
			IsFrozen:    market.IsFrozen,
		}
	}
	return fp
}

func parseIntQuery(c *gin.Context, name string, def, max int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
