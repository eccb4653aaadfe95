package api

import (
	"github.com/gin-gonic/gin"

	"socialfi-engine/pkg/middleware"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, h *Handlers, authMW *middleware.AuthMiddleware, rateMW *middleware.RateLimitMiddleware) {
	router.GET("/health", h.Health)

	setupSwagger(router)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/", h.Root)
		v1.GET("/health", h.Health)

		// Wallet authentication
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/challenge", rateMW.Limit(middleware.ChallengeRateLimit), h.Challenge)
			authGroup.POST("/verify", rateMW.Limit(middleware.VerifyRateLimit), h.Verify)
			authGroup.GET("/me", authMW.RequireAuth(), h.Me)
		}

		// Unified content feed
		feed := v1.Group("/feed")
		{
			feed.GET("", rateMW.Limit(middleware.FeedRateLimit), h.GetFeed)
			feed.GET("/networks", h.GetNetworks)
			feed.POST("/refresh", rateMW.Limit(middleware.FeedRefreshRateLimit), h.RefreshFeed)
		}

		// Listing by pasted URL
		posts := v1.Group("/posts")
		posts.Use(authMW.RequireAuth())
		{
			posts.POST("/paste-url", rateMW.Limit(middleware.PasteURLRateLimit), h.PasteURL)
		}

		// Markets are public reads
		markets := v1.Group("/markets")
		{
			markets.GET("/:marketId", h.GetMarket)
			markets.GET("/:marketId/trades", h.GetMarketTrades)
			markets.GET("/:marketId/quote", h.QuoteTrade)
		}

		// Trading requires a wallet session
		trades := v1.Group("/trades")
		trades.Use(authMW.RequireAuth())
		trades.Use(rateMW.Limit(middleware.TradeRateLimit))
		{
			trades.POST("/buy", h.Buy)
			trades.POST("/sell", h.Sell)
		}

		v1.GET("/portfolio", authMW.RequireAuth(), rateMW.Limit(middleware.PortfolioRateLimit), h.GetPortfolio)
		v1.GET("/leaderboard", rateMW.Limit(middleware.LeaderboardRateLimit), h.GetLeaderboard)

		// Live market ticker
		ws := v1.Group("/ws")
		ws.Use(authMW.OptionalAuth())
		{
			ws.GET("", h.hub.HandleWebSocket)
		}
	}

	// Admin endpoints (require admin authentication)
	admin := router.Group("/admin")
	admin.Use(authMW.RequireAuth())
	admin.Use(authMW.RequireAdmin())
	{
		admin.POST("/markets/:marketId/freeze", h.FreezeMarket)
		admin.POST("/markets/:marketId/unfreeze", h.UnfreezeMarket)
		admin.GET("/health/database", h.CheckDatabaseHealth)
		admin.GET("/health/redis", h.CheckRedisHealth)
	}
}
