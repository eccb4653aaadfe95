package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"socialfi-engine/pkg/cache"
	"socialfi-engine/pkg/engine"
	"socialfi-engine/pkg/middleware"
	"socialfi-engine/pkg/models"
)

type tradeBody struct {
	MarketID       string          `json:"market_id" binding:"required"`
	Shares         decimal.Decimal `json:"shares" binding:"required"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// Buy executes a buy against the market's bonding curve.
func (h *Handlers) Buy(c *gin.Context) {
	h.executeTrade(c, models.TradeSideBuy)
}

// Sell executes a sell against the market's bonding curve.
func (h *Handlers) Sell(c *gin.Context) {
	h.executeTrade(c, models.TradeSideSell)
}

func (h *Handlers) executeTrade(c *gin.Context, side models.TradeSide) {
	wallet, ok := middleware.GetWallet(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var body tradeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "market_id and shares are required"})
		return
	}

	// Header takes precedence over the body field.
	idemKey := c.GetHeader("X-Idempotency-Key")
	if idemKey == "" {
		idemKey = body.IdempotencyKey
	}

	result, err := h.executor.ExecuteTrade(c.Request.Context(), engine.TradeRequest{
		Wallet:         wallet,
		MarketID:       body.MarketID,
		Side:           side,
		Shares:         body.Shares,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		h.writeTradeError(c, err)
		return
	}

	if !result.Replayed {
		h.publishTrade(c, body.MarketID, result)
	}

	c.JSON(http.StatusOK, result)
}

// publishTrade pushes the post-trade market state to websocket subscribers
// and drops stale cache entries.
func (h *Handlers) publishTrade(c *gin.Context, marketID string, result *engine.TradeResult) {
	if h.hub != nil {
		var market models.Market
		if err := h.db.Where("id = ?", marketID).First(&market).Error; err == nil {
			h.hub.BroadcastTicker(marketID, gin.H{
				"market_id": market.ID,
				"price":     market.Price,
				"supply":    market.Supply,
				"volume":    market.TotalVolume,
				"version":   market.Version,
			})
		}
		h.hub.BroadcastTrade(marketID, result)
	}

	if h.cache != nil {
		ctx := c.Request.Context()
		_ = h.cache.Delete(ctx, fmt.Sprintf(cache.KeyMarketData, marketID))
		_ = h.cache.DeletePattern(ctx, "feed:*")
	}
}
