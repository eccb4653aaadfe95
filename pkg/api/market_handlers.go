package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"socialfi-engine/pkg/models"
)

// GetMarket returns one market with its post.
func (h *Handlers) GetMarket(c *gin.Context) {
	marketID := c.Param("marketId")

	var market models.Market
	if err := h.db.Preload("Post").Where("id = ?", marketID).First(&market).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Market not found"})
			return
		}
		h.log.WithError(err).Error("market lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load market"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"market": market,
		"post":   toFeedPost(&market.Post, &market),
	})
}

// GetMarketTrades returns a market's recent trades, newest first.
func (h *Handlers) GetMarketTrades(c *gin.Context) {
	marketID := c.Param("marketId")
	limit := parseIntQuery(c, "limit", 50, 200)

	var market models.Market
	if err := h.db.Select("id").Where("id = ?", marketID).First(&market).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Market not found"})
			return
		}
		h.log.WithError(err).Error("market lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load market"})
		return
	}

	var trades []models.Trade
	if err := h.db.Where("market_id = ?", marketID).
		Order("created_at DESC").Limit(limit).Find(&trades).Error; err != nil {
		h.log.WithError(err).Error("trades query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trades"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

// QuoteTrade prices a prospective trade without executing it.
func (h *Handlers) QuoteTrade(c *gin.Context) {
	marketID := c.Param("marketId")
	side := models.TradeSide(c.DefaultQuery("side", "buy"))

	shares, err := decimal.NewFromString(c.Query("shares"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shares must be a positive number"})
		return
	}

	quote, qerr := h.executor.Quote(c.Request.Context(), marketID, side, shares)
	if qerr != nil {
		h.writeTradeError(c, qerr)
		return
	}
	c.JSON(http.StatusOK, quote)
}
