package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"socialfi-engine/pkg/database"
	"socialfi-engine/pkg/ledger"
)

// FreezeMarket halts trading on a market.
func (h *Handlers) FreezeMarket(c *gin.Context) {
	h.setMarketFrozen(c, true)
}

// UnfreezeMarket resumes trading on a halted market. Markets frozen by a
// consistency failure need operator review before this is called.
func (h *Handlers) UnfreezeMarket(c *gin.Context) {
	h.setMarketFrozen(c, false)
}

func (h *Handlers) setMarketFrozen(c *gin.Context, frozen bool) {
	marketID := c.Param("marketId")

	if err := h.store.SetMarketFrozen(c.Request.Context(), marketID, frozen); err != nil {
		if errors.Is(err, ledger.ErrMarketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Market not found"})
			return
		}
		h.log.WithError(err).Error("failed to update market freeze state")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update market"})
		return
	}

	h.log.WithField("market_id", marketID).WithField("frozen", frozen).Warn("market freeze state changed")
	c.JSON(http.StatusOK, gin.H{"market_id": marketID, "is_frozen": frozen})
}

// CheckDatabaseHealth verifies database connectivity.
func (h *Handlers) CheckDatabaseHealth(c *gin.Context) {
	if err := database.HealthCheck(h.db); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// CheckRedisHealth verifies redis connectivity.
func (h *Handlers) CheckRedisHealth(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusOK, gin.H{"status": "disabled"})
		return
	}
	if err := h.cache.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
