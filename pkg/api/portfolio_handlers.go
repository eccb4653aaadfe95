package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"socialfi-engine/pkg/curve"
	"socialfi-engine/pkg/middleware"
	"socialfi-engine/pkg/models"
)

type portfolioPosition struct {
	MarketID     string          `json:"market_id"`
	Shares       decimal.Decimal `json:"shares"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	CurrentValue decimal.Decimal `json:"current_value"`
	PnL          decimal.Decimal `json:"pnl"`
	PnLPercent   decimal.Decimal `json:"pnl_percent"`
	Post         *feedPost       `json:"post,omitempty"`
}

// GetPortfolio returns the wallet's open positions with mark-to-market
// values against current curve prices.
func (h *Handlers) GetPortfolio(c *gin.Context) {
	user, ok := middleware.GetUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var positions []models.Position
	if err := h.db.Where("wallet_address = ? AND shares > 0", user.WalletAddress).
		Find(&positions).Error; err != nil {
		h.log.WithError(err).Error("portfolio query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load portfolio"})
		return
	}

	out := make([]portfolioPosition, 0, len(positions))
	totalValue := decimal.Zero

	for i := range positions {
		pos := &positions[i]

		var market models.Market
		if err := h.db.Preload("Post").Where("id = ?", pos.MarketID).First(&market).Error; err != nil {
			continue
		}

		currentValue := pos.Shares.Mul(market.Price).Round(curve.Precision)
		costBasis := pos.Shares.Mul(pos.AvgPrice)
		pnl := currentValue.Sub(costBasis).Round(curve.Precision)
		pnlPercent := decimal.Zero
		if costBasis.IsPositive() {
			pnlPercent = pnl.Div(costBasis).Mul(decimal.NewFromInt(100)).Round(2)
		}

		post := toFeedPost(&market.Post, &market)
		out = append(out, portfolioPosition{
			MarketID:     pos.MarketID,
			Shares:       pos.Shares,
			AvgPrice:     pos.AvgPrice,
			CurrentPrice: market.Price,
			CurrentValue: currentValue,
			PnL:          pnl,
			PnLPercent:   pnlPercent,
			Post:         &post,
		})
		totalValue = totalValue.Add(currentValue)
	}

	c.JSON(http.StatusOK, gin.H{
		"positions":       out,
		"total_value":     totalValue,
		"cash_balance":    user.BalanceCredits,
		"total_portfolio": totalValue.Add(user.BalanceCredits),
	})
}

type leaderboardEntry struct {
	Rank           int             `json:"rank"`
	WalletAddress  string          `json:"wallet_address"`
	Level          int             `json:"level"`
	XP             int             `json:"xp"`
	Reputation     decimal.Decimal `json:"reputation"`
	BalanceCredits decimal.Decimal `json:"balance_credits"`
}

// GetLeaderboard ranks users by xp, reputation, or balance. Wallet
// addresses are shortened for display.
func (h *Handlers) GetLeaderboard(c *gin.Context) {
	sortBy := c.DefaultQuery("sort_by", "xp")
	limit := parseIntQuery(c, "limit", 50, 100)

	column := "xp"
	switch sortBy {
	case "reputation":
		column = "reputation"
	case "balance":
		column = "balance_credits"
	}

	var users []models.User
	if err := h.db.Order(column + " DESC").Limit(limit).Find(&users).Error; err != nil {
		h.log.WithError(err).Error("leaderboard query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load leaderboard"})
		return
	}

	entries := make([]leaderboardEntry, 0, len(users))
	for i := range users {
		entries = append(entries, leaderboardEntry{
			Rank:           i + 1,
			WalletAddress:  shortenWallet(users[i].WalletAddress),
			Level:          users[i].Level,
			XP:             users[i].XP,
			Reputation:     users[i].Reputation,
			BalanceCredits: users[i].BalanceCredits,
		})
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

func shortenWallet(wallet string) string {
	if len(wallet) <= 10 {
		return wallet
	}
	return wallet[:10] + "..."
}
