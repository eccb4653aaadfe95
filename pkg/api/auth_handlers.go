package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"socialfi-engine/pkg/auth"
	"socialfi-engine/pkg/middleware"
	"socialfi-engine/pkg/models"
)

type challengeRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
	ChainType     string `json:"chain_type"`
}

type verifyRequest struct {
	ChallengeID   string `json:"challenge_id" binding:"required"`
	WalletAddress string `json:"wallet_address" binding:"required"`
	Signature     string `json:"signature" binding:"required"`
}

// Challenge issues a sign-in challenge for a wallet.
func (h *Handlers) Challenge(c *gin.Context) {
	var req challengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet_address is required"})
		return
	}
	if req.ChainType == "" {
		req.ChainType = "ethereum"
	}

	issued, err := h.challenges.Issue(req.WalletAddress, req.ChainType)
	if err != nil {
		h.log.WithError(err).Error("failed to issue challenge")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue challenge"})
		return
	}
	c.JSON(http.StatusOK, issued)
}

// Verify checks the signed challenge, creates the user on first login, and
// issues an access token.
func (h *Handlers) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "challenge_id, wallet_address and signature are required"})
		return
	}

	ch, err := h.challenges.Verify(req.ChallengeID, req.WalletAddress, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrChallengeNotFound),
			errors.Is(err, auth.ErrChallengeExpired),
			errors.Is(err, auth.ErrChallengeUsed):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Challenge expired or already used"})
		case errors.Is(err, auth.ErrBadSignature):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		default:
			h.log.WithError(err).Error("challenge verification failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		}
		return
	}

	user, err := h.findOrCreateUser(ch.WalletAddress, ch.ChainType)
	if err != nil {
		h.log.WithError(err).Error("failed to load user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	token, err := h.jwt.Generate(user)
	if err != nil {
		h.log.WithError(err).Error("failed to issue token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token.AccessToken,
		"token_type":   "bearer",
		"expires_at":   token.ExpiresAt,
		"user":         userProfile(user),
	})
}

// Me returns the authenticated user's profile.
func (h *Handlers) Me(c *gin.Context) {
	user, ok := middleware.GetUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	c.JSON(http.StatusOK, userProfile(user))
}

// findOrCreateUser loads the wallet's user row, provisioning a fresh account
// with signup credits on first login.
func (h *Handlers) findOrCreateUser(wallet, chainType string) (*models.User, error) {
	wallet = strings.ToLower(wallet)
	now := time.Now()

	var user models.User
	err := h.db.Where("wallet_address = ?", wallet).First(&user).Error
	if err == nil {
		h.db.Model(&user).Update("last_login_at", now)
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = models.User{
		WalletAddress:  wallet,
		ChainType:      chainType,
		BalanceCredits: models.DecimalFromFloat(h.cfg.Market.SignupCredits),
		Level:          1,
		LastLoginAt:    &now,
	}
	if err := h.db.Create(&user).Error; err != nil {
		// Lost a race with a concurrent first login.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if err2 := h.db.Where("wallet_address = ?", wallet).First(&user).Error; err2 == nil {
				return &user, nil
			}
		}
		return nil, err
	}
	h.log.WithField("wallet", wallet).Info("new user created")
	return &user, nil
}

func userProfile(user *models.User) gin.H {
	return gin.H{
		"id":              user.ID,
		"wallet_address":  user.WalletAddress,
		"chain_type":      user.ChainType,
		"balance_credits": user.BalanceCredits,
		"level":           user.Level,
		"xp":              user.XP,
		"reputation":      user.Reputation,
		"is_admin":        user.IsAdmin,
		"created_at":      user.CreatedAt,
	}
}
