package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"socialfi-engine/pkg/auth"
	"socialfi-engine/pkg/models"
)

const (
	ctxKeyWallet = "wallet"
	ctxKeyUser   = "user"
	ctxKeyAdmin  = "is_admin"
)

// AuthMiddleware handles authentication
type AuthMiddleware struct {
	jwtService *auth.JWTService
	db         *gorm.DB
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(jwtService *auth.JWTService, db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		db:         db,
	}
}

// RequireAuth rejects requests without a valid bearer token and loads the
// wallet's user row into the request context.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := am.bearerClaims(c)
		if !ok {
			return
		}

		var user models.User
		if err := am.db.Where("wallet_address = ?", claims.Wallet).First(&user).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
			c.Abort()
			return
		}

		c.Set(ctxKeyWallet, user.WalletAddress)
		c.Set(ctxKeyUser, &user)
		c.Set(ctxKeyAdmin, user.IsAdmin)
		c.Next()
	}
}

// OptionalAuth loads the wallet when a valid token is present but lets
// anonymous requests through.
func (am *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}
		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			c.Next()
			return
		}
		claims, err := am.jwtService.ValidateToken(tokenParts[1])
		if err != nil {
			c.Next()
			return
		}
		c.Set(ctxKeyWallet, claims.Wallet)
		c.Set(ctxKeyAdmin, claims.IsAdmin)
		c.Next()
	}
}

// RequireAdmin allows only authenticated admin wallets. Must run after
// RequireAuth.
func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ctxKeyAdmin) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (am *AuthMiddleware) bearerClaims(c *gin.Context) (*auth.JWTClaims, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
		c.Abort()
		return nil, false
	}

	tokenParts := strings.Split(authHeader, " ")
	if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
		c.Abort()
		return nil, false
	}

	claims, err := am.jwtService.ValidateToken(tokenParts[1])
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		c.Abort()
		return nil, false
	}
	return claims, true
}

// GetWallet returns the authenticated wallet address, if any.
func GetWallet(c *gin.Context) (string, bool) {
	wallet := c.GetString(ctxKeyWallet)
	return wallet, wallet != ""
}

// GetUser returns the loaded user row set by RequireAuth.
func GetUser(c *gin.Context) (*models.User, bool) {
	val, exists := c.Get(ctxKeyUser)
	if !exists {
		return nil, false
	}
	user, ok := val.(*models.User)
	return user, ok
}
