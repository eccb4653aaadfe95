package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User represents a wallet-authenticated account. Users are keyed by
// lowercased wallet address; the numeric ID exists only for persistence.
type User struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	WalletAddress  string          `gorm:"unique;not null;size:200" json:"wallet_address"`
	ChainType      string          `gorm:"not null;size:20;default:'ethereum'" json:"chain_type"`
	BalanceCredits decimal.Decimal `gorm:"type:decimal(20,6);default:0;index" json:"balance_credits"`
	Level          int             `gorm:"default:1" json:"level"`
	XP             int             `gorm:"default:0;index" json:"xp"`
	Reputation     decimal.Decimal `gorm:"type:decimal(10,2);default:0;index" json:"reputation"`
	IsAdmin        bool            `gorm:"default:false" json:"is_admin"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	LastLoginAt    *time.Time      `json:"last_login_at,omitempty"`

	// Relationships
	Positions []Position `gorm:"foreignKey:WalletAddress;references:WalletAddress" json:"positions,omitempty"`
}

// BeforeCreate hook for User
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.BalanceCredits.IsZero() {
		u.BalanceCredits = decimal.Zero
	}
	if u.Level == 0 {
		u.Level = 1
	}
	return nil
}

// TableName methods
func (User) TableName() string { return "users" }
