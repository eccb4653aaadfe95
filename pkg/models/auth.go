package models

import (
	"time"
)

// Challenge is a single-use nonce a wallet must sign to authenticate.
// Expired and used challenges are rejected at verification time and swept
// opportunistically.
type Challenge struct {
	ID            string    `gorm:"primaryKey;size:20" json:"id"`
	WalletAddress string    `gorm:"not null;size:200;index" json:"wallet_address"`
	ChainType     string    `gorm:"not null;size:20" json:"chain_type"`
	Nonce         string    `gorm:"unique;not null;size:64" json:"nonce"`
	Used          bool      `gorm:"default:false" json:"used"`
	ExpiresAt     time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// RateLimitEntry is the database fallback for the redis rate limiter.
type RateLimitEntry struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Key         string    `gorm:"unique;not null;index" json:"key"` // IP or wallet
	Count       int       `gorm:"not null" json:"count"`
	WindowStart time.Time `gorm:"not null;index" json:"window_start"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName methods
func (Challenge) TableName() string      { return "challenges" }
func (RateLimitEntry) TableName() string { return "rate_limits" }
