package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market is the bonding-curve market attached to a single post. Supply and
// price are the only pricing inputs; price is always a recompute of supply,
// never an independently assigned value. Version is the optimistic
// concurrency counter: every committed mutation increments it by exactly one.
type Market struct {
	ID              string          `gorm:"primaryKey;size:20" json:"id"`
	PostID          string          `gorm:"uniqueIndex;not null;size:20" json:"post_id"`
	Supply          decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"supply"`
	Price           decimal.Decimal `gorm:"type:decimal(20,6);not null;index" json:"price"`
	TotalVolume     decimal.Decimal `gorm:"type:decimal(20,6);default:0;index" json:"total_volume"`
	FeesCollected   decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"fees_collected"`
	CreatorEarnings decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"creator_earnings"`
	LiquidityPool   decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"liquidity_pool"`
	IsFrozen        bool            `gorm:"default:false" json:"is_frozen"`
	Version         int64           `gorm:"default:0;index" json:"version"`
	ListedBy        string          `gorm:"size:200" json:"listed_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	LastTradeAt     *time.Time      `json:"last_trade_at,omitempty"`

	// Relationships
	Post   Post    `gorm:"foreignKey:PostID" json:"-"`
	Trades []Trade `gorm:"foreignKey:MarketID" json:"trades,omitempty"`
}

// TableName methods
func (Market) TableName() string { return "markets" }
