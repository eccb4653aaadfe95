package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide represents the direction of a trade
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Valid reports whether the side is one of the two known directions.
func (s TradeSide) Valid() bool {
	return s == TradeSideBuy || s == TradeSideSell
}

// Position is a wallet's holding in one market. Shares never go negative;
// a position that drains to exactly zero is deleted, not zeroed.
type Position struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	WalletAddress string          `gorm:"not null;size:200;uniqueIndex:idx_positions_wallet_market;index" json:"wallet_address"`
	MarketID      string          `gorm:"not null;size:20;uniqueIndex:idx_positions_wallet_market" json:"market_id"`
	Shares        decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"shares"`
	AvgPrice      decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"avg_price"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// Relationships
	Market Market `gorm:"foreignKey:MarketID" json:"-"`
}

// Trade is an immutable record of one executed buy or sell. It is never
// updated after insert; the (wallet, idempotency key) unique index is what
// makes retried requests replay-safe.
type Trade struct {
	ID               string          `gorm:"primaryKey;size:20" json:"id"`
	WalletAddress    string          `gorm:"not null;size:200;index;uniqueIndex:idx_trades_wallet_idem" json:"wallet_address"`
	MarketID         string          `gorm:"not null;size:20;index" json:"market_id"`
	Side             TradeSide       `gorm:"not null;size:4" json:"side"`
	Shares           decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"shares"`
	PricePerShare    decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"price_per_share"`
	Amount           decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"amount"` // total cost (buy) or net revenue (sell)
	FeeAmount        decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"fee_amount"`
	ResultingBalance decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"resulting_balance"`
	MarketVersion    int64           `gorm:"not null" json:"market_version"`
	IdempotencyKey   *string         `gorm:"size:64;uniqueIndex:idx_trades_wallet_idem" json:"idempotency_key,omitempty"`
	CreatedAt        time.Time       `gorm:"index" json:"created_at"`

	// Relationships
	Market Market `gorm:"foreignKey:MarketID" json:"-"`
}

// TableName methods
func (Position) TableName() string { return "positions" }
func (Trade) TableName() string    { return "trades" }
