package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"socialfi-engine/pkg/models"
)

// Store failure signals. Each primitive either fully applies or reports one
// of these with no partial effect.
var (
	ErrMarketNotFound     = errors.New("market not found")
	ErrMarketFrozen       = errors.New("market is frozen")
	ErrVersionConflict    = errors.New("market version conflict")
	ErrUserNotFound       = errors.New("user not found")
	ErrInsufficientFunds  = errors.New("insufficient balance")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrDuplicateTrade     = errors.New("trade with this idempotency key already recorded")
)

// MarketMutation is the full set of changes one committed trade applies to a
// market record. Supply and price are absolute (both derive from the quote);
// the remaining fields are deltas.
type MarketMutation struct {
	NewSupply      decimal.Decimal
	NewPrice       decimal.Decimal
	VolumeDelta    decimal.Decimal
	FeeDelta       decimal.Decimal
	CreatorDelta   decimal.Decimal
	LiquidityDelta decimal.Decimal
	TradedAt       time.Time
}

// Store owns every mutation of Market, Position, and Balance records. Each
// primitive maps to a single conditional update on one record, so no
// cross-record transaction is ever needed: callers sequence primitives and
// compensate on partial failure instead of holding locks.
type Store interface {
	// Markets
	CreateMarket(ctx context.Context, market *models.Market) error
	GetMarket(ctx context.Context, marketID string) (*models.Market, error)
	GetMarketByPost(ctx context.Context, postID string) (*models.Market, error)
	// TryUpdateMarket applies the mutation only if the stored version still
	// equals expectedVersion and the market is not frozen. On success the
	// version is incremented by one and the updated record returned.
	TryUpdateMarket(ctx context.Context, marketID string, expectedVersion int64, mut MarketMutation) (*models.Market, error)
	// SetMarketFrozen flips the frozen flag unconditionally (admin and
	// consistency-halt path; bumps version so in-flight trades conflict).
	SetMarketFrozen(ctx context.Context, marketID string, frozen bool) error

	// Balances
	GetUser(ctx context.Context, wallet string) (*models.User, error)
	// TryDebitBalance decrements only if balance >= amount, returning the
	// resulting balance.
	TryDebitBalance(ctx context.Context, wallet string, amount decimal.Decimal) (decimal.Decimal, error)
	// CreditBalance increments unconditionally, returning the resulting
	// balance.
	CreditBalance(ctx context.Context, wallet string, amount decimal.Decimal) (decimal.Decimal, error)
	// AwardXP bumps engagement counters; failures are non-fatal to trades.
	AwardXP(ctx context.Context, wallet string, xp int, reputation decimal.Decimal) error

	// Positions
	GetPosition(ctx context.Context, wallet, marketID string) (*models.Position, error)
	// UpsertPosition applies a share delta. Positive deltas create the
	// position if absent and recompute AvgPrice as the share-weighted
	// average using cost (the pre-fee cost of the increment). Negative
	// deltas fail with ErrInsufficientShares rather than going below zero,
	// and delete the row when it lands exactly on zero.
	UpsertPosition(ctx context.Context, wallet, marketID string, shareDelta, cost decimal.Decimal) error

	// Trades
	// FindTradeByIdempotencyKey returns (nil, nil) when no trade matches.
	FindTradeByIdempotencyKey(ctx context.Context, wallet, key string) (*models.Trade, error)
	// RecordTrade appends an immutable trade record; a duplicate
	// (wallet, idempotency key) pair fails with ErrDuplicateTrade.
	RecordTrade(ctx context.Context, trade *models.Trade) error
}
