package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"socialfi-engine/pkg/models"
)

// GormStore implements Store on a SQL database through GORM. Every mutating
// primitive is a single conditional statement whose WHERE clause carries the
// guard (version, balance floor, share floor); RowsAffected distinguishes a
// clean miss from a committed write. No multi-row transactions are used.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an initialized database handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateMarket(ctx context.Context, market *models.Market) error {
	if err := s.db.WithContext(ctx).Create(market).Error; err != nil {
		return fmt.Errorf("failed to create market: %w", err)
	}
	return nil
}

func (s *GormStore) GetMarket(ctx context.Context, marketID string) (*models.Market, error) {
	var market models.Market
	err := s.db.WithContext(ctx).Where("id = ?", marketID).First(&market).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMarketNotFound
		}
		return nil, fmt.Errorf("failed to load market %s: %w", marketID, err)
	}
	return &market, nil
}

func (s *GormStore) GetMarketByPost(ctx context.Context, postID string) (*models.Market, error) {
	var market models.Market
	err := s.db.WithContext(ctx).Where("post_id = ?", postID).First(&market).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMarketNotFound
		}
		return nil, fmt.Errorf("failed to load market for post %s: %w", postID, err)
	}
	return &market, nil
}

func (s *GormStore) TryUpdateMarket(ctx context.Context, marketID string, expectedVersion int64, mut MarketMutation) (*models.Market, error) {
	res := s.db.WithContext(ctx).Model(&models.Market{}).
		Where("id = ? AND version = ? AND is_frozen = ?", marketID, expectedVersion, false).
		Updates(map[string]interface{}{
			"supply":           mut.NewSupply,
			"price":            mut.NewPrice,
			"total_volume":     gorm.Expr("total_volume + ?", mut.VolumeDelta),
			"fees_collected":   gorm.Expr("fees_collected + ?", mut.FeeDelta),
			"creator_earnings": gorm.Expr("creator_earnings + ?", mut.CreatorDelta),
			"liquidity_pool":   gorm.Expr("liquidity_pool + ?", mut.LiquidityDelta),
			"version":          gorm.Expr("version + 1"),
			"last_trade_at":    mut.TradedAt,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update market %s: %w", marketID, res.Error)
	}
	if res.RowsAffected == 0 {
		// Classify the miss: gone, frozen, or moved.
		current, err := s.GetMarket(ctx, marketID)
		if err != nil {
			return nil, err
		}
		if current.IsFrozen {
			return nil, ErrMarketFrozen
		}
		return nil, ErrVersionConflict
	}
	return s.GetMarket(ctx, marketID)
}

func (s *GormStore) SetMarketFrozen(ctx context.Context, marketID string, frozen bool) error {
	res := s.db.WithContext(ctx).Model(&models.Market{}).
		Where("id = ?", marketID).
		Updates(map[string]interface{}{
			"is_frozen": frozen,
			"version":   gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to set frozen on market %s: %w", marketID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrMarketNotFound
	}
	return nil
}

func (s *GormStore) GetUser(ctx context.Context, wallet string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("wallet_address = ?", strings.ToLower(wallet)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

func (s *GormStore) TryDebitBalance(ctx context.Context, wallet string, amount decimal.Decimal) (decimal.Decimal, error) {
	wallet = strings.ToLower(wallet)
	// RETURNING yields this statement's resulting balance; a separate read
	// could observe a concurrent mutation instead.
	var user models.User
	res := s.db.WithContext(ctx).Model(&user).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "balance_credits"}}}).
		Where("wallet_address = ? AND balance_credits >= ?", wallet, amount).
		Update("balance_credits", gorm.Expr("balance_credits - ?", amount))
	if res.Error != nil {
		return decimal.Zero, fmt.Errorf("failed to debit balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetUser(ctx, wallet); err != nil {
			return decimal.Zero, err
		}
		return decimal.Zero, ErrInsufficientFunds
	}
	return user.BalanceCredits, nil
}

func (s *GormStore) CreditBalance(ctx context.Context, wallet string, amount decimal.Decimal) (decimal.Decimal, error) {
	wallet = strings.ToLower(wallet)
	var user models.User
	res := s.db.WithContext(ctx).Model(&user).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "balance_credits"}}}).
		Where("wallet_address = ?", wallet).
		Update("balance_credits", gorm.Expr("balance_credits + ?", amount))
	if res.Error != nil {
		return decimal.Zero, fmt.Errorf("failed to credit balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return decimal.Zero, ErrUserNotFound
	}
	return user.BalanceCredits, nil
}

func (s *GormStore) AwardXP(ctx context.Context, wallet string, xp int, reputation decimal.Decimal) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("wallet_address = ?", strings.ToLower(wallet)).
		Updates(map[string]interface{}{
			"xp":         gorm.Expr("xp + ?", xp),
			"reputation": gorm.Expr("reputation + ?", reputation),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to award xp: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *GormStore) GetPosition(ctx context.Context, wallet, marketID string) (*models.Position, error) {
	var pos models.Position
	err := s.db.WithContext(ctx).
		Where("wallet_address = ? AND market_id = ?", strings.ToLower(wallet), marketID).
		First(&pos).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load position: %w", err)
	}
	return &pos, nil
}

func (s *GormStore) UpsertPosition(ctx context.Context, wallet, marketID string, shareDelta, cost decimal.Decimal) error {
	wallet = strings.ToLower(wallet)

	if shareDelta.IsPositive() {
		return s.incrementPosition(ctx, wallet, marketID, shareDelta, cost)
	}
	return s.decrementPosition(ctx, wallet, marketID, shareDelta.Neg())
}

func (s *GormStore) incrementPosition(ctx context.Context, wallet, marketID string, shares, cost decimal.Decimal) error {
	// All SET expressions evaluate against the old row, so the weighted
	// average can reference shares before it is reassigned.
	res := s.db.WithContext(ctx).Model(&models.Position{}).
		Where("wallet_address = ? AND market_id = ?", wallet, marketID).
		Updates(map[string]interface{}{
			"avg_price": gorm.Expr("round((shares * avg_price + ?) / (shares + ?), 6)", cost, shares),
			"shares":    gorm.Expr("shares + ?", shares),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to increment position: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	avgPrice := decimal.Zero
	if !shares.IsZero() {
		avgPrice = cost.Div(shares).Round(6)
	}
	err := s.db.WithContext(ctx).Create(&models.Position{
		WalletAddress: wallet,
		MarketID:      marketID,
		Shares:        shares,
		AvgPrice:      avgPrice,
	}).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost the first-buy race; the row exists now, fold into it.
		return s.incrementPosition(ctx, wallet, marketID, shares, cost)
	}
	return fmt.Errorf("failed to create position: %w", err)
}

func (s *GormStore) decrementPosition(ctx context.Context, wallet, marketID string, shares decimal.Decimal) error {
	// Exact drain deletes the row in one statement.
	res := s.db.WithContext(ctx).
		Where("wallet_address = ? AND market_id = ? AND shares = ?", wallet, marketID, shares).
		Delete(&models.Position{})
	if res.Error != nil {
		return fmt.Errorf("failed to drain position: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	res = s.db.WithContext(ctx).Model(&models.Position{}).
		Where("wallet_address = ? AND market_id = ? AND shares > ?", wallet, marketID, shares).
		Update("shares", gorm.Expr("shares - ?", shares))
	if res.Error != nil {
		return fmt.Errorf("failed to decrement position: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientShares
	}
	return nil
}

func (s *GormStore) FindTradeByIdempotencyKey(ctx context.Context, wallet, key string) (*models.Trade, error) {
	var trade models.Trade
	err := s.db.WithContext(ctx).
		Where("wallet_address = ? AND idempotency_key = ?", strings.ToLower(wallet), key).
		First(&trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up trade by idempotency key: %w", err)
	}
	return &trade, nil
}

func (s *GormStore) RecordTrade(ctx context.Context, trade *models.Trade) error {
	err := s.db.WithContext(ctx).Create(trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateTrade
		}
		return fmt.Errorf("failed to record trade: %w", err)
	}
	return nil
}
