package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/xid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"socialfi-engine/pkg/curve"
	"socialfi-engine/pkg/ledger"
	"socialfi-engine/pkg/models"
)

// DefaultMaxAttempts bounds the optimistic retry loop on market version
// conflicts before the trade surfaces CodeTradeConflict to the caller.
const DefaultMaxAttempts = 4

// XP awarded per executed trade.
const tradeXP = 10

// TradeRequest is one buy or sell intent from an authenticated caller.
type TradeRequest struct {
	Wallet         string
	MarketID       string
	Side           models.TradeSide
	Shares         decimal.Decimal
	IdempotencyKey string
}

// TradeResult is the realized outcome of an executed (or replayed) trade.
type TradeResult struct {
	TradeID       string           `json:"trade_id"`
	Side          models.TradeSide `json:"side"`
	Shares        decimal.Decimal  `json:"shares"`
	PricePerShare decimal.Decimal  `json:"price_per_share"`
	Amount        decimal.Decimal  `json:"amount"` // total cost (buy) or net revenue (sell)
	FeeAmount     decimal.Decimal  `json:"fee_amount"`
	NewBalance    decimal.Decimal  `json:"new_balance"`
	MarketVersion int64            `json:"market_version"`
	Replayed      bool             `json:"replayed"`
}

// QuoteResult prices a prospective trade without mutating anything.
type QuoteResult struct {
	Side      models.TradeSide `json:"side"`
	Shares    decimal.Decimal  `json:"shares"`
	Amount    decimal.Decimal  `json:"amount"` // total cost (buy) or net revenue (sell)
	Fee       decimal.Decimal  `json:"fee"`
	AvgPrice  decimal.Decimal  `json:"avg_price"`
	NewSupply decimal.Decimal  `json:"new_supply"`
	NewPrice  decimal.Decimal  `json:"new_price"`
	IsFrozen  bool             `json:"is_frozen"`
}

// Executor orchestrates single trades against the ledger: quote, validate,
// commit the market under optimistic concurrency, settle balance and
// position, and append the immutable trade record. Side effects are strictly
// ordered market -> balance -> position -> record, so every partial failure
// has a defined compensating action.
type Executor struct {
	store       ledger.Store
	maxAttempts int
	now         func() time.Time
	log         *logrus.Entry
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxAttempts overrides the bounded retry count for version conflicts.
func WithMaxAttempts(n int) Option {
	return func(e *Executor) { e.maxAttempts = n }
}

// WithClock overrides the timestamp source (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithLogger overrides the log entry trades are logged against.
func WithLogger(log *logrus.Entry) Option {
	return func(e *Executor) { e.log = log }
}

// NewExecutor builds an executor over the given ledger store.
func NewExecutor(store ledger.Store, opts ...Option) *Executor {
	e := &Executor{
		store:       store,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		log:         logrus.WithField("component", "trade_executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Quote prices a prospective trade. Read-only: no balance or position checks
// and no mutation, so a quote on a frozen market still prices (the flag is
// reported for display).
func (e *Executor) Quote(ctx context.Context, marketID string, side models.TradeSide, shares decimal.Decimal) (*QuoteResult, error) {
	if !side.Valid() {
		return nil, newError(CodeInvalidArgument, "side must be buy or sell")
	}
	if !shares.IsPositive() {
		return nil, newError(CodeInvalidArgument, "shares must be positive")
	}
	if marketID == "" {
		return nil, newError(CodeInvalidArgument, "market id is required")
	}

	market, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		if errors.Is(err, ledger.ErrMarketNotFound) {
			return nil, newError(CodeNotFound, "market not found")
		}
		return nil, err
	}

	quote, _, tradeErr := priceTrade(market, side, shares)
	if tradeErr != nil {
		return nil, tradeErr
	}
	quote.IsFrozen = market.IsFrozen
	return quote, nil
}

// ExecuteTrade runs one buy or sell to completion. Identical requests
// carrying the same idempotency key commit exactly one trade; replays return
// the originally recorded result unchanged.
func (e *Executor) ExecuteTrade(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	if req.Wallet == "" {
		return nil, newError(CodeInvalidArgument, "caller wallet is required")
	}
	if req.MarketID == "" {
		return nil, newError(CodeInvalidArgument, "market id is required")
	}
	if !req.Side.Valid() {
		return nil, newError(CodeInvalidArgument, "side must be buy or sell")
	}
	if !req.Shares.IsPositive() {
		return nil, newError(CodeInvalidArgument, "shares must be positive")
	}

	// Replay path: a prior attempt with this key already committed.
	if req.IdempotencyKey != "" {
		prior, err := e.store.FindTradeByIdempotencyKey(ctx, req.Wallet, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return replayResult(prior), nil
		}
	}

	var (
		quote     *QuoteResult
		mutation  ledger.MarketMutation
		committed *models.Market
	)

	// Quote and commit the market under optimistic concurrency. Only a
	// version conflict re-enters the loop; every other failure aborts.
	err := ledger.CompareAndSwap(ctx, e.maxAttempts,
		func(ctx context.Context) (*models.Market, error) {
			return e.store.GetMarket(ctx, req.MarketID)
		},
		func(ctx context.Context, market *models.Market) error {
			if market.IsFrozen {
				return newError(CodeMarketFrozen, "market is frozen")
			}

			q, mut, tradeErr := priceTrade(market, req.Side, req.Shares)
			if tradeErr != nil {
				return tradeErr
			}
			mut.TradedAt = e.now()

			if err := e.preflight(ctx, req, q); err != nil {
				return err
			}

			updated, err := e.store.TryUpdateMarket(ctx, market.ID, market.Version, mut)
			if err != nil {
				if errors.Is(err, ledger.ErrMarketFrozen) {
					return newError(CodeMarketFrozen, "market is frozen")
				}
				return err // ErrVersionConflict re-enters the loop
			}

			quote, mutation, committed = q, mut, updated
			return nil
		})
	if err != nil {
		return nil, e.mapCommitError(err)
	}

	switch req.Side {
	case models.TradeSideBuy:
		return e.settleBuy(ctx, req, quote, mutation, committed)
	default:
		return e.settleSell(ctx, req, quote, mutation, committed)
	}
}

// settleBuy debits the balance and opens/extends the position after the
// market committed. Both steps compensate the market on failure.
func (e *Executor) settleBuy(ctx context.Context, req TradeRequest, quote *QuoteResult, mut ledger.MarketMutation, committed *models.Market) (*TradeResult, error) {
	newBalance, err := e.store.TryDebitBalance(ctx, req.Wallet, quote.Amount)
	if err != nil {
		// The market moved but the caller cannot pay: undo the commit.
		if compErr := e.reverseMarket(ctx, committed.ID, req.Shares, mut); compErr != nil {
			return nil, e.failConsistency(ctx, committed.ID, req, compErr)
		}
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return nil, newError(CodeInsufficientBalance, "insufficient balance")
		case errors.Is(err, ledger.ErrUserNotFound):
			return nil, newError(CodeNotFound, "user not found")
		default:
			return nil, err
		}
	}

	costBeforeFee := quote.Amount.Sub(quote.Fee)
	if err := e.store.UpsertPosition(ctx, req.Wallet, committed.ID, req.Shares, costBeforeFee); err != nil {
		if _, compErr := e.store.CreditBalance(ctx, req.Wallet, quote.Amount); compErr != nil {
			return nil, e.failConsistency(ctx, committed.ID, req, compErr)
		}
		if compErr := e.reverseMarket(ctx, committed.ID, req.Shares, mut); compErr != nil {
			return nil, e.failConsistency(ctx, committed.ID, req, compErr)
		}
		return nil, err
	}

	return e.record(ctx, req, quote, committed, newBalance)
}

// settleSell credits the revenue, then shrinks the position. A concurrent
// sell can drain the position between preflight and settlement; that case
// claws the credit back and reverses the market commit.
func (e *Executor) settleSell(ctx context.Context, req TradeRequest, quote *QuoteResult, mut ledger.MarketMutation, committed *models.Market) (*TradeResult, error) {
	newBalance, err := e.store.CreditBalance(ctx, req.Wallet, quote.Amount)
	if err != nil {
		if compErr := e.reverseMarket(ctx, committed.ID, req.Shares.Neg(), mut); compErr != nil {
			return nil, e.failConsistency(ctx, committed.ID, req, compErr)
		}
		if errors.Is(err, ledger.ErrUserNotFound) {
			return nil, newError(CodeNotFound, "user not found")
		}
		return nil, err
	}

	if err := e.store.UpsertPosition(ctx, req.Wallet, committed.ID, req.Shares.Neg(), decimal.Zero); err != nil {
		if _, compErr := e.store.TryDebitBalance(ctx, req.Wallet, quote.Amount); compErr != nil {
			return nil, e.failConsistency(ctx, committed.ID, req, compErr)
		}
		if compErr := e.reverseMarket(ctx, committed.ID, req.Shares.Neg(), mut); compErr != nil {
			return nil, e.failConsistency(ctx, committed.ID, req, compErr)
		}
		if errors.Is(err, ledger.ErrInsufficientShares) {
			return nil, newError(CodeInsufficientShares, "insufficient shares")
		}
		return nil, err
	}

	return e.record(ctx, req, quote, committed, newBalance)
}

// record appends the immutable trade row and awards engagement XP. A
// duplicate idempotency key here means a concurrent request with the same
// key won the record race; this attempt's effects are fully reversed and the
// winner's result replayed.
func (e *Executor) record(ctx context.Context, req TradeRequest, quote *QuoteResult, committed *models.Market, newBalance decimal.Decimal) (*TradeResult, error) {
	trade := &models.Trade{
		ID:               xid.New().String(),
		WalletAddress:    req.Wallet,
		MarketID:         committed.ID,
		Side:             req.Side,
		Shares:           req.Shares,
		PricePerShare:    quote.AvgPrice,
		Amount:           quote.Amount,
		FeeAmount:        quote.Fee,
		ResultingBalance: newBalance,
		MarketVersion:    committed.Version,
		CreatedAt:        e.now(),
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		trade.IdempotencyKey = &key
	}

	if err := e.store.RecordTrade(ctx, trade); err != nil {
		if errors.Is(err, ledger.ErrDuplicateTrade) {
			return e.yieldToWinner(ctx, req, quote)
		}
		return nil, err
	}

	if err := e.store.AwardXP(ctx, req.Wallet, tradeXP, decimal.Zero); err != nil {
		e.log.WithError(err).WithField("wallet", req.Wallet).Warn("failed to award trade xp")
	}

	e.log.WithFields(logrus.Fields{
		"trade_id":       trade.ID,
		"market_id":      trade.MarketID,
		"side":           trade.Side,
		"shares":         trade.Shares,
		"amount":         trade.Amount,
		"market_version": trade.MarketVersion,
	}).Info("trade committed")

	return &TradeResult{
		TradeID:       trade.ID,
		Side:          trade.Side,
		Shares:        trade.Shares,
		PricePerShare: trade.PricePerShare,
		Amount:        trade.Amount,
		FeeAmount:     trade.FeeAmount,
		NewBalance:    newBalance,
		MarketVersion: trade.MarketVersion,
	}, nil
}

// yieldToWinner unwinds this attempt's settled effects after losing the
// idempotency record race, then returns the recorded winner unchanged.
func (e *Executor) yieldToWinner(ctx context.Context, req TradeRequest, quote *QuoteResult) (*TradeResult, error) {
	var supplyDelta decimal.Decimal
	var compErr error

	if req.Side == models.TradeSideBuy {
		supplyDelta = req.Shares
		if err := e.store.UpsertPosition(ctx, req.Wallet, req.MarketID, req.Shares.Neg(), decimal.Zero); err != nil {
			compErr = err
		} else if _, err := e.store.CreditBalance(ctx, req.Wallet, quote.Amount); err != nil {
			compErr = err
		}
	} else {
		supplyDelta = req.Shares.Neg()
		if _, err := e.store.TryDebitBalance(ctx, req.Wallet, quote.Amount); err != nil {
			compErr = err
		} else if err := e.store.UpsertPosition(ctx, req.Wallet, req.MarketID, req.Shares, req.Shares.Mul(quote.AvgPrice)); err != nil {
			compErr = err
		}
	}
	if compErr == nil {
		// Volume was accumulated pre-fee: cost minus fee on buys, revenue
		// plus fee on sells.
		volume := quote.Amount.Sub(quote.Fee)
		if req.Side == models.TradeSideSell {
			volume = quote.Amount.Add(quote.Fee)
		}
		split := curve.SplitFees(quote.Fee)
		compErr = e.reverseMarket(ctx, req.MarketID, supplyDelta, ledger.MarketMutation{
			VolumeDelta:    volume,
			FeeDelta:       quote.Fee,
			CreatorDelta:   split.CreatorFee,
			LiquidityDelta: split.LiquidityFee,
		})
	}
	if compErr != nil {
		return nil, e.failConsistency(ctx, req.MarketID, req, compErr)
	}

	prior, err := e.store.FindTradeByIdempotencyKey(ctx, req.Wallet, req.IdempotencyKey)
	if err != nil || prior == nil {
		return nil, wrapError(CodeConsistencyFailure, "duplicate trade vanished after record conflict", err)
	}
	return replayResult(prior), nil
}

// preflight validates the spend or the holding against the fresh snapshot
// before any mutation happens.
func (e *Executor) preflight(ctx context.Context, req TradeRequest, quote *QuoteResult) error {
	switch req.Side {
	case models.TradeSideBuy:
		user, err := e.store.GetUser(ctx, req.Wallet)
		if err != nil {
			if errors.Is(err, ledger.ErrUserNotFound) {
				return newError(CodeNotFound, "user not found")
			}
			return err
		}
		if user.BalanceCredits.LessThan(quote.Amount) {
			return newError(CodeInsufficientBalance, "insufficient balance")
		}
	case models.TradeSideSell:
		pos, err := e.store.GetPosition(ctx, req.Wallet, req.MarketID)
		if err != nil {
			return err
		}
		if pos == nil || pos.Shares.LessThan(req.Shares) {
			return newError(CodeInsufficientShares, "insufficient shares")
		}
	}
	return nil
}

// reverseMarket applies the inverse market mutation: undo the supply move
// and negate every accumulated delta. It runs under its own bounded CAS
// because other trades may have committed on top of ours; the supply delta
// is reversed against the current state, which equals restoring the prior
// supply whenever nothing interleaved.
func (e *Executor) reverseMarket(ctx context.Context, marketID string, supplyDelta decimal.Decimal, mut ledger.MarketMutation) error {
	return ledger.CompareAndSwap(ctx, e.maxAttempts,
		func(ctx context.Context) (*models.Market, error) {
			return e.store.GetMarket(ctx, marketID)
		},
		func(ctx context.Context, market *models.Market) error {
			newSupply := market.Supply.Sub(supplyDelta)
			if newSupply.IsNegative() {
				return newError(CodeConsistencyFailure, "inverse update would drive supply negative")
			}
			_, err := e.store.TryUpdateMarket(ctx, marketID, market.Version, ledger.MarketMutation{
				NewSupply:      newSupply,
				NewPrice:       displayPrice(newSupply),
				VolumeDelta:    mut.VolumeDelta.Neg(),
				FeeDelta:       mut.FeeDelta.Neg(),
				CreatorDelta:   mut.CreatorDelta.Neg(),
				LiquidityDelta: mut.LiquidityDelta.Neg(),
				TradedAt:       e.now(),
			})
			return err
		})
}

// failConsistency is the one unrecoverable-locally case: a compensating
// action failed, so the books for this market can no longer be trusted.
// Trading on the market is halted until someone reconciles it by hand.
func (e *Executor) failConsistency(ctx context.Context, marketID string, req TradeRequest, cause error) *TradeError {
	e.log.WithError(cause).WithFields(logrus.Fields{
		"market_id": marketID,
		"wallet":    req.Wallet,
		"side":      req.Side,
		"shares":    req.Shares,
	}).Error("compensation failed; freezing market pending manual reconciliation")

	if err := e.store.SetMarketFrozen(ctx, marketID, true); err != nil {
		e.log.WithError(err).WithField("market_id", marketID).Error("failed to freeze market after consistency failure")
	}

	return wrapError(CodeConsistencyFailure, "compensating action failed, market halted", cause)
}

func (e *Executor) mapCommitError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrAttemptsExhausted):
		return wrapError(CodeTradeConflict, "market contention, retry the request", err)
	case errors.Is(err, ledger.ErrMarketNotFound):
		return newError(CodeNotFound, "market not found")
	case errors.Is(err, ledger.ErrMarketFrozen):
		return newError(CodeMarketFrozen, "market is frozen")
	default:
		return err
	}
}

// priceTrade computes quote and market mutation for one direction against a
// market snapshot.
func priceTrade(market *models.Market, side models.TradeSide, shares decimal.Decimal) (*QuoteResult, ledger.MarketMutation, *TradeError) {
	supply := market.Supply.InexactFloat64()
	qty := shares.InexactFloat64()

	if side == models.TradeSideBuy {
		q, err := curve.BuyCost(supply, qty)
		if err != nil {
			return nil, ledger.MarketMutation{}, wrapError(CodeInvalidArgument, "invalid buy", err)
		}
		split := curve.SplitFees(q.Fee)
		return &QuoteResult{
				Side:      models.TradeSideBuy,
				Shares:    shares,
				Amount:    q.TotalCost,
				Fee:       q.Fee,
				AvgPrice:  q.AvgPrice,
				NewSupply: q.NewSupply,
				NewPrice:  q.NewPrice,
			}, ledger.MarketMutation{
				NewSupply:      q.NewSupply,
				NewPrice:       q.NewPrice,
				VolumeDelta:    q.CostBeforeFee,
				FeeDelta:       q.Fee,
				CreatorDelta:   split.CreatorFee,
				LiquidityDelta: split.LiquidityFee,
			}, nil
	}

	q, err := curve.SellRevenue(supply, qty)
	if err != nil {
		if errors.Is(err, curve.ErrSharesExceedSupply) {
			return nil, ledger.MarketMutation{}, wrapError(CodeInsufficientShares, "sell exceeds market supply", err)
		}
		return nil, ledger.MarketMutation{}, wrapError(CodeInvalidArgument, "invalid sell", err)
	}
	split := curve.SplitFees(q.Fee)
	return &QuoteResult{
			Side:      models.TradeSideSell,
			Shares:    shares,
			Amount:    q.NetRevenue,
			Fee:       q.Fee,
			AvgPrice:  q.AvgPrice,
			NewSupply: q.NewSupply,
			NewPrice:  q.NewPrice,
		}, ledger.MarketMutation{
			NewSupply:      q.NewSupply,
			NewPrice:       q.NewPrice,
			VolumeDelta:    q.RevenueBeforeFee,
			FeeDelta:       q.Fee,
			CreatorDelta:   split.CreatorFee,
			LiquidityDelta: split.LiquidityFee,
		}, nil
}

// displayPrice floors the curve price except for a fully redeemed market,
// which displays as zero.
func displayPrice(supply decimal.Decimal) decimal.Decimal {
	if !supply.IsPositive() {
		return decimal.Zero
	}
	return decimal.NewFromFloat(curve.Price(supply.InexactFloat64())).Round(curve.Precision)
}

func replayResult(trade *models.Trade) *TradeResult {
	return &TradeResult{
		TradeID:       trade.ID,
		Side:          trade.Side,
		Shares:        trade.Shares,
		PricePerShare: trade.PricePerShare,
		Amount:        trade.Amount,
		FeeAmount:     trade.FeeAmount,
		NewBalance:    trade.ResultingBalance,
		MarketVersion: trade.MarketVersion,
		Replayed:      true,
	}
}
