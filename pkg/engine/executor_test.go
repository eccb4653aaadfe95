package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"socialfi-engine/pkg/curve"
	"socialfi-engine/pkg/ledger"
	"socialfi-engine/pkg/models"
)

const (
	testMarket = "mkt1"
	testWallet = "0xabc"
)

func dec(s string) decimal.Decimal {
	return models.DecimalFromString(s)
}

func newFixture(t *testing.T, balance string) (*ledger.MemoryStore, *Executor) {
	t.Helper()
	store := ledger.NewMemoryStore()
	require.NoError(t, store.CreateMarket(context.Background(), &models.Market{
		ID:     testMarket,
		PostID: "post1",
		Supply: dec("100"),
		Price:  decimal.NewFromFloat(curve.Price(100)).Round(curve.Precision),
	}))
	store.PutUser(&models.User{WalletAddress: testWallet, BalanceCredits: dec(balance)})
	return store, NewExecutor(store)
}

func buyReq(shares string) TradeRequest {
	return TradeRequest{
		Wallet:   testWallet,
		MarketID: testMarket,
		Side:     models.TradeSideBuy,
		Shares:   dec(shares),
	}
}

func sellReq(shares string) TradeRequest {
	r := buyReq(shares)
	r.Side = models.TradeSideSell
	return r
}

func TestExecuteBuy(t *testing.T) {
	store, exec := newFixture(t, "1000")
	ctx := context.Background()

	quote, err := curve.BuyCost(100, 10)
	require.NoError(t, err)

	res, err := exec.ExecuteTrade(ctx, buyReq("10"))
	require.NoError(t, err)

	assert.Equal(t, models.TradeSideBuy, res.Side)
	assert.True(t, res.Amount.Equal(quote.TotalCost))
	assert.True(t, res.FeeAmount.Equal(quote.Fee))
	assert.True(t, res.NewBalance.Equal(dec("1000").Sub(quote.TotalCost)))
	assert.Equal(t, int64(1), res.MarketVersion)
	assert.False(t, res.Replayed)

	market, err := store.GetMarket(ctx, testMarket)
	require.NoError(t, err)
	assert.Equal(t, "110", market.Supply.String())
	assert.Equal(t, int64(1), market.Version)
	assert.True(t, market.TotalVolume.Equal(quote.CostBeforeFee))
	assert.True(t, market.FeesCollected.Equal(quote.Fee))

	pos, err := store.GetPosition(ctx, testWallet, testMarket)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, "10", pos.Shares.String())
	assert.True(t, pos.AvgPrice.Equal(quote.AvgPrice))

	trades := store.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, int64(1), trades[0].MarketVersion)
}

func TestExecuteSellAfterBuy(t *testing.T) {
	store, exec := newFixture(t, "1000")
	ctx := context.Background()

	buyRes, err := exec.ExecuteTrade(ctx, buyReq("10"))
	require.NoError(t, err)

	sellRes, err := exec.ExecuteTrade(ctx, sellReq("10"))
	require.NoError(t, err)

	market, err := store.GetMarket(ctx, testMarket)
	require.NoError(t, err)
	assert.Equal(t, "100", market.Supply.String())
	assert.Equal(t, int64(2), market.Version)

	// position drained to zero is deleted
	pos, err := store.GetPosition(ctx, testWallet, testMarket)
	require.NoError(t, err)
	assert.Nil(t, pos)

	// round trip loses exactly the two fees
	loss := buyRes.Amount.Sub(sellRes.Amount)
	fees := buyRes.FeeAmount.Add(sellRes.FeeAmount)
	tolerance := decimal.New(2, -curve.Precision)
	assert.True(t, loss.Sub(fees).Abs().LessThanOrEqual(tolerance),
		"round-trip loss %s should equal fees %s", loss, fees)

	user, err := store.GetUser(ctx, testWallet)
	require.NoError(t, err)
	assert.True(t, user.BalanceCredits.Equal(dec("1000").Sub(loss)))
}

func TestExecuteTradeValidation(t *testing.T) {
	_, exec := newFixture(t, "1000")
	ctx := context.Background()

	tests := []struct {
		name string
		req  TradeRequest
		code ErrorCode
	}{
		{"zero shares", buyReq("0"), CodeInvalidArgument},
		{"negative shares", buyReq("-5"), CodeInvalidArgument},
		{"missing wallet", TradeRequest{MarketID: testMarket, Side: models.TradeSideBuy, Shares: dec("1")}, CodeInvalidArgument},
		{"missing market", TradeRequest{Wallet: testWallet, Side: models.TradeSideBuy, Shares: dec("1")}, CodeInvalidArgument},
		{"bad side", TradeRequest{Wallet: testWallet, MarketID: testMarket, Side: "short", Shares: dec("1")}, CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exec.ExecuteTrade(ctx, tt.req)
			te, ok := AsTradeError(err)
			require.True(t, ok, "expected TradeError, got %v", err)
			assert.Equal(t, tt.code, te.Code)
		})
	}
}

func TestExecuteTradeUnknownMarket(t *testing.T) {
	_, exec := newFixture(t, "1000")
	req := buyReq("1")
	req.MarketID = "missing"

	_, err := exec.ExecuteTrade(context.Background(), req)
	te, ok := AsTradeError(err)
	require.True(t, ok)
	assert.Equal(t, CodeNotFound, te.Code)
}

func TestExecuteTradeFrozenMarket(t *testing.T) {
	store, exec := newFixture(t, "1000")
	ctx := context.Background()
	require.NoError(t, store.SetMarketFrozen(ctx, testMarket, true))

	_, err := exec.ExecuteTrade(ctx, buyReq("1"))
	te, ok := AsTradeError(err)
	require.True(t, ok)
	assert.Equal(t, CodeMarketFrozen, te.Code)
}

func TestExecuteBuyInsufficientBalance(t *testing.T) {
	store, exec := newFixture(t, "0.01")
	ctx := context.Background()

	_, err := exec.ExecuteTrade(ctx, buyReq("10"))
	te, ok := AsTradeError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInsufficientBalance, te.Code)

	// rejected before any mutation
	market, err := store.GetMarket(ctx, testMarket)
	require.NoError(t, err)
	assert.Equal(t, int64(0), market.Version)
	assert.Equal(t, "100", market.Supply.String())
}

func TestExecuteSellInsufficientShares(t *testing.T) {
	store, exec := newFixture(t, "1000")
	ctx := context.Background()

	_, err := exec.ExecuteTrade(ctx, sellReq("5"))
	te, ok := AsTradeError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInsufficientShares, te.Code)

	// selling more than market supply also refuses, never negative supply
	_, err = exec.ExecuteTrade(ctx, buyReq("10"))
	require.NoError(t, err)
	_, err = exec.ExecuteTrade(ctx, sellReq("500"))
	te, ok = AsTradeError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInsufficientShares, te.Code)

	market, err := store.GetMarket(ctx, testMarket)
	require.NoError(t, err)
	assert.False(t, market.Supply.IsNegative())
}

func TestIdempotentReplay(t *testing.T) {
	store, exec := newFixture(t, "1000")
	ctx := context.Background()

	req := buyReq("10")
	req.IdempotencyKey = "req-42"

	first, err := exec.ExecuteTrade(ctx, req)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	second, err := exec.ExecuteTrade(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)

	// identical observable result, exactly one committed trade
	assert.Equal(t, first.TradeID, second.TradeID)
	assert.True(t, first.Amount.Equal(second.Amount))
	assert.True(t, first.NewBalance.Equal(second.NewBalance))
	assert.Len(t, store.Trades(), 1)

	market, err := store.GetMarket(ctx, testMarket)
	require.NoError(t, err)
	assert.Equal(t, int64(1), market.Version)
	assert.Equal(t, "110", market.Supply.String())
}

// conflictStore forces TryUpdateMarket to report a version conflict a fixed
// number of times before delegating.
type conflictStore struct {
	ledger.Store
	mu        sync.Mutex
	conflicts int
}

func (s *conflictStore) TryUpdateMarket(ctx context.Context, marketID string, expectedVersion int64, mut ledger.MarketMutation) (*models.Market, error) {
	s.mu.Lock()
	remaining := s.conflicts
	if remaining > 0 {
		s.conflicts--
	}
	s.mu.Unlock()
	if remaining > 0 {
		return nil, ledger.ErrVersionConflict
	}
	return s.Store.TryUpdateMarket(ctx, marketID, expectedVersion, mut)
}

func TestRetryOnConflictThenCommit(t *testing.T) {
	store, _ := newFixture(t, "1000")
	wrapped := &conflictStore{Store: store, conflicts: 2}
	exec := NewExecutor(wrapped)

	res, err := exec.ExecuteTrade(context.Background(), buyReq("10"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.MarketVersion)
}

func TestConflictExhaustion(t *testing.T) {
	store, _ := newFixture(t, "1000")
	wrapped := &conflictStore{Store: store, conflicts: 100}
	exec := NewExecutor(wrapped, WithMaxAttempts(3))

	_, err := exec.ExecuteTrade(context.Background(), buyReq("10"))
	te, ok := AsTradeError(err)
	require.True(t, ok)
	assert.Equal(t, CodeTradeConflict, te.Code)
	assert.True(t, te.Retryable())

	// nothing committed
	market, err := store.GetMarket(context.Background(), testMarket)
	require.NoError(t, err)
	assert.Equal(t, int64(0), market.Version)
	assert.Empty(t, store.Trades())
}

// debitFailStore passes preflight but fails the settlement debit, forcing
// the buy path to compensate the already-committed market update.
type debitFailStore struct {
	ledger.Store
}

func (s *debitFailStore) TryDebitBalance(ctx context.Context, wallet string, amount decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, ledger.ErrInsufficientFunds
}

func TestBuyCompensatesWhenDebitFails(t *testing.T) {
	store, _ := newFixture(t, "1000")
	exec := NewExecutor(&debitFailStore{Store: store})
	ctx := context.Background()

	_, err := exec.ExecuteTrade(ctx, buyReq("10"))
	te, ok := AsTradeError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInsufficientBalance, te.Code)

	// market restored: supply and accumulators back, version bumped twice
	// (commit plus inverse), no trade recorded
	market, err := store.GetMarket(ctx, testMarket)
	require.NoError(t, err)
	assert.Equal(t, "100", market.Supply.String())
	assert.True(t, market.TotalVolume.IsZero())
	assert.True(t, market.FeesCollected.IsZero())
	assert.True(t, market.LiquidityPool.IsZero())
	assert.Equal(t, int64(2), market.Version)
	assert.Empty(t, store.Trades())

	pos, err := store.GetPosition(ctx, testWallet, testMarket)
	require.NoError(t, err)
	assert.Nil(t, pos)
}

// brokenStore fails the debit and then also refuses the compensating market
// update, which is the one unrecoverable-locally case.
type brokenStore struct {
	ledger.Store
	mu      sync.Mutex
	updates int
}

func (s *brokenStore) TryDebitBalance(ctx context.Context, wallet string, amount decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, ledger.ErrInsufficientFunds
}

func (s *brokenStore) TryUpdateMarket(ctx context.Context, marketID string, expectedVersion int64, mut ledger.MarketMutation) (*models.Market, error) {
	s.mu.Lock()
	s.updates++
	n := s.updates
	s.mu.Unlock()
	if n > 1 {
		return nil, ledger.ErrVersionConflict
	}
	return s.Store.TryUpdateMarket(ctx, marketID, expectedVersion, mut)
}

func TestConsistencyFailureFreezesMarket(t *testing.T) {
	store, _ := newFixture(t, "1000")
	exec := NewExecutor(&brokenStore{Store: store}, WithMaxAttempts(2))
	ctx := context.Background()

	_, err := exec.ExecuteTrade(ctx, buyReq("10"))
	te, ok := AsTradeError(err)
	require.True(t, ok)
	assert.Equal(t, CodeConsistencyFailure, te.Code)
	assert.False(t, te.Retryable())

	market, err := store.GetMarket(ctx, testMarket)
	require.NoError(t, err)
	assert.True(t, market.IsFrozen, "market must halt after a failed compensation")
}

func TestConcurrentBuysSequenceOnVersionChain(t *testing.T) {
	store, _ := newFixture(t, "1000000")
	exec := NewExecutor(store, WithMaxAttempts(50))
	ctx := context.Background()

	const workers = 25
	var g errgroup.Group
	var mu sync.Mutex
	committed := 0
	conflicted := 0

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, err := exec.ExecuteTrade(ctx, buyReq("1"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				committed++
				return nil
			}
			if te, ok := AsTradeError(err); ok && te.Code == CodeTradeConflict {
				conflicted++
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, workers, committed+conflicted)
	assert.Positive(t, committed)

	market, err := store.GetMarket(ctx, testMarket)
	require.NoError(t, err)

	// version totally orders commits: exactly one bump per committed trade
	assert.Equal(t, int64(committed), market.Version)
	assert.Equal(t, dec("100").Add(decimal.NewFromInt(int64(committed))).String(), market.Supply.String())
	assert.False(t, market.Supply.IsNegative())
	assert.Len(t, store.Trades(), committed)

	pos, err := store.GetPosition(ctx, testWallet, testMarket)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, int64(committed), pos.Shares.IntPart())
}

func TestConcurrentIdempotentRequestsCommitOnce(t *testing.T) {
	store, _ := newFixture(t, "1000000")
	exec := NewExecutor(store, WithMaxAttempts(50))
	ctx := context.Background()

	req := buyReq("5")
	req.IdempotencyKey = "same-key"

	const workers = 8
	results := make([]*TradeResult, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			res, err := exec.ExecuteTrade(ctx, req)
			if err != nil {
				if te, ok := AsTradeError(err); ok && te.Retryable() {
					return nil
				}
				return err
			}
			results[i] = res
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// exactly one trade committed regardless of racing
	assert.Len(t, store.Trades(), 1)

	market, err := store.GetMarket(ctx, testMarket)
	require.NoError(t, err)
	assert.Equal(t, "105", market.Supply.String())

	for _, res := range results {
		if res != nil {
			assert.True(t, res.Shares.Equal(dec("5")))
		}
	}
}

func TestQuote(t *testing.T) {
	_, exec := newFixture(t, "1000")
	ctx := context.Background()

	q, err := exec.Quote(ctx, testMarket, models.TradeSideBuy, dec("10"))
	require.NoError(t, err)
	want, err2 := curve.BuyCost(100, 10)
	require.NoError(t, err2)
	assert.True(t, q.Amount.Equal(want.TotalCost))
	assert.Equal(t, "110", q.NewSupply.String())

	_, err = exec.Quote(ctx, "missing", models.TradeSideBuy, dec("10"))
	te, ok := AsTradeError(err)
	require.True(t, ok)
	assert.Equal(t, CodeNotFound, te.Code)

	_, err = exec.Quote(ctx, testMarket, models.TradeSideSell, dec("0"))
	te, ok = AsTradeError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidArgument, te.Code)
}
