package ledger

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"socialfi-engine/pkg/models"
)

func dec(s string) decimal.Decimal {
	return models.DecimalFromString(s)
}

func seedMarket(t *testing.T, s *MemoryStore) *models.Market {
	t.Helper()
	market := &models.Market{
		ID:     "mkt1",
		PostID: "post1",
		Supply: dec("100"),
		Price:  dec("10"),
	}
	require.NoError(t, s.CreateMarket(context.Background(), market))
	return market
}

func TestTryUpdateMarketVersionGuard(t *testing.T) {
	s := NewMemoryStore()
	seedMarket(t, s)
	ctx := context.Background()

	mut := MarketMutation{
		NewSupply:   dec("110"),
		NewPrice:    dec("11.5"),
		VolumeDelta: dec("5"),
		FeeDelta:    dec("0.1"),
		TradedAt:    time.Now(),
	}

	updated, err := s.TryUpdateMarket(ctx, "mkt1", 0, mut)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Version)
	assert.Equal(t, "110", updated.Supply.String())
	assert.Equal(t, "5", updated.TotalVolume.String())

	// stale version loses
	_, err = s.TryUpdateMarket(ctx, "mkt1", 0, mut)
	assert.ErrorIs(t, err, ErrVersionConflict)

	// absent market
	_, err = s.TryUpdateMarket(ctx, "nope", 0, mut)
	assert.ErrorIs(t, err, ErrMarketNotFound)
}

func TestTryUpdateMarketFrozen(t *testing.T) {
	s := NewMemoryStore()
	seedMarket(t, s)
	ctx := context.Background()

	require.NoError(t, s.SetMarketFrozen(ctx, "mkt1", true))
	_, err := s.TryUpdateMarket(ctx, "mkt1", 0, MarketMutation{NewSupply: dec("110")})
	assert.ErrorIs(t, err, ErrMarketFrozen)

	// freezing bumps the version so unfreezing does not resurrect stale writers
	require.NoError(t, s.SetMarketFrozen(ctx, "mkt1", false))
	m, err := s.GetMarket(ctx, "mkt1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.Version)
}

func TestTryDebitBalance(t *testing.T) {
	s := NewMemoryStore()
	s.PutUser(&models.User{WalletAddress: "0xABC", BalanceCredits: dec("100")})
	ctx := context.Background()

	remaining, err := s.TryDebitBalance(ctx, "0xabc", dec("40"))
	require.NoError(t, err)
	assert.Equal(t, "60", remaining.String())

	_, err = s.TryDebitBalance(ctx, "0xabc", dec("100"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// failed debit had no partial effect
	u, err := s.GetUser(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "60", u.BalanceCredits.String())

	_, err = s.TryDebitBalance(ctx, "0xmissing", dec("1"))
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreditBalance(t *testing.T) {
	s := NewMemoryStore()
	s.PutUser(&models.User{WalletAddress: "0xabc", BalanceCredits: dec("10")})

	balance, err := s.CreditBalance(context.Background(), "0xABC", dec("2.5"))
	require.NoError(t, err)
	assert.Equal(t, "12.5", balance.String())
}

// Each balance mutation must report its own resulting balance, not a later
// re-read that a concurrent writer could have moved. With N concurrent unit
// credits the returned balances must be exactly {1..N}, each seen once.
func TestBalanceMutationsReturnOwnOutcome(t *testing.T) {
	s := NewMemoryStore()
	s.PutUser(&models.User{WalletAddress: "0xabc", BalanceCredits: decimal.Zero})
	ctx := context.Background()

	const workers = 20
	results := make(chan string, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			balance, err := s.CreditBalance(ctx, "0xabc", dec("1"))
			if err != nil {
				return err
			}
			results <- balance.String()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(results)

	seen := make(map[string]bool, workers)
	for balance := range results {
		assert.False(t, seen[balance], "balance %s reported twice", balance)
		seen[balance] = true
	}
	for i := 1; i <= workers; i++ {
		assert.Contains(t, seen, strconv.Itoa(i))
	}
}

func TestUpsertPositionLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// first buy creates the position with avg price = cost / shares
	require.NoError(t, s.UpsertPosition(ctx, "0xabc", "mkt1", dec("10"), dec("50")))
	p, err := s.GetPosition(ctx, "0xabc", "mkt1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "10", p.Shares.String())
	assert.Equal(t, "5", p.AvgPrice.String())

	// second buy share-weights the average: (10*5 + 100) / 20 = 7.5
	require.NoError(t, s.UpsertPosition(ctx, "0xabc", "mkt1", dec("10"), dec("100")))
	p, err = s.GetPosition(ctx, "0xabc", "mkt1")
	require.NoError(t, err)
	assert.Equal(t, "20", p.Shares.String())
	assert.Equal(t, "7.5", p.AvgPrice.String())

	// partial sell keeps avg price
	require.NoError(t, s.UpsertPosition(ctx, "0xabc", "mkt1", dec("-5"), decimal.Zero))
	p, err = s.GetPosition(ctx, "0xabc", "mkt1")
	require.NoError(t, err)
	assert.Equal(t, "15", p.Shares.String())
	assert.Equal(t, "7.5", p.AvgPrice.String())

	// overdraw fails with no partial effect
	err = s.UpsertPosition(ctx, "0xabc", "mkt1", dec("-16"), decimal.Zero)
	assert.ErrorIs(t, err, ErrInsufficientShares)
	p, err = s.GetPosition(ctx, "0xabc", "mkt1")
	require.NoError(t, err)
	assert.Equal(t, "15", p.Shares.String())

	// exact drain deletes the row
	require.NoError(t, s.UpsertPosition(ctx, "0xabc", "mkt1", dec("-15"), decimal.Zero))
	p, err = s.GetPosition(ctx, "0xabc", "mkt1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestRecordTradeIdempotencyIndex(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	key := "req-1"

	trade := &models.Trade{
		ID:             "t1",
		WalletAddress:  "0xabc",
		MarketID:       "mkt1",
		Side:           models.TradeSideBuy,
		Shares:         dec("10"),
		IdempotencyKey: &key,
	}
	require.NoError(t, s.RecordTrade(ctx, trade))

	dup := *trade
	dup.ID = "t2"
	assert.ErrorIs(t, s.RecordTrade(ctx, &dup), ErrDuplicateTrade)

	found, err := s.FindTradeByIdempotencyKey(ctx, "0xABC", key)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "t1", found.ID)

	// trades without a key never collide
	noKey := &models.Trade{ID: "t3", WalletAddress: "0xabc", MarketID: "mkt1"}
	require.NoError(t, s.RecordTrade(ctx, noKey))
	require.NoError(t, s.RecordTrade(ctx, &models.Trade{ID: "t4", WalletAddress: "0xabc", MarketID: "mkt1"}))
}

func TestCompareAndSwap(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		err := CompareAndSwap(ctx, 3,
			func(ctx context.Context) (int, error) { return 7, nil },
			func(ctx context.Context, snap int) error {
				calls++
				assert.Equal(t, 7, snap)
				return nil
			})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries on conflict then succeeds", func(t *testing.T) {
		calls := 0
		err := CompareAndSwap(ctx, 3,
			func(ctx context.Context) (int, error) { return calls, nil },
			func(ctx context.Context, snap int) error {
				calls++
				if calls < 3 {
					return ErrVersionConflict
				}
				return nil
			})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		err := CompareAndSwap(ctx, 2,
			func(ctx context.Context) (int, error) { return 0, nil },
			func(ctx context.Context, snap int) error { return ErrVersionConflict })
		assert.ErrorIs(t, err, ErrAttemptsExhausted)
	})

	t.Run("non-conflict error aborts immediately", func(t *testing.T) {
		calls := 0
		err := CompareAndSwap(ctx, 5,
			func(ctx context.Context) (int, error) { return 0, nil },
			func(ctx context.Context, snap int) error {
				calls++
				return ErrMarketFrozen
			})
		assert.ErrorIs(t, err, ErrMarketFrozen)
		assert.Equal(t, 1, calls)
	})

	t.Run("honors cancellation", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := CompareAndSwap(cancelled, 3,
			func(ctx context.Context) (int, error) { return 0, nil },
			func(ctx context.Context, snap int) error { return ErrVersionConflict })
		assert.ErrorIs(t, err, context.Canceled)
	})
}
