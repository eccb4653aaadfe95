package ledger

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"socialfi-engine/pkg/models"
)

// MemoryStore is an in-process Store with the same compare-and-swap
// semantics as the SQL implementation. It backs the engine tests and can
// serve single-node development without a database. A single mutex stands in
// for per-record atomicity; readers get copies, never live pointers.
type MemoryStore struct {
	mu        sync.Mutex
	markets   map[string]*models.Market
	users     map[string]*models.User
	positions map[string]*models.Position // wallet + "/" + marketID
	trades    []*models.Trade
	idemIndex map[string]*models.Trade // wallet + "/" + key
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:   make(map[string]*models.Market),
		users:     make(map[string]*models.User),
		positions: make(map[string]*models.Position),
		idemIndex: make(map[string]*models.Trade),
	}
}

// PutUser seeds a user record (test and dev helper).
func (s *MemoryStore) PutUser(user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *user
	cp.WalletAddress = strings.ToLower(cp.WalletAddress)
	s.users[cp.WalletAddress] = &cp
}

func (s *MemoryStore) CreateMarket(_ context.Context, market *models.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *market
	s.markets[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, marketID string) (*models.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[marketID]
	if !ok {
		return nil, ErrMarketNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) GetMarketByPost(_ context.Context, postID string) (*models.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.markets {
		if m.PostID == postID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, ErrMarketNotFound
}

func (s *MemoryStore) TryUpdateMarket(_ context.Context, marketID string, expectedVersion int64, mut MarketMutation) (*models.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[marketID]
	if !ok {
		return nil, ErrMarketNotFound
	}
	if m.IsFrozen {
		return nil, ErrMarketFrozen
	}
	if m.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	m.Supply = mut.NewSupply
	m.Price = mut.NewPrice
	m.TotalVolume = m.TotalVolume.Add(mut.VolumeDelta)
	m.FeesCollected = m.FeesCollected.Add(mut.FeeDelta)
	m.CreatorEarnings = m.CreatorEarnings.Add(mut.CreatorDelta)
	m.LiquidityPool = m.LiquidityPool.Add(mut.LiquidityDelta)
	m.Version++
	tradedAt := mut.TradedAt
	m.LastTradeAt = &tradedAt
	m.UpdatedAt = time.Now()

	cp := *m
	return &cp, nil
}

func (s *MemoryStore) SetMarketFrozen(_ context.Context, marketID string, frozen bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[marketID]
	if !ok {
		return ErrMarketNotFound
	}
	m.IsFrozen = frozen
	m.Version++
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, wallet string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(wallet)]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) TryDebitBalance(_ context.Context, wallet string, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(wallet)]
	if !ok {
		return decimal.Zero, ErrUserNotFound
	}
	if u.BalanceCredits.LessThan(amount) {
		return decimal.Zero, ErrInsufficientFunds
	}
	u.BalanceCredits = u.BalanceCredits.Sub(amount)
	return u.BalanceCredits, nil
}

func (s *MemoryStore) CreditBalance(_ context.Context, wallet string, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(wallet)]
	if !ok {
		return decimal.Zero, ErrUserNotFound
	}
	u.BalanceCredits = u.BalanceCredits.Add(amount)
	return u.BalanceCredits, nil
}

func (s *MemoryStore) AwardXP(_ context.Context, wallet string, xp int, reputation decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(wallet)]
	if !ok {
		return ErrUserNotFound
	}
	u.XP += xp
	u.Reputation = u.Reputation.Add(reputation)
	return nil
}

func (s *MemoryStore) GetPosition(_ context.Context, wallet, marketID string) (*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[positionKey(wallet, marketID)]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpsertPosition(_ context.Context, wallet, marketID string, shareDelta, cost decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := positionKey(wallet, marketID)
	p, ok := s.positions[key]

	if shareDelta.IsPositive() {
		if !ok {
			s.positions[key] = &models.Position{
				WalletAddress: strings.ToLower(wallet),
				MarketID:      marketID,
				Shares:        shareDelta,
				AvgPrice:      cost.Div(shareDelta).Round(6),
				CreatedAt:     time.Now(),
			}
			return nil
		}
		newShares := p.Shares.Add(shareDelta)
		p.AvgPrice = p.Shares.Mul(p.AvgPrice).Add(cost).Div(newShares).Round(6)
		p.Shares = newShares
		return nil
	}

	dec := shareDelta.Neg()
	if !ok || p.Shares.LessThan(dec) {
		return ErrInsufficientShares
	}
	p.Shares = p.Shares.Sub(dec)
	if p.Shares.IsZero() {
		delete(s.positions, key)
	}
	return nil
}

func (s *MemoryStore) FindTradeByIdempotencyKey(_ context.Context, wallet, key string) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.idemIndex[positionKey(wallet, key)]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) RecordTrade(_ context.Context, trade *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *trade
	cp.WalletAddress = strings.ToLower(cp.WalletAddress)
	if cp.IdempotencyKey != nil {
		key := positionKey(cp.WalletAddress, *cp.IdempotencyKey)
		if _, exists := s.idemIndex[key]; exists {
			return ErrDuplicateTrade
		}
		s.idemIndex[key] = &cp
	}
	s.trades = append(s.trades, &cp)
	return nil
}

// Trades returns a snapshot of every recorded trade, newest last.
func (s *MemoryStore) Trades() []*models.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Trade, len(s.trades))
	for i, t := range s.trades {
		cp := *t
		out[i] = &cp
	}
	return out
}

func positionKey(wallet, marketID string) string {
	return strings.ToLower(wallet) + "/" + marketID
}
