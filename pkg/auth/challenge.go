package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"
	"gorm.io/gorm"

	"socialfi-engine/pkg/models"
)

var (
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrChallengeUsed     = errors.New("challenge already used")
	ErrBadSignature      = errors.New("signature verification failed")
)

// chainIDs maps EVM chain names to their numeric chain IDs for the
// sign-in message.
var chainIDs = map[string]int{
	"ethereum": 1,
	"base":     8453,
	"polygon":  137,
	"bnb":      56,
}

// ChallengeService issues single-use sign-in challenges and verifies the
// signed responses. The message format follows EIP-4361 for EVM chains.
type ChallengeService struct {
	db       *gorm.DB
	verifier SignatureVerifier
	domain   string
	ttl      time.Duration
}

func NewChallengeService(db *gorm.DB, verifier SignatureVerifier, domain string, ttl time.Duration) *ChallengeService {
	return &ChallengeService{db: db, verifier: verifier, domain: domain, ttl: ttl}
}

// IssuedChallenge is what the client receives: the stored challenge plus the
// exact message the wallet must sign.
type IssuedChallenge struct {
	ID        string    `json:"id"`
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issue creates and stores a fresh challenge for the wallet.
func (s *ChallengeService) Issue(wallet, chainType string) (*IssuedChallenge, error) {
	now := time.Now()
	ch := models.Challenge{
		ID:            xid.New().String(),
		WalletAddress: strings.ToLower(wallet),
		ChainType:     chainType,
		Nonce:         uuid.NewString(),
		ExpiresAt:     now.Add(s.ttl),
	}
	if err := s.db.Create(&ch).Error; err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	// Sweep stale challenges while we are here.
	s.db.Where("expires_at < ?", now).Delete(&models.Challenge{})

	return &IssuedChallenge{
		ID:        ch.ID,
		Nonce:     ch.Nonce,
		Message:   s.buildMessage(&ch),
		ExpiresAt: ch.ExpiresAt,
	}, nil
}

// Verify checks the signature against the challenge and consumes it. A
// challenge verifies at most once.
func (s *ChallengeService) Verify(challengeID, wallet, signature string) (*models.Challenge, error) {
	var ch models.Challenge
	err := s.db.Where("id = ? AND wallet_address = ?", challengeID, strings.ToLower(wallet)).First(&ch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, err
	}

	if ch.Used {
		return nil, ErrChallengeUsed
	}
	if time.Now().After(ch.ExpiresAt) {
		return nil, ErrChallengeExpired
	}

	if err := s.verifier.Verify(s.buildMessage(&ch), signature, ch.WalletAddress, ch.ChainType); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	// Consume under a guard so two racing verifications cannot both pass.
	res := s.db.Model(&models.Challenge{}).
		Where("id = ? AND used = false", ch.ID).
		Update("used", true)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrChallengeUsed
	}

	return &ch, nil
}

func (s *ChallengeService) buildMessage(ch *models.Challenge) string {
	chainID := chainIDs[ch.ChainType]
	if chainID == 0 {
		chainID = 1
	}
	issued := ch.CreatedAt
	if issued.IsZero() {
		issued = time.Now()
	}
	return fmt.Sprintf(
		"%s wants you to sign in with your Ethereum account:\n%s\n\nSign in to trade shares on posts.\n\nURI: https://%s\nVersion: 1\nChain ID: %d\nNonce: %s\nIssued At: %s\nExpiration Time: %s",
		s.domain,
		ch.WalletAddress,
		s.domain,
		chainID,
		ch.Nonce,
		issued.UTC().Format(time.RFC3339),
		ch.ExpiresAt.UTC().Format(time.RFC3339),
	)
}
