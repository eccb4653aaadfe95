package database

import (
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"socialfi-engine/pkg/config"
	"socialfi-engine/pkg/curve"
	"socialfi-engine/pkg/models"
)

// Seed creates development fixtures: an admin, a few funded wallets, and a
// handful of posts with live markets. Idempotent, existing rows are kept.
func Seed(db *gorm.DB, cfg *config.Config) error {
	users := []models.User{
		{
			WalletAddress:  "0xadmin000000000000000000000000000000000001",
			ChainType:      "ethereum",
			BalanceCredits: models.DecimalFromString("10000"),
			Reputation:     models.DecimalFromString("100"),
			IsAdmin:        true,
		},
		{
			WalletAddress:  "0xa11ce00000000000000000000000000000000002",
			ChainType:      "ethereum",
			BalanceCredits: models.DecimalFromFloat(cfg.Market.SignupCredits),
			Reputation:     models.DecimalFromString("5"),
		},
		{
			WalletAddress:  "0xb0b0000000000000000000000000000000000003",
			ChainType:      "ethereum",
			BalanceCredits: models.DecimalFromFloat(cfg.Market.SignupCredits),
			Reputation:     models.DecimalFromString("5"),
		},
	}

	for i := range users {
		var existing models.User
		err := db.Where("wallet_address = ?", users[i].WalletAddress).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("failed to check user %s: %w", users[i].WalletAddress, err)
		}
		if err := db.Create(&users[i]).Error; err != nil {
			return fmt.Errorf("failed to create user %s: %w", users[i].WalletAddress, err)
		}
		logrus.WithField("wallet", users[i].WalletAddress).Info("seeded user")
	}

	samplePosts := []struct {
		network models.NetworkSource
		author  string
		title   string
		text    string
	}{
		{models.NetworkReddit, "curvetrader", "Bitcoin will hit $100k in 2026", "The halvening and ETF flows make this inevitable."},
		{models.NetworkReddit, "devwatcher", "AI coding assistants will replace 50% of junior dev jobs by 2027", "Adapt or get left behind."},
		{models.NetworkFarcaster, "remoteforever", "", "Remote work is dead. Companies forcing RTO will lose their best talent to startups."},
		{models.NetworkFarcaster, "teslabull", "", "Prediction: Tesla stock hits $500 by end of 2026. FSD v13 is the catalyst."},
		{models.NetworkManual, "contrarian", "", "Hot take: React is becoming the new jQuery. Next.js has too much magic. Go back to basics."},
	}

	initialSupply := models.DecimalFromFloat(cfg.Market.InitialSupply)
	initialPrice := decimal.NewFromFloat(curve.Price(cfg.Market.InitialSupply)).Round(curve.Precision)

	for i, sp := range samplePosts {
		lister := users[1+i%(len(users)-1)]
		sourceID := fmt.Sprintf("seed-%d", i+1)

		var existing models.Post
		err := db.Where("source_network = ? AND source_id = ?", sp.network, sourceID).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("failed to check post %s: %w", sourceID, err)
		}

		now := time.Now()
		post := models.Post{
			ID:             xid.New().String(),
			SourceNetwork:  sp.network,
			SourceID:       sourceID,
			SourceURL:      fmt.Sprintf("https://example.com/%s/%s", sp.network, sourceID),
			AuthorUsername: sp.author,
			Title:          sp.title,
			ContentText:    sp.text,
			Status:         models.PostStatusActive,
			ListedBy:       lister.WalletAddress,
			IngestedAt:     now,
		}
		if err := db.Create(&post).Error; err != nil {
			return fmt.Errorf("failed to create post %s: %w", sourceID, err)
		}

		market := models.Market{
			ID:       xid.New().String(),
			PostID:   post.ID,
			Supply:   initialSupply,
			Price:    initialPrice,
			ListedBy: lister.WalletAddress,
		}
		if err := db.Create(&market).Error; err != nil {
			return fmt.Errorf("failed to create market for post %s: %w", sourceID, err)
		}

		// The lister starts holding the initial supply at the launch price.
		position := models.Position{
			WalletAddress: lister.WalletAddress,
			MarketID:      market.ID,
			Shares:        initialSupply,
			AvgPrice:      initialPrice,
		}
		if err := db.Create(&position).Error; err != nil {
			return fmt.Errorf("failed to create position for market %s: %w", market.ID, err)
		}

		logrus.WithFields(logrus.Fields{
			"post_id":   post.ID,
			"market_id": market.ID,
			"lister":    lister.WalletAddress,
		}).Info("seeded market")
	}

	logrus.Info("database seeding completed")
	return nil
}
