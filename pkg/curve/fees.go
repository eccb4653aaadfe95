package curve

import (
	"github.com/shopspring/decimal"
)

// Fee distribution shares. The split favors creators so that trading
// activity funds the people whose content the market is attached to.
const (
	CreatorShare   = 0.50
	PlatformShare  = 0.30
	LiquidityShare = 0.20
)

// FeeSplit is one fee amount divided between its three recipients.
type FeeSplit struct {
	CreatorFee   decimal.Decimal `json:"creator_fee"`
	PlatformFee  decimal.Decimal `json:"platform_fee"`
	LiquidityFee decimal.Decimal `json:"liquidity_fee"`
}

// SplitFees distributes a fee 50/30/20 between creator, platform, and the
// liquidity pool. Each share is rounded to Precision; the three shares sum
// to the input within one rounding unit.
func SplitFees(fee decimal.Decimal) FeeSplit {
	f := fee.InexactFloat64()
	return FeeSplit{
		CreatorFee:   round(f * CreatorShare),
		PlatformFee:  round(f * PlatformShare),
		LiquidityFee: round(f * LiquidityShare),
	}
}
