package curve

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// Bonding curve parameters. Price per share at supply s is
// BasePrice * s^Exponent; cost and revenue are definite integrals of that
// function, so large trades pay their own slippage.
const (
	BasePrice = 0.01
	Exponent  = 1.5
	FeeRate   = 0.02

	// Precision is the number of decimal places monetary outputs are
	// rounded to. Rounding happens once, at the boundary, never inside
	// intermediate math.
	Precision = 6
)

var (
	ErrNonPositiveShares  = errors.New("shares must be positive")
	ErrNegativeSupply     = errors.New("supply cannot be negative")
	ErrSharesExceedSupply = errors.New("cannot sell more shares than supply")
)

// BuyQuote is the priced outcome of a prospective buy.
type BuyQuote struct {
	CostBeforeFee decimal.Decimal `json:"cost_before_fee"`
	Fee           decimal.Decimal `json:"fee"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	NewSupply     decimal.Decimal `json:"new_supply"`
	NewPrice      decimal.Decimal `json:"new_price"`
}

// SellQuote is the priced outcome of a prospective sell.
type SellQuote struct {
	RevenueBeforeFee decimal.Decimal `json:"revenue_before_fee"`
	Fee              decimal.Decimal `json:"fee"`
	NetRevenue       decimal.Decimal `json:"net_revenue"`
	AvgPrice         decimal.Decimal `json:"avg_price"`
	NewSupply        decimal.Decimal `json:"new_supply"`
	NewPrice         decimal.Decimal `json:"new_price"`
}

// Price returns the spot price per share at the given supply. Supply at or
// below zero floors to BasePrice.
func Price(supply float64) float64 {
	if supply <= 0 {
		return BasePrice
	}
	return BasePrice * math.Pow(supply, Exponent)
}

// BuyCost prices a buy of shares against the current supply. The cost is the
// integral of the curve from supply to supply+shares, plus a FeeRate fee.
func BuyCost(supply, shares float64) (*BuyQuote, error) {
	if shares <= 0 {
		return nil, ErrNonPositiveShares
	}
	if supply < 0 {
		return nil, ErrNegativeSupply
	}

	expPlusOne := Exponent + 1
	costBeforeFee := (BasePrice / expPlusOne) *
		(math.Pow(supply+shares, expPlusOne) - math.Pow(supply, expPlusOne))

	fee := costBeforeFee * FeeRate
	newSupply := supply + shares

	return &BuyQuote{
		CostBeforeFee: round(costBeforeFee),
		Fee:           round(fee),
		TotalCost:     round(costBeforeFee + fee),
		AvgPrice:      round(costBeforeFee / shares),
		NewSupply:     round(newSupply),
		NewPrice:      round(Price(newSupply)),
	}, nil
}

// SellRevenue prices a sell of shares against the current supply, symmetric
// to BuyCost: the integral from supply-shares to supply, minus the fee.
// A sell that drains the market reports NewPrice of zero; the Price floor
// applies only to the curve function itself, not to a fully redeemed market.
func SellRevenue(supply, shares float64) (*SellQuote, error) {
	if shares <= 0 {
		return nil, ErrNonPositiveShares
	}
	if shares > supply {
		return nil, ErrSharesExceedSupply
	}

	expPlusOne := Exponent + 1
	revenueBeforeFee := (BasePrice / expPlusOne) *
		(math.Pow(supply, expPlusOne) - math.Pow(supply-shares, expPlusOne))

	fee := revenueBeforeFee * FeeRate
	newSupply := supply - shares

	newPrice := 0.0
	if newSupply > 0 {
		newPrice = Price(newSupply)
	}

	return &SellQuote{
		RevenueBeforeFee: round(revenueBeforeFee),
		Fee:              round(fee),
		NetRevenue:       round(revenueBeforeFee - fee),
		AvgPrice:         round(revenueBeforeFee / shares),
		NewSupply:        round(newSupply),
		NewPrice:         round(newPrice),
	}, nil
}

// round converts an intermediate float to a decimal rounded to Precision.
func round(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(Precision)
}
