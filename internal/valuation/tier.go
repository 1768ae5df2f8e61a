// Package valuation computes the policy value of each order from its
// estimated tax value and the account tier.
package valuation

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Tier is a subscription level.
type Tier string

const (
	TierBase     Tier = "base"
	TierElevated Tier = "elevated"
	TierTop      Tier = "top"
)

var tierAliases = map[string]Tier{
	"base":       TierBase,
	"basic":      TierBase,
	"free":       TierBase,
	"elevated":   TierElevated,
	"premium":    TierElevated,
	"pro":        TierElevated,
	"top":        TierTop,
	"enterprise": TierTop,
}

var multipliers = map[Tier]decimal.Decimal{
	TierBase:     decimal.NewFromInt(1),
	TierElevated: decimal.RequireFromString("1.1"),
	TierTop:      decimal.RequireFromString("1.2"),
}

// ParseTier maps a plan name to a Tier. Unknown and empty names are TierBase.
func ParseTier(name string) Tier {
	if t, ok := tierAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t
	}
	return TierBase
}

// Multiplier is the factor applied to the estimated value.
func (t Tier) Multiplier() decimal.Decimal {
	if m, ok := multipliers[t]; ok {
		return m
	}
	return multipliers[TierBase]
}

// Compute returns the computed value for an estimated value under tier,
// rounded to cents. A missing estimate values at zero.
func Compute(estimated decimal.NullDecimal, tier Tier) decimal.Decimal {
	if !estimated.Valid {
		return decimal.Zero
	}
	return estimated.Decimal.Mul(tier.Multiplier()).Round(2)
}
