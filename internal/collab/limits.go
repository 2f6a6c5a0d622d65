package collab

import (
	"fmt"

	"github.com/shopspring/decimal"

	"fairlaunch/internal/domain"
)

// StaticTierLimits maps tiers to a per-trade cap. Tiers missing from the map are uncapped.
type StaticTierLimits map[domain.VerificationTier]decimal.Decimal

var _ TierLimits = StaticTierLimits(nil)

// DefaultTierLimits caps device-verified users hardest and leaves orb uncapped.
func DefaultTierLimits() StaticTierLimits {
	return StaticTierLimits{
		domain.TierDevice: decimal.NewFromInt(10),
		domain.TierPhone:  decimal.NewFromInt(100),
	}
}

// ParseTierLimits builds limits from string amounts, as read from config.
func ParseTierLimits(raw map[string]string) (StaticTierLimits, error) {
	limits := make(StaticTierLimits, len(raw))
	for tier, amount := range raw {
		t := domain.VerificationTier(tier)
		if !t.IsValid() {
			return nil, fmt.Errorf("invalid verification tier %q", tier)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("tier %s: invalid amount %q", tier, amount)
		}
		if !d.IsPositive() {
			return nil, fmt.Errorf("tier %s: cap must be positive, got %s", tier, d)
		}
		limits[t] = d
	}
	return limits, nil
}

// MaxTradeAmount implements TierLimits.
func (l StaticTierLimits) MaxTradeAmount(tier domain.VerificationTier) (decimal.Decimal, bool) {
	d, ok := l[tier]
	return d, ok
}
