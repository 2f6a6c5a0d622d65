package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// TradeAttempt is a single request to trade against a token's curve.
// Buys are denominated in quote currency, sells in tokens.
type TradeAttempt struct {
	UserID    string
	TokenID   string
	Direction Direction
	Amount    decimal.Decimal
	Tier      VerificationTier // empty means "ask the identity provider"
	Timestamp time.Time
}

// Validate checks the attempt before any state is read.
func (a *TradeAttempt) Validate() error {
	if !a.Direction.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidDirection, a.Direction)
	}
	if !a.Amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, a.Amount)
	}
	if a.Tier != "" && !a.Tier.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidTier, a.Tier)
	}
	return nil
}

// TradeFact is one executed trade as remembered by a trading session.
type TradeFact struct {
	Amount    decimal.Decimal // quote amount for buys, tokens for sells
	Price     decimal.Decimal // execution price
	Direction Direction
	Timestamp time.Time
	Flagged   bool // assessment scored above the suspicious threshold bucket
}

// AmountFromFloat converts an external float amount to a decimal,
// rejecting NaN, infinities and non-positive values.
func AmountFromFloat(v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero, fmt.Errorf("%w: non-finite value", ErrInvalidAmount)
	}
	if v <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, v)
	}
	return decimal.NewFromFloat(v), nil
}

// ParseAmount parses a decimal string amount, rejecting non-positive values.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAmount, d)
	}
	return d, nil
}
