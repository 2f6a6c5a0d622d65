package curve

import (
	"fmt"

	"github.com/shopspring/decimal"

	"fairlaunch/internal/domain"
)

// TokenScale is the number of decimal places kept for token quantities and
// sell proceeds. Prices follow exactly from supply and are not rounded.
const TokenScale int32 = 18

var hundred = decimal.NewFromInt(100)

// step is the outcome of pricing one trade against a state.
type step struct {
	tokensOrProceeds decimal.Decimal
	nextPrice        decimal.Decimal
	nextSupply       decimal.Decimal
	nextRaised       decimal.Decimal
}

// price computes a trade against st without mutating it.
//
// Buy: amount is quote currency. tokens = amount / current price; the new
// price is the curve price of the new supply, clamped at MaxPrice.
// Sell: amount is tokens, burned from supply, redeemed at the floor
// (InitialPrice). The spot price falls to the curve price of the reduced
// supply. Proceeds depend only on the token count, so splitting a sell never
// pays more, and every buy paid at least the floor, so TotalRaised always
// covers the redemption. A buy followed by a sell of the same tokens restores
// the price.
func price(st *domain.BondingCurveState, dir domain.Direction, amount decimal.Decimal) (step, error) {
	switch dir {
	case domain.DirectionBuy:
		tokens := amount.DivRound(st.CurrentPrice, TokenScale)
		if !tokens.IsPositive() {
			return step{}, fmt.Errorf("%w: %s buys zero tokens at price %s", domain.ErrInvalidAmount, amount, st.CurrentPrice)
		}
		supply := st.TotalSupply.Add(tokens)
		return step{
			tokensOrProceeds: tokens,
			nextPrice:        st.Params.PriceAt(supply),
			nextSupply:       supply,
			nextRaised:       st.TotalRaised.Add(amount),
		}, nil

	case domain.DirectionSell:
		if amount.GreaterThan(st.TotalSupply) {
			return step{}, fmt.Errorf("%w: sell %s exceeds supply %s", domain.ErrInvalidAmount, amount, st.TotalSupply)
		}
		supply := st.TotalSupply.Sub(amount)
		next := st.Params.PriceAt(supply)
		proceeds := decimal.Min(amount.Mul(st.Params.InitialPrice).Truncate(TokenScale), st.TotalRaised)
		return step{
			tokensOrProceeds: proceeds,
			nextPrice:        next,
			nextSupply:       supply,
			nextRaised:       st.TotalRaised.Sub(proceeds),
		}, nil

	default:
		return step{}, fmt.Errorf("%w: %q", domain.ErrInvalidDirection, dir)
	}
}

// impact returns (next - current) / current * 100.
func impact(current, next decimal.Decimal) decimal.Decimal {
	if current.IsZero() {
		return decimal.Zero
	}
	return next.Sub(current).Mul(hundred).DivRound(current, 8)
}
