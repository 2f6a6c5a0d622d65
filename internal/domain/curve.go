package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CurveParams are the immutable parameters of a token's bonding curve.
type CurveParams struct {
	InitialPrice   decimal.Decimal // price of the first token, quote units
	PriceIncrement decimal.Decimal // price increase per token issued
	MaxPrice       decimal.Decimal // hard ceiling, price is clamped here
}

// Validate checks that the parameters describe a usable curve.
func (p CurveParams) Validate() error {
	if !p.InitialPrice.IsPositive() {
		return fmt.Errorf("%w: initial price must be positive, got %s", ErrInvalidParams, p.InitialPrice)
	}
	if !p.PriceIncrement.IsPositive() {
		return fmt.Errorf("%w: price increment must be positive, got %s", ErrInvalidParams, p.PriceIncrement)
	}
	if p.MaxPrice.LessThan(p.InitialPrice) {
		return fmt.Errorf("%w: max price %s below initial price %s", ErrInvalidParams, p.MaxPrice, p.InitialPrice)
	}
	return nil
}

// PriceAt returns the curve price for a given circulating supply:
// min(initial + supply*increment, max).
func (p CurveParams) PriceAt(supply decimal.Decimal) decimal.Decimal {
	price := p.InitialPrice.Add(supply.Mul(p.PriceIncrement))
	return decimal.Min(price, p.MaxPrice)
}

// BondingCurveState is the pricing state of one token.
// Owned by curve.Engine; every other component only sees copies.
type BondingCurveState struct {
	TokenID       string
	Params        CurveParams
	CurrentPrice  decimal.Decimal // InitialPrice <= CurrentPrice <= MaxPrice
	TotalSupply   decimal.Decimal // tokens issued
	TotalRaised   decimal.Decimal // quote currency received
	Graduated     bool            // terminal
	LastTradeTime time.Time
	TradeCount    int64
	CreatedAt     time.Time
}

// NewBondingCurveState creates the initial state of a freshly registered token.
func NewBondingCurveState(tokenID string, params CurveParams, createdAt time.Time) *BondingCurveState {
	return &BondingCurveState{
		TokenID:      tokenID,
		Params:       params,
		CurrentPrice: params.InitialPrice,
		TotalSupply:  decimal.Zero,
		TotalRaised:  decimal.Zero,
		CreatedAt:    createdAt,
	}
}

// Clone returns an independent copy of the state.
func (s *BondingCurveState) Clone() *BondingCurveState {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Equal reports whether two states hold the same pricing values.
// Decimal fields are compared numerically, timestamps exactly.
func (s *BondingCurveState) Equal(o *BondingCurveState) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.TokenID == o.TokenID &&
		s.Params.InitialPrice.Equal(o.Params.InitialPrice) &&
		s.Params.PriceIncrement.Equal(o.Params.PriceIncrement) &&
		s.Params.MaxPrice.Equal(o.Params.MaxPrice) &&
		s.CurrentPrice.Equal(o.CurrentPrice) &&
		s.TotalSupply.Equal(o.TotalSupply) &&
		s.TotalRaised.Equal(o.TotalRaised) &&
		s.Graduated == o.Graduated &&
		s.LastTradeTime.Equal(o.LastTradeTime) &&
		s.TradeCount == o.TradeCount
}

// CheckInvariants verifies the price bounds and the price/supply relation.
func (s *BondingCurveState) CheckInvariants() error {
	if s.CurrentPrice.LessThan(s.Params.InitialPrice) || s.CurrentPrice.GreaterThan(s.Params.MaxPrice) {
		return fmt.Errorf("%w: price %s outside [%s, %s]", ErrCorruptState,
			s.CurrentPrice, s.Params.InitialPrice, s.Params.MaxPrice)
	}
	if s.TotalSupply.IsNegative() || s.TotalRaised.IsNegative() {
		return fmt.Errorf("%w: negative supply %s or raised %s", ErrCorruptState, s.TotalSupply, s.TotalRaised)
	}
	if want := s.Params.PriceAt(s.TotalSupply); !want.Equal(s.CurrentPrice) {
		return fmt.Errorf("%w: price %s does not match curve price %s for supply %s", ErrCorruptState,
			s.CurrentPrice, want, s.TotalSupply)
	}
	return nil
}
