package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord represents an executed trade with full pricing details.
// Corresponds to trade_records table in PostgreSQL. Append-only.
type TradeRecord struct {
	TradeID   string // deterministic hash
	TokenID   string
	UserID    string
	Sequence  int64 // 1-based position in the token's trade order
	Direction Direction
	Tier      VerificationTier

	Amount           decimal.Decimal // quote for buys, tokens for sells
	TokensOrProceeds decimal.Decimal // tokens received for buys, quote paid out for sells
	PriceBefore      decimal.Decimal
	PriceAfter       decimal.Decimal

	RiskScore int
	Timestamp time.Time
}

// AssessmentRecord is the audit entry of one risk assessment.
// Corresponds to risk_assessments table in PostgreSQL.
type AssessmentRecord struct {
	ID        int64 // BIGSERIAL primary key, 0 before insert
	UserID    string
	TokenID   string
	Direction Direction
	Amount    decimal.Decimal
	Score     int
	Allowed   bool
	Reasons   []FactorTag
	Executed  bool      // false if rejected or the curve refused the trade
	ErrorKind ErrorKind // empty on success
	Timestamp time.Time
}

// TradeResult is what the coordinator returns for every attempt.
type TradeResult struct {
	Success          bool
	TradeID          string // empty unless Success
	TokensOrProceeds decimal.Decimal
	NewPrice         decimal.Decimal
	RiskScore        int
	RiskBucket       RiskBucket
	Reasons          []FactorTag
	ErrorKind        ErrorKind
	Message          string // human-readable reason when not Success
	Graduation       GraduationPhase
}

// Quote is a simulated trade: no state is mutated.
type Quote struct {
	TokenID          string
	Direction        Direction
	Amount           decimal.Decimal
	TokensOrProceeds decimal.Decimal
	CurrentPrice     decimal.Decimal
	NewPrice         decimal.Decimal
	PriceImpact      decimal.Decimal // percent, (new-current)/current*100
}

// Fill is the outcome of a trade applied to the curve.
type Fill struct {
	TokenID          string
	Direction        Direction
	Amount           decimal.Decimal
	TokensOrProceeds decimal.Decimal
	PriceBefore      decimal.Decimal
	NewPrice         decimal.Decimal
	Sequence         int64
	Timestamp        time.Time
}
