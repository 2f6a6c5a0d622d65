package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GraduationPhase is the position of a token in the graduation state machine.
type GraduationPhase string

const (
	PhaseAccumulating GraduationPhase = "ACCUMULATING"
	PhaseReady        GraduationPhase = "READY"
	PhaseGraduated    GraduationPhase = "GRADUATED" // terminal
)

// GraduationStatus is derived on demand from curve state and threshold config.
type GraduationStatus struct {
	TokenID            string
	Phase              GraduationPhase
	ProgressPercentage decimal.Decimal // 0..100
	IsGraduated        bool
	TotalRaised        decimal.Decimal
	Threshold          decimal.Decimal

	// EstimatedTimeToGraduation is nil when there is no recent trading
	// activity to project from.
	EstimatedTimeToGraduation *time.Duration
}

// GraduationResult describes the one liquidity event of a graduated token.
type GraduationResult struct {
	GraduationID string // deterministic hash
	TokenID      string
	PoolRef      string // external liquidity pool identifier
	QuoteAmount  decimal.Decimal
	TokenAmount  decimal.Decimal
	TotalRaised  decimal.Decimal // raised at graduation time
	TotalSupply  decimal.Decimal // supply at graduation time
	GraduatedAt  time.Time
}
