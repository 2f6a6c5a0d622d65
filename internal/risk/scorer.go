// Package risk scores trade attempts for bot and manipulation risk.
// Scoring is pure: no I/O, same inputs always give the same assessment.
// Logging and persisting assessments is the caller's job.
package risk

import (
	"sort"

	"github.com/shopspring/decimal"

	"fairlaunch/internal/domain"
	"fairlaunch/internal/session"
)

// MaxScore is the cap of the additive score.
const MaxScore = 100

// ReputationSnapshot is the reputation data of one user at assessment time.
type ReputationSnapshot struct {
	Score            int // reputation score
	RecentSuspicious int // recently flagged trades
}

// Input is everything an assessment looks at.
type Input struct {
	Attempt domain.TradeAttempt

	// ExecutionPrice is the curve price the attempt would trade at.
	ExecutionPrice decimal.Decimal

	// TradeValue is the attempt's size in quote currency: the amount for buys,
	// the quoted proceeds for sells. Zero falls back to Attempt.Amount.
	TradeValue decimal.Decimal

	// TokenAveragePrice is the token's recent average trade price, zero if unknown.
	TokenAveragePrice decimal.Decimal

	// Session is the user's trading history. May be nil for a first-time trader.
	Session *session.Session

	Reputation ReputationSnapshot
}

// Factor is the evaluation of one risk factor.
type Factor struct {
	Tag       domain.FactorTag
	Triggered bool
	Points    int
}

// Scorer computes risk assessments.
type Scorer struct {
	cfg Config
}

// NewScorer creates a new scorer.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Config returns the scorer configuration.
func (s *Scorer) Config() Config {
	return s.cfg
}

// Assess scores an attempt. Triggered factor points are summed and capped at MaxScore.
func (s *Scorer) Assess(in Input) domain.RiskAssessment {
	factors := s.Evaluate(in)

	score := 0
	var reasons []domain.FactorTag
	for _, f := range factors {
		if !f.Triggered {
			continue
		}
		score += f.Points
		reasons = append(reasons, f.Tag)
	}
	if score > MaxScore {
		score = MaxScore
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })

	return domain.RiskAssessment{
		Score:   score,
		Allowed: score <= s.cfg.SuspiciousThreshold,
		Bucket:  domain.BucketFor(score),
		Reasons: reasons,
	}
}

// Evaluate returns every factor with its trigger state, in a fixed order.
func (s *Scorer) Evaluate(in Input) []Factor {
	now := in.Attempt.Timestamp

	return []Factor{
		{domain.FactorLargeTradeSize, s.largeTrade(in), s.cfg.LargeTradeWeight},
		{domain.FactorHighFrequencyTrading, in.Session.Count(now, s.cfg.HighFrequencyWindow) > s.cfg.HighFrequencyCount, s.cfg.HighFrequencyWeight},
		{domain.FactorPriceDeviation, s.priceDeviation(in), s.cfg.PriceDeviationWeight},
		{domain.FactorLowReputation, in.Reputation.Score < s.cfg.ReputationFloor, s.cfg.LowReputationWeight},
		{domain.FactorRepeatedSuspicious, suspiciousCount(in) > s.cfg.SuspiciousHistoryCount, s.cfg.SuspiciousHistoryWeight},
		{domain.FactorDirectionalImbalance, s.imbalance(in), s.cfg.ImbalanceWeight},
	}
}

// largeTrade fires when the trade value is at least LargeTradeMultiple times
// the user's rolling average. An empty baseline never fires.
func (s *Scorer) largeTrade(in Input) bool {
	avg := in.Session.AverageTradeSize(in.Attempt.Timestamp)
	if !avg.IsPositive() {
		return false
	}
	value := in.TradeValue
	if value.IsZero() {
		value = in.Attempt.Amount
	}
	return value.GreaterThanOrEqual(avg.Mul(s.cfg.LargeTradeMultiple))
}

// suspiciousCount is the larger of the reputation store's count and the
// user's own recently flagged trades.
func suspiciousCount(in Input) int {
	n := in.Session.FlaggedCount(in.Attempt.Timestamp)
	if in.Reputation.RecentSuspicious > n {
		n = in.Reputation.RecentSuspicious
	}
	return n
}

// priceDeviation fires when the execution price is more than PriceDeviationPct
// away from the token's recent average. Unknown average never fires.
func (s *Scorer) priceDeviation(in Input) bool {
	avg := in.TokenAveragePrice
	if !avg.IsPositive() || in.ExecutionPrice.IsZero() {
		return false
	}
	dev := in.ExecutionPrice.Sub(avg).Abs().Div(avg)
	return dev.GreaterThan(s.cfg.PriceDeviationPct)
}

// imbalance fires when, counting the attempt itself, one direction outnumbers
// the other by more than ImbalanceRatio.
func (s *Scorer) imbalance(in Input) bool {
	buys, sells := in.Session.DirectionCounts(in.Attempt.Timestamp)
	if in.Attempt.Direction == domain.DirectionSell {
		sells++
	} else {
		buys++
	}
	if buys+sells < s.cfg.ImbalanceMinSample {
		return false
	}
	ratio := s.cfg.ImbalanceRatio
	return buys > ratio*sells || sells > ratio*buys
}
