package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairlaunch/internal/domain"
	"fairlaunch/internal/session"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func attempt(amount string, dir domain.Direction) domain.TradeAttempt {
	return domain.TradeAttempt{
		UserID:    "user-1",
		TokenID:   "token-1",
		Direction: dir,
		Amount:    dec(amount),
		Tier:      domain.TierOrb,
		Timestamp: now,
	}
}

func goodReputation() ReputationSnapshot {
	return ReputationSnapshot{Score: 500}
}

func TestAssess_FirstTimeTraderIsClean(t *testing.T) {
	s := NewScorer(DefaultConfig())

	a := s.Assess(Input{
		Attempt:        attempt("1000", domain.DirectionBuy),
		ExecutionPrice: dec("0.0001"),
		Reputation:     goodReputation(),
	})

	assert.Equal(t, 0, a.Score)
	assert.True(t, a.Allowed)
	assert.Equal(t, domain.RiskLow, a.Bucket)
	assert.Empty(t, a.Reasons, "empty baseline must not be penalized")
}

func TestAssess_HighFrequencyAddsFifteen(t *testing.T) {
	s := NewScorer(DefaultConfig())

	// Six trades in the last five minutes, alternating sides so no other factor fires.
	sess := session.New(session.DefaultConfig())
	for i := 0; i < 6; i++ {
		dir := domain.DirectionBuy
		if i%2 == 1 {
			dir = domain.DirectionSell
		}
		sess.Record(domain.TradeFact{
			Amount:    dec("10"),
			Price:     dec("0.0001"),
			Direction: dir,
			Timestamp: now.Add(-time.Duration(4*60-i*30) * time.Second),
		})
	}

	base := Input{
		Attempt:        attempt("10", domain.DirectionBuy),
		ExecutionPrice: dec("0.0001"),
		Reputation:     goodReputation(),
	}
	firstTimer := s.Assess(base)

	withHistory := base
	withHistory.Session = sess
	active := s.Assess(withHistory)

	assert.True(t, active.HasReason(domain.FactorHighFrequencyTrading))
	assert.Equal(t, firstTimer.Score+15, active.Score)
	assert.Equal(t, []domain.FactorTag{domain.FactorHighFrequencyTrading}, active.Reasons)
}

func TestAssess_HighFrequencyIgnoresOldTrades(t *testing.T) {
	s := NewScorer(DefaultConfig())
	sess := session.New(session.DefaultConfig())
	for i := 0; i < 10; i++ {
		sess.Record(domain.TradeFact{
			Amount:    dec("10"),
			Price:     dec("1"),
			Direction: domain.DirectionBuy,
			Timestamp: now.Add(-10*time.Minute - time.Duration(i)*time.Second),
		})
	}

	a := s.Assess(Input{
		Attempt:        attempt("10", domain.DirectionBuy),
		ExecutionPrice: dec("1"),
		Session:        sess,
		Reputation:     goodReputation(),
	})
	assert.False(t, a.HasReason(domain.FactorHighFrequencyTrading))
}

func TestAssess_LargeTradeSize(t *testing.T) {
	s := NewScorer(DefaultConfig())
	sess := session.New(session.DefaultConfig())
	sess.Record(domain.TradeFact{Amount: dec("10"), Price: dec("1"), Direction: domain.DirectionBuy, Timestamp: now.Add(-30 * time.Minute)})
	sess.Record(domain.TradeFact{Amount: dec("10"), Price: dec("1"), Direction: domain.DirectionSell, Timestamp: now.Add(-20 * time.Minute)})

	tests := []struct {
		name   string
		amount string
		want   bool
	}{
		{"just below 5x", "49.99", false},
		{"exactly 5x", "50", true},
		{"above 5x", "500", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := s.Assess(Input{
				Attempt:        attempt(tt.amount, domain.DirectionBuy),
				ExecutionPrice: dec("1"),
				Session:        sess,
				Reputation:     goodReputation(),
			})
			assert.Equal(t, tt.want, a.HasReason(domain.FactorLargeTradeSize))
			if tt.want {
				assert.Equal(t, 20, a.Score)
			}
		})
	}
}

func TestAssess_PriceDeviation(t *testing.T) {
	s := NewScorer(DefaultConfig())

	tests := []struct {
		name  string
		price string
		want  bool
	}{
		{"equal", "1.00", false},
		{"exactly 10%", "1.10", false},
		{"above 10%", "1.11", true},
		{"below -10%", "0.89", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := s.Assess(Input{
				Attempt:           attempt("1", domain.DirectionBuy),
				ExecutionPrice:    dec(tt.price),
				TokenAveragePrice: dec("1"),
				Reputation:        goodReputation(),
			})
			assert.Equal(t, tt.want, a.HasReason(domain.FactorPriceDeviation))
		})
	}
}

func TestAssess_ReputationFactors(t *testing.T) {
	s := NewScorer(DefaultConfig())

	a := s.Assess(Input{
		Attempt:        attempt("1", domain.DirectionBuy),
		ExecutionPrice: dec("1"),
		Reputation:     ReputationSnapshot{Score: 99, RecentSuspicious: 3},
	})

	assert.Equal(t, 35, a.Score)
	assert.ElementsMatch(t, []domain.FactorTag{domain.FactorLowReputation, domain.FactorRepeatedSuspicious}, a.Reasons)
	assert.Equal(t, domain.RiskMedium, a.Bucket)
	assert.True(t, a.Allowed)

	edge := s.Assess(Input{
		Attempt:        attempt("1", domain.DirectionBuy),
		ExecutionPrice: dec("1"),
		Reputation:     ReputationSnapshot{Score: 100, RecentSuspicious: 2},
	})
	assert.Zero(t, edge.Score, "floor and count are strict comparisons")
}

func TestAssess_SessionFlagsCountAsSuspicious(t *testing.T) {
	s := NewScorer(DefaultConfig())
	sess := session.New(session.DefaultConfig())
	dirs := []domain.Direction{domain.DirectionBuy, domain.DirectionSell, domain.DirectionBuy}
	for i, d := range dirs {
		sess.Record(domain.TradeFact{Amount: dec("1"), Price: dec("1"), Direction: d, Timestamp: now.Add(-time.Duration(20+i) * time.Minute), Flagged: true})
	}

	a := s.Assess(Input{
		Attempt:        attempt("1", domain.DirectionSell),
		ExecutionPrice: dec("1"),
		Session:        sess,
		Reputation:     goodReputation(),
	})
	assert.True(t, a.HasReason(domain.FactorRepeatedSuspicious), "3 flagged session trades with a clean reputation")
	assert.Equal(t, 25, a.Score)

	clean := session.New(session.DefaultConfig())
	clean.Record(domain.TradeFact{Amount: dec("1"), Price: dec("1"), Direction: domain.DirectionBuy, Timestamp: now.Add(-20 * time.Minute), Flagged: true})
	clean.Record(domain.TradeFact{Amount: dec("1"), Price: dec("1"), Direction: domain.DirectionSell, Timestamp: now.Add(-21 * time.Minute), Flagged: true})
	b := s.Assess(Input{
		Attempt:        attempt("1", domain.DirectionBuy),
		ExecutionPrice: dec("1"),
		Session:        clean,
		Reputation:     ReputationSnapshot{Score: 500, RecentSuspicious: 1},
	})
	assert.False(t, b.HasReason(domain.FactorRepeatedSuspicious), "larger of the two counts is 2, not more than 2")
}

func TestAssess_LargeTradeUsesTradeValue(t *testing.T) {
	s := NewScorer(DefaultConfig())
	sess := session.New(session.DefaultConfig())
	sess.Record(domain.TradeFact{Amount: dec("1"), Price: dec("0.0001"), Direction: domain.DirectionBuy, Timestamp: now.Add(-10 * time.Minute)})

	// 5000 tokens redeem for 0.5, well under 5x the 1.0 average.
	a := s.Assess(Input{
		Attempt:        attempt("5000", domain.DirectionSell),
		ExecutionPrice: dec("0.0001"),
		TradeValue:     dec("0.5"),
		Session:        sess,
		Reputation:     goodReputation(),
	})
	assert.False(t, a.HasReason(domain.FactorLargeTradeSize))

	b := s.Assess(Input{
		Attempt:        attempt("5000", domain.DirectionSell),
		ExecutionPrice: dec("0.0001"),
		Session:        sess,
		Reputation:     goodReputation(),
	})
	assert.True(t, b.HasReason(domain.FactorLargeTradeSize), "without a value the raw amount is used")
}

func TestAssess_DirectionalImbalance(t *testing.T) {
	s := NewScorer(DefaultConfig())
	sess := session.New(session.DefaultConfig())
	for i := 0; i < 3; i++ {
		sess.Record(domain.TradeFact{Amount: dec("1"), Price: dec("1"), Direction: domain.DirectionBuy, Timestamp: now.Add(-time.Duration(30+i) * time.Minute)})
	}

	a := s.Assess(Input{
		Attempt:        attempt("1", domain.DirectionBuy),
		ExecutionPrice: dec("1"),
		Session:        sess,
		Reputation:     goodReputation(),
	})
	assert.True(t, a.HasReason(domain.FactorDirectionalImbalance), "4 buys vs 0 sells")

	balanced := s.Assess(Input{
		Attempt:        attempt("1", domain.DirectionSell),
		ExecutionPrice: dec("1"),
		Session:        sess,
		Reputation:     goodReputation(),
	})
	assert.False(t, balanced.HasReason(domain.FactorDirectionalImbalance), "3 buys vs 1 sell is not more than 3x")
}

func TestAssess_ScoreBoundsAndThreshold(t *testing.T) {
	s := NewScorer(DefaultConfig())

	// Everything fires: 20+15+10+10+25+15 = 95.
	sess := session.New(session.DefaultConfig())
	for i := 0; i < 8; i++ {
		sess.Record(domain.TradeFact{Amount: dec("1"), Price: dec("1"), Direction: domain.DirectionBuy, Timestamp: now.Add(-time.Duration(i+1) * time.Second)})
	}
	all := s.Assess(Input{
		Attempt:           attempt("100", domain.DirectionBuy),
		ExecutionPrice:    dec("2"),
		TokenAveragePrice: dec("1"),
		Session:           sess,
		Reputation:        ReputationSnapshot{Score: 0, RecentSuspicious: 10},
	})
	assert.Equal(t, 95, all.Score)
	assert.Len(t, all.Reasons, 6)
	assert.False(t, all.Allowed)
	assert.Equal(t, domain.RiskHigh, all.Bucket)

	// Weights that overflow are capped.
	cfg := DefaultConfig()
	cfg.SuspiciousHistoryWeight = 90
	capped := NewScorer(cfg).Assess(Input{
		Attempt:        attempt("1", domain.DirectionBuy),
		ExecutionPrice: dec("1"),
		Reputation:     ReputationSnapshot{Score: 0, RecentSuspicious: 10},
	})
	assert.Equal(t, MaxScore, capped.Score)
}

func TestAssess_AllowedMatchesThreshold(t *testing.T) {
	s := NewScorer(DefaultConfig())
	reps := []ReputationSnapshot{
		{Score: 500},
		{Score: 0},
		{Score: 500, RecentSuspicious: 5},
		{Score: 0, RecentSuspicious: 5},
	}
	for _, r := range reps {
		for _, price := range []string{"1", "1.5"} {
			a := s.Assess(Input{
				Attempt:           attempt("3", domain.DirectionBuy),
				ExecutionPrice:    dec(price),
				TokenAveragePrice: dec("1"),
				Reputation:        r,
			})
			require.GreaterOrEqual(t, a.Score, 0)
			require.LessOrEqual(t, a.Score, MaxScore)
			assert.Equal(t, a.Score <= 50, a.Allowed, "score %d", a.Score)
		}
	}
}

func TestAssess_Deterministic(t *testing.T) {
	s := NewScorer(DefaultConfig())
	in := Input{
		Attempt:           attempt("7", domain.DirectionBuy),
		ExecutionPrice:    dec("1.2"),
		TokenAveragePrice: dec("1"),
		Reputation:        ReputationSnapshot{Score: 10, RecentSuspicious: 3},
	}

	first := s.Assess(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Assess(in))
	}
}

func TestExplain(t *testing.T) {
	a := domain.RiskAssessment{Reasons: []domain.FactorTag{domain.FactorHighFrequencyTrading}}
	assert.Contains(t, Explain(a), "too many trades")
	assert.NotEmpty(t, Explain(domain.RiskAssessment{}))
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.SuspiciousThreshold = 101
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.HighFrequencyWeight = -1
	assert.Error(t, cfg.Validate())
}
