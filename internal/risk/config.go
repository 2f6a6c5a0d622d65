package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds factor weights, trigger thresholds and the acceptance threshold.
type Config struct {
	// SuspiciousThreshold: a trade is allowed iff score <= SuspiciousThreshold.
	SuspiciousThreshold int `yaml:"suspicious_threshold"`

	// large_trade_size: amount >= LargeTradeMultiple * user's rolling average.
	LargeTradeMultiple decimal.Decimal `yaml:"large_trade_multiple"`
	LargeTradeWeight   int             `yaml:"large_trade_weight"`

	// high_frequency_trading: more than HighFrequencyCount trades within HighFrequencyWindow.
	HighFrequencyWindow time.Duration `yaml:"high_frequency_window"`
	HighFrequencyCount  int           `yaml:"high_frequency_count"`
	HighFrequencyWeight int           `yaml:"high_frequency_weight"`

	// price_deviation: |price - token average| / token average > PriceDeviationPct.
	PriceDeviationPct    decimal.Decimal `yaml:"price_deviation_pct"`
	PriceDeviationWeight int             `yaml:"price_deviation_weight"`

	// low_reputation: reputation score < ReputationFloor.
	ReputationFloor     int `yaml:"reputation_floor"`
	LowReputationWeight int `yaml:"low_reputation_weight"`

	// repeated_suspicious_activity: more than SuspiciousHistoryCount recent flagged trades.
	SuspiciousHistoryCount  int `yaml:"suspicious_history_count"`
	SuspiciousHistoryWeight int `yaml:"suspicious_history_weight"`

	// directional_imbalance: one side count > ImbalanceRatio * other side,
	// once at least ImbalanceMinSample recent trades exist.
	ImbalanceRatio     int `yaml:"imbalance_ratio"`
	ImbalanceMinSample int `yaml:"imbalance_min_sample"`
	ImbalanceWeight    int `yaml:"imbalance_weight"`
}

// DefaultConfig returns the default scoring configuration.
func DefaultConfig() Config {
	return Config{
		SuspiciousThreshold: 50,

		LargeTradeMultiple: decimal.NewFromInt(5),
		LargeTradeWeight:   20,

		HighFrequencyWindow: 5 * time.Minute,
		HighFrequencyCount:  5,
		HighFrequencyWeight: 15,

		PriceDeviationPct:    decimal.NewFromFloat(0.10),
		PriceDeviationWeight: 10,

		ReputationFloor:     100,
		LowReputationWeight: 10,

		SuspiciousHistoryCount:  2,
		SuspiciousHistoryWeight: 25,

		ImbalanceRatio:     3,
		ImbalanceMinSample: 4,
		ImbalanceWeight:    15,
	}
}

// Validate checks ranges.
func (c Config) Validate() error {
	if c.SuspiciousThreshold < 0 || c.SuspiciousThreshold > MaxScore {
		return fmt.Errorf("suspicious threshold must be within [0, %d], got %d", MaxScore, c.SuspiciousThreshold)
	}
	if !c.LargeTradeMultiple.IsPositive() {
		return fmt.Errorf("large trade multiple must be positive, got %s", c.LargeTradeMultiple)
	}
	if c.HighFrequencyWindow <= 0 {
		return fmt.Errorf("high frequency window must be positive, got %v", c.HighFrequencyWindow)
	}
	if c.PriceDeviationPct.IsNegative() {
		return fmt.Errorf("price deviation pct cannot be negative, got %s", c.PriceDeviationPct)
	}
	if c.ImbalanceRatio < 1 {
		return fmt.Errorf("imbalance ratio must be >= 1, got %d", c.ImbalanceRatio)
	}
	for name, w := range map[string]int{
		"large_trade":        c.LargeTradeWeight,
		"high_frequency":     c.HighFrequencyWeight,
		"price_deviation":    c.PriceDeviationWeight,
		"low_reputation":     c.LowReputationWeight,
		"suspicious_history": c.SuspiciousHistoryWeight,
		"imbalance":          c.ImbalanceWeight,
	} {
		if w < 0 {
			return fmt.Errorf("%s weight cannot be negative, got %d", name, w)
		}
	}
	return nil
}
