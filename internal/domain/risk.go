package domain

// FactorTag identifies a risk factor that fired during assessment.
type FactorTag string

// Risk factor tags
const (
	FactorLargeTradeSize       FactorTag = "large_trade_size"
	FactorHighFrequencyTrading FactorTag = "high_frequency_trading"
	FactorPriceDeviation       FactorTag = "price_deviation"
	FactorLowReputation        FactorTag = "low_reputation"
	FactorRepeatedSuspicious   FactorTag = "repeated_suspicious_activity"
	FactorDirectionalImbalance FactorTag = "directional_imbalance"
)

// RiskBucket is the coarse classification of a risk score.
type RiskBucket string

const (
	RiskLow    RiskBucket = "low"    // score < 30
	RiskMedium RiskBucket = "medium" // 30 <= score < 70
	RiskHigh   RiskBucket = "high"   // score >= 70
)

// BucketFor classifies a 0..100 risk score.
func BucketFor(score int) RiskBucket {
	switch {
	case score >= 70:
		return RiskHigh
	case score >= 30:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RiskAssessment is the outcome of scoring one trade attempt.
type RiskAssessment struct {
	Score   int         // 0..100
	Allowed bool        // Score <= suspicious threshold
	Bucket  RiskBucket
	Reasons []FactorTag // fired factors, sorted
}

// HasReason reports whether the given factor fired.
func (a RiskAssessment) HasReason(tag FactorTag) bool {
	for _, r := range a.Reasons {
		if r == tag {
			return true
		}
	}
	return false
}
