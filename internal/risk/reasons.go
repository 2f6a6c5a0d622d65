package risk

import (
	"strings"

	"fairlaunch/internal/domain"
)

var descriptions = map[domain.FactorTag]string{
	domain.FactorLargeTradeSize:       "trade is much larger than your recent average",
	domain.FactorHighFrequencyTrading: "too many trades in the last few minutes",
	domain.FactorPriceDeviation:       "price moved too far from the recent average",
	domain.FactorLowReputation:        "account reputation is below the required level",
	domain.FactorRepeatedSuspicious:   "several recent trades were flagged as suspicious",
	domain.FactorDirectionalImbalance: "recent trades are heavily one-sided",
}

// Describe returns a human-readable explanation of a factor tag.
func Describe(tag domain.FactorTag) string {
	if d, ok := descriptions[tag]; ok {
		return d
	}
	return string(tag)
}

// Explain joins the descriptions of all reasons into one message.
func Explain(a domain.RiskAssessment) string {
	if len(a.Reasons) == 0 {
		return "trade rejected by risk policy"
	}
	parts := make([]string, 0, len(a.Reasons))
	for _, r := range a.Reasons {
		parts = append(parts, Describe(r))
	}
	return "trade rejected: " + strings.Join(parts, "; ")
}
