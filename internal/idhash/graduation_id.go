package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
)

// ComputeGraduationID computes a deterministic graduation_id using SHA256.
// Formula: SHA256(graduation|token_id|total_raised|total_supply)
// A token graduates once, at a fixed point of its curve, so retries of the
// same graduation hash to the same id and can be deduplicated downstream.
func ComputeGraduationID(
	tokenID string,
	totalRaised decimal.Decimal,
	totalSupply decimal.Decimal,
) string {
	data := fmt.Sprintf("graduation|%s|%s|%s",
		tokenID,
		totalRaised.String(),
		totalSupply.String(),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
