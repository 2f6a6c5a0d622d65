package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(token_id|user_id|sequence|timestamp_ms)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(
	tokenID string,
	userID string,
	sequence int64,
	timestampMs int64,
) string {
	data := fmt.Sprintf("%s|%s|%d|%d",
		tokenID,
		userID,
		sequence,
		timestampMs,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
