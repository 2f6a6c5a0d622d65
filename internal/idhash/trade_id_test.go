package idhash

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeTradeID(t *testing.T) {
	tests := []struct {
		name        string
		tokenID     string
		userID      string
		sequence    int64
		timestampMs int64
		wantLen     int // hash length should be 64
	}{
		{
			name:        "first buy",
			tokenID:     "token-abc",
			userID:      "user-1",
			sequence:    1,
			timestampMs: 1704067234567,
			wantLen:     64,
		},
		{
			name:        "later sell",
			tokenID:     "token-xyz",
			userID:      "user-2",
			sequence:    42,
			timestampMs: 1704067300000,
			wantLen:     64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTradeID(tt.tokenID, tt.userID, tt.sequence, tt.timestampMs)

			if len(got) != tt.wantLen {
				t.Errorf("ComputeTradeID() length = %d, want %d", len(got), tt.wantLen)
			}

			// Verify determinism: same inputs should produce same output
			got2 := ComputeTradeID(tt.tokenID, tt.userID, tt.sequence, tt.timestampMs)
			if got != got2 {
				t.Errorf("ComputeTradeID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeTradeID_DifferentInputs(t *testing.T) {
	base := ComputeTradeID("token", "user", 1, 1000)

	if base == ComputeTradeID("other_token", "user", 1, 1000) {
		t.Error("Different token should produce different hash")
	}
	if base == ComputeTradeID("token", "other_user", 1, 1000) {
		t.Error("Different user should produce different hash")
	}
	if base == ComputeTradeID("token", "user", 2, 1000) {
		t.Error("Different sequence should produce different hash")
	}
	if base == ComputeTradeID("token", "user", 1, 2000) {
		t.Error("Different timestamp should produce different hash")
	}
}

func TestComputeGraduationID(t *testing.T) {
	raised := decimal.RequireFromString("1000")
	supply := decimal.RequireFromString("5000000")

	got := ComputeGraduationID("token", raised, supply)
	if len(got) != 64 {
		t.Fatalf("ComputeGraduationID() length = %d, want 64", len(got))
	}

	// Trailing zeros do not change the id.
	if got != ComputeGraduationID("token", decimal.RequireFromString("1000.00"), supply) {
		t.Error("ComputeGraduationID() not deterministic")
	}
	if got == ComputeGraduationID("token", decimal.RequireFromString("1001"), supply) {
		t.Error("Different raised amount should produce different hash")
	}
	if got == ComputeTradeID("token", "", 0, 0) {
		t.Error("Graduation and trade ids should not collide")
	}
}
