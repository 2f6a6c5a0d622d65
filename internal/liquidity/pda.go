package liquidity

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// maxSeedLen is the Solana limit on one PDA seed.
const maxSeedLen = 32

// ErrNoValidBump is returned when no bump yields an off-curve address.
var ErrNoValidBump = errors.New("no valid bump seed")

// IsAddress reports whether s is a base58-encoded 32-byte public key.
func IsAddress(s string) bool {
	b, err := base58.Decode(s)
	return err == nil && len(b) == 32
}

// DerivePoolAddress derives the program-derived pool address of a token.
// Seeds: ["pool", token]. A token id that is itself an address contributes its
// 32 key bytes; any other id contributes its sha256.
func DerivePoolAddress(programID, tokenID string) (string, error) {
	program, err := base58.Decode(programID)
	if err != nil || len(program) != 32 {
		return "", fmt.Errorf("invalid program id %q", programID)
	}
	if tokenID == "" {
		return "", fmt.Errorf("empty token id")
	}

	return derivePDA([][]byte{[]byte("pool"), tokenSeed(tokenID)}, program)
}

func tokenSeed(tokenID string) []byte {
	if b, err := base58.Decode(tokenID); err == nil && len(b) == 32 {
		return b
	}
	if len(tokenID) <= maxSeedLen {
		return []byte(tokenID)
	}
	h := sha256.Sum256([]byte(tokenID))
	return h[:]
}

// derivePDA returns the first off-curve sha256(seeds || bump || program || marker),
// trying bumps from 255 down.
func derivePDA(seeds [][]byte, programID []byte) (string, error) {
	for bump := 255; bump >= 0; bump-- {
		data := make([]byte, 0, 128)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, byte(bump))
		data = append(data, programID...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)
		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:]), nil
		}
	}
	return "", ErrNoValidBump
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
