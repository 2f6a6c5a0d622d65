// Package liquidity defines the external liquidity collaborator a graduating
// token hands its raised funds to, and a deterministic in-process stand-in.
package liquidity

import (
	"context"

	"github.com/shopspring/decimal"
)

// Collaborator creates the external pool of a graduating token and locks the
// initial liquidity in it. Implementations must be safe to retry after a
// timeout: a repeated call for the same token returns the same pool.
type Collaborator interface {
	CreatePoolAndLock(ctx context.Context, tokenID string, quoteAmount, tokenAmount decimal.Decimal) (poolRef string, err error)
}
