// Package collab holds the external collaborators the trade pipeline
// consumes, with static and in-memory implementations.
package collab

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"fairlaunch/internal/domain"
)

// IdentityProvider resolves a user's verification tier.
type IdentityProvider interface {
	VerificationTier(ctx context.Context, userID string) (domain.VerificationTier, error)
}

// ReputationStore answers reputation questions about a user.
type ReputationStore interface {
	Score(ctx context.Context, userID string) (int, error)
	RecentSuspiciousCount(ctx context.Context, userID string) (int, error)
}

// TierLimits caps the absolute size of a single trade per verification tier.
type TierLimits interface {
	// MaxTradeAmount returns the cap for a tier; false means uncapped.
	MaxTradeAmount(tier domain.VerificationTier) (decimal.Decimal, bool)
}

// Classify maps a raw collaborator error onto the retryable error kinds.
// callCtx is the context the call ran under. Cancellation of the caller's
// own context is returned unchanged.
func Classify(callCtx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrCollaboratorTimeout), errors.Is(err, domain.ErrCollaboratorFailure):
		return err
	case errors.Is(callCtx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrCollaboratorTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrCollaboratorFailure, err)
	}
}
