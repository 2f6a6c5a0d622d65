package domain

import (
	"context"
	"errors"
)

// Engine errors. Business outcomes such as a risk rejection are not errors;
// these cover invalid input, terminal states and collaborator failures.
var (
	// ErrInvalidAmount is returned for non-positive or non-finite amounts,
	// and for sells larger than the circulating supply.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidDirection is returned for a direction other than buy or sell.
	ErrInvalidDirection = errors.New("invalid direction")

	// ErrInvalidTier is returned for an unknown verification tier.
	ErrInvalidTier = errors.New("invalid verification tier")

	// ErrTokenNotFound is returned when the token is not registered.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenExists is returned when registering a token twice.
	ErrTokenExists = errors.New("token already registered")

	// ErrInvalidParams is returned for unusable curve parameters.
	ErrInvalidParams = errors.New("invalid curve params")

	// ErrAlreadyGraduated is returned for any curve-priced trade on a graduated token.
	ErrAlreadyGraduated = errors.New("token already graduated")

	// ErrSellDisabled is returned for sells when selling back into the curve is disabled.
	ErrSellDisabled = errors.New("sells disabled before graduation")

	// ErrNotReady is returned when graduation is triggered below the threshold.
	ErrNotReady = errors.New("graduation threshold not reached")

	// ErrCollaboratorTimeout is returned when an external call exceeded its deadline.
	// Retryable; local state is untouched.
	ErrCollaboratorTimeout = errors.New("collaborator timeout")

	// ErrCollaboratorFailure is returned when an external call failed.
	// Retryable; local state is untouched.
	ErrCollaboratorFailure = errors.New("collaborator failure")

	// ErrCorruptState is returned when a curve state violates its invariants.
	ErrCorruptState = errors.New("corrupt curve state")
)

// ErrorKind is the stable, serializable name of an error carried in results.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindInvalidAmount       ErrorKind = "invalid_amount"
	KindInvalidDirection    ErrorKind = "invalid_direction"
	KindInvalidTier         ErrorKind = "invalid_tier"
	KindTokenNotFound       ErrorKind = "token_not_found"
	KindAlreadyGraduated    ErrorKind = "already_graduated"
	KindSellDisabled        ErrorKind = "sell_disabled"
	KindRiskRejected        ErrorKind = "risk_rejected"
	KindTierLimitExceeded   ErrorKind = "tier_limit_exceeded"
	KindNotReady            ErrorKind = "not_ready"
	KindCollaboratorTimeout ErrorKind = "collaborator_timeout"
	KindCollaboratorFailure ErrorKind = "collaborator_failure"
	KindInternal            ErrorKind = "internal"
)

// KindOf maps an error to its ErrorKind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidAmount):
		return KindInvalidAmount
	case errors.Is(err, ErrInvalidDirection):
		return KindInvalidDirection
	case errors.Is(err, ErrInvalidTier):
		return KindInvalidTier
	case errors.Is(err, ErrTokenNotFound):
		return KindTokenNotFound
	case errors.Is(err, ErrAlreadyGraduated):
		return KindAlreadyGraduated
	case errors.Is(err, ErrSellDisabled):
		return KindSellDisabled
	case errors.Is(err, ErrNotReady):
		return KindNotReady
	case errors.Is(err, ErrCollaboratorTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindCollaboratorTimeout
	case errors.Is(err, ErrCollaboratorFailure):
		return KindCollaboratorFailure
	default:
		return KindInternal
	}
}

// IsRetryable reports whether the failed operation can be safely retried.
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindCollaboratorTimeout || k == KindCollaboratorFailure
}
