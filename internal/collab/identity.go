package collab

import (
	"context"
	"fmt"
	"sync"

	"fairlaunch/internal/domain"
)

// StaticIdentity is an IdentityProvider backed by a fixed table.
// Unknown users get the fallback tier.
type StaticIdentity struct {
	mu       sync.RWMutex
	tiers    map[string]domain.VerificationTier
	fallback domain.VerificationTier
}

var _ IdentityProvider = (*StaticIdentity)(nil)

// NewStaticIdentity creates a provider. An invalid fallback defaults to the device tier.
func NewStaticIdentity(fallback domain.VerificationTier) *StaticIdentity {
	if !fallback.IsValid() {
		fallback = domain.TierDevice
	}
	return &StaticIdentity{
		tiers:    make(map[string]domain.VerificationTier),
		fallback: fallback,
	}
}

// Set assigns a tier to a user.
func (s *StaticIdentity) Set(userID string, tier domain.VerificationTier) error {
	if !tier.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidTier, tier)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[userID] = tier
	return nil
}

// VerificationTier implements IdentityProvider.
func (s *StaticIdentity) VerificationTier(_ context.Context, userID string) (domain.VerificationTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tiers[userID]; ok {
		return t, nil
	}
	return s.fallback, nil
}
