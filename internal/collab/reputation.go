package collab

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fairlaunch/internal/domain"
	"fairlaunch/internal/storage"
)

// ReputationOptions configures a MemoryReputation.
type ReputationOptions struct {
	// DefaultScore is returned for users without an explicit score.
	DefaultScore int

	// Assessments, when set, backs RecentSuspiciousCount with the count of
	// rejected assessments inside SuspiciousWindow.
	Assessments      storage.AssessmentStore
	SuspiciousWindow time.Duration

	Now func() time.Time
}

// MemoryReputation is a ReputationStore with in-memory scores. Suspicious
// activity comes from the assessment audit log when one is configured,
// otherwise from flags reported through Flag.
type MemoryReputation struct {
	mu     sync.RWMutex
	scores map[string]int
	flags  map[string][]time.Time

	defaultScore int
	assessments  storage.AssessmentStore
	window       time.Duration
	now          func() time.Time
}

var _ ReputationStore = (*MemoryReputation)(nil)

// NewMemoryReputation creates a reputation store.
func NewMemoryReputation(opts ReputationOptions) *MemoryReputation {
	window := opts.SuspiciousWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &MemoryReputation{
		scores:       make(map[string]int),
		flags:        make(map[string][]time.Time),
		defaultScore: opts.DefaultScore,
		assessments:  opts.Assessments,
		window:       window,
		now:          now,
	}
}

// SetScore assigns a reputation score to a user.
func (r *MemoryReputation) SetScore(userID string, score int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores[userID] = score
}

// Flag records one suspicious event for a user.
func (r *MemoryReputation) Flag(userID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags[userID] = append(r.flags[userID], at)
}

// Score implements ReputationStore.
func (r *MemoryReputation) Score(_ context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.scores[userID]; ok {
		return s, nil
	}
	return r.defaultScore, nil
}

// RecentSuspiciousCount implements ReputationStore.
func (r *MemoryReputation) RecentSuspiciousCount(ctx context.Context, userID string) (int, error) {
	since := r.now().Add(-r.window)

	if r.assessments != nil {
		n, err := r.assessments.CountRejected(ctx, userID, since)
		if err != nil {
			return 0, fmt.Errorf("%w: count rejected assessments: %v", domain.ErrCollaboratorFailure, err)
		}
		return n, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, at := range r.flags[userID] {
		if !at.Before(since) {
			n++
		}
	}
	return n, nil
}
