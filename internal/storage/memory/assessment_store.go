package memory

import (
	"context"
	"sync"
	"time"

	"fairlaunch/internal/domain"
	"fairlaunch/internal/storage"
)

// AssessmentStore is an in-memory implementation of storage.AssessmentStore.
// Records are kept in insertion order; IDs are assigned sequentially from 1.
type AssessmentStore struct {
	mu     sync.RWMutex
	data   []*domain.AssessmentRecord
	nextID int64
}

// NewAssessmentStore creates a new in-memory assessment store.
func NewAssessmentStore() *AssessmentStore {
	return &AssessmentStore{nextID: 1}
}

// Insert appends an assessment and sets its ID.
func (s *AssessmentStore) Insert(_ context.Context, a *domain.AssessmentRecord) error {
	if a == nil || a.UserID == "" || a.TokenID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = s.nextID
	s.nextID++

	s.data = append(s.data, copyAssessment(a))
	return nil
}

// GetByUserID retrieves a user's assessments at or after since, ordered by timestamp ASC.
func (s *AssessmentStore) GetByUserID(_ context.Context, userID string, since time.Time) ([]*domain.AssessmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AssessmentRecord
	for _, a := range s.data {
		if a.UserID == userID && !a.Timestamp.Before(since) {
			result = append(result, copyAssessment(a))
		}
	}
	return result, nil
}

// CountRejected counts a user's rejected assessments at or after since.
func (s *AssessmentStore) CountRejected(_ context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.data {
		if a.UserID == userID && !a.Allowed && !a.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func copyAssessment(a *domain.AssessmentRecord) *domain.AssessmentRecord {
	c := *a
	c.Reasons = append([]domain.FactorTag(nil), a.Reasons...)
	return &c
}

var _ storage.AssessmentStore = (*AssessmentStore)(nil)
