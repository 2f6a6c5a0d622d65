package memory

import (
	"context"
	"sort"
	"sync"

	"fairlaunch/internal/domain"
	"fairlaunch/internal/storage"
)

// CurveStateStore is an in-memory implementation of storage.CurveStateStore.
type CurveStateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.BondingCurveState // keyed by token_id
}

// NewCurveStateStore creates a new in-memory curve state store.
func NewCurveStateStore() *CurveStateStore {
	return &CurveStateStore{
		data: make(map[string]*domain.BondingCurveState),
	}
}

// Save inserts or replaces the state of a token.
func (s *CurveStateStore) Save(_ context.Context, st *domain.BondingCurveState) error {
	if st == nil || st.TokenID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[st.TokenID] = st.Clone()
	return nil
}

// GetByTokenID retrieves a token's state. Returns ErrNotFound if not exists.
func (s *CurveStateStore) GetByTokenID(_ context.Context, tokenID string) (*domain.BondingCurveState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.data[tokenID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return st.Clone(), nil
}

// GetAll retrieves all states, ordered by token_id ASC.
func (s *CurveStateStore) GetAll(_ context.Context) ([]*domain.BondingCurveState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.BondingCurveState, 0, len(s.data))
	for _, st := range s.data {
		result = append(result, st.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TokenID < result[j].TokenID
	})

	return result, nil
}

// Delete removes a token's state. Returns ErrNotFound if not exists.
func (s *CurveStateStore) Delete(_ context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[tokenID]; !exists {
		return storage.ErrNotFound
	}
	delete(s.data, tokenID)
	return nil
}

var _ storage.CurveStateStore = (*CurveStateStore)(nil)
