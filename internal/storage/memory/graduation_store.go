package memory

import (
	"context"
	"sort"
	"sync"

	"fairlaunch/internal/domain"
	"fairlaunch/internal/storage"
)

// GraduationStore is an in-memory implementation of storage.GraduationStore.
type GraduationStore struct {
	mu   sync.RWMutex
	data map[string]*domain.GraduationResult // keyed by token_id
}

// NewGraduationStore creates a new in-memory graduation store.
func NewGraduationStore() *GraduationStore {
	return &GraduationStore{
		data: make(map[string]*domain.GraduationResult),
	}
}

// Insert adds a graduation. Returns ErrDuplicateKey if the token already graduated.
func (s *GraduationStore) Insert(_ context.Context, g *domain.GraduationResult) error {
	if g == nil || g.TokenID == "" || g.GraduationID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[g.TokenID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *g
	s.data[g.TokenID] = &copy
	return nil
}

// GetByTokenID retrieves a token's graduation. Returns ErrNotFound if not exists.
func (s *GraduationStore) GetByTokenID(_ context.Context, tokenID string) (*domain.GraduationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, exists := s.data[tokenID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *g
	return &copy, nil
}

// GetAll retrieves all graduations, ordered by graduated_at ASC.
func (s *GraduationStore) GetAll(_ context.Context) ([]*domain.GraduationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.GraduationResult, 0, len(s.data))
	for _, g := range s.data {
		copy := *g
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].GraduatedAt.Equal(result[j].GraduatedAt) {
			return result[i].GraduatedAt.Before(result[j].GraduatedAt)
		}
		return result[i].TokenID < result[j].TokenID
	})

	return result, nil
}

var _ storage.GraduationStore = (*GraduationStore)(nil)
