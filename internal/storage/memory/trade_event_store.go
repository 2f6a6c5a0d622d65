package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fairlaunch/internal/domain"
	"fairlaunch/internal/storage"
)

// TradeEventStore is an in-memory implementation of storage.TradeEventStore.
type TradeEventStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.TradeRecord // keyed by token_id, ordered by sequence
	ids  map[string]struct{}
}

// NewTradeEventStore creates a new in-memory trade event store.
func NewTradeEventStore() *TradeEventStore {
	return &TradeEventStore{
		data: make(map[string][]*domain.TradeRecord),
		ids:  make(map[string]struct{}),
	}
}

// InsertBulk adds multiple trade events. Fails entire batch on duplicate trade_id.
func (s *TradeEventStore) InsertBulk(_ context.Context, trades []*domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(trades))
	for _, t := range trades {
		if t == nil || t.TradeID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.ids[t.TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[t.TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[t.TradeID] = struct{}{}
	}

	touched := make(map[string]struct{})
	for _, t := range trades {
		copy := *t
		s.data[t.TokenID] = append(s.data[t.TokenID], &copy)
		s.ids[t.TradeID] = struct{}{}
		touched[t.TokenID] = struct{}{}
	}
	for tokenID := range touched {
		events := s.data[tokenID]
		sort.Slice(events, func(i, j int) bool { return events[i].Sequence < events[j].Sequence })
	}

	return nil
}

// GetByTimeRange retrieves events for a token within [start, end] (inclusive).
func (s *TradeEventStore) GetByTimeRange(_ context.Context, tokenID string, start, end time.Time) ([]*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeRecord
	for _, t := range s.data[tokenID] {
		if t.Timestamp.Before(start) || t.Timestamp.After(end) {
			continue
		}
		copy := *t
		result = append(result, &copy)
	}
	return result, nil
}

// VolumeByInterval aggregates events for a token within [start, end] into interval buckets.
func (s *TradeEventStore) VolumeByInterval(ctx context.Context, tokenID string, interval time.Duration, start, end time.Time) ([]*domain.VolumeBucket, error) {
	if interval <= 0 {
		return nil, storage.ErrInvalidInput
	}

	events, err := s.GetByTimeRange(ctx, tokenID, start, end)
	if err != nil {
		return nil, err
	}

	var result []*domain.VolumeBucket
	var cur *domain.VolumeBucket
	for _, t := range events {
		bucketStart := t.Timestamp.UTC().Truncate(interval)
		if cur == nil || !cur.BucketStart.Equal(bucketStart) {
			cur = &domain.VolumeBucket{
				TokenID:     tokenID,
				BucketStart: bucketStart,
				BuyVolume:   decimal.Zero,
				SellVolume:  decimal.Zero,
				OpenPrice:   t.PriceBefore,
			}
			result = append(result, cur)
		}
		if t.Direction == domain.DirectionBuy {
			cur.BuyVolume = cur.BuyVolume.Add(t.Amount)
		} else {
			cur.SellVolume = cur.SellVolume.Add(t.Amount)
		}
		cur.TradeCount++
		cur.ClosePrice = t.PriceAfter
	}

	return result, nil
}

var _ storage.TradeEventStore = (*TradeEventStore)(nil)
