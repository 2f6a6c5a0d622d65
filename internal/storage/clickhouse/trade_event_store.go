package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fairlaunch/internal/domain"
	"fairlaunch/internal/storage"
)

// scale of the Decimal columns.
const scale = 18

// TradeEventStore implements storage.TradeEventStore using ClickHouse.
type TradeEventStore struct {
	conn *Conn
}

// NewTradeEventStore creates a new TradeEventStore.
func NewTradeEventStore(conn *Conn) *TradeEventStore {
	return &TradeEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeEventStore = (*TradeEventStore)(nil)

// InsertBulk adds multiple trade events. Fails entire batch on duplicate trade_id.
// MergeTree does not enforce uniqueness, so duplicates are checked before insert.
func (s *TradeEventStore) InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(trades))
	for _, t := range trades {
		if t == nil || t.TradeID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[t.TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[t.TradeID] = struct{}{}
	}

	for _, t := range trades {
		exists, err := s.exists(ctx, t.TokenID, t.TradeID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_events (
			trade_id, token_id, user_id, sequence, direction, tier,
			amount, tokens_or_proceeds, price_before, price_after,
			risk_score, executed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	// Decimal(38, 18) columns: curve prices can carry more places than that.
	for _, t := range trades {
		err = batch.Append(
			t.TradeID, t.TokenID, t.UserID, uint64(t.Sequence), string(t.Direction), string(t.Tier),
			t.Amount.Round(scale), t.TokensOrProceeds.Round(scale), t.PriceBefore.Round(scale), t.PriceAfter.Round(scale),
			uint8(t.RiskScore), t.Timestamp.UTC(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves events for a token within [start, end] (inclusive).
func (s *TradeEventStore) GetByTimeRange(ctx context.Context, tokenID string, start, end time.Time) ([]*domain.TradeRecord, error) {
	query := `
		SELECT
			trade_id, token_id, user_id, sequence, direction, tier,
			amount, tokens_or_proceeds, price_before, price_after,
			risk_score, executed_at
		FROM trade_events FINAL
		WHERE token_id = ? AND executed_at >= ? AND executed_at <= ?
		ORDER BY sequence ASC
	`

	rows, err := s.conn.Query(ctx, query, tokenID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanTradeEvents(rows)
}

// VolumeByInterval aggregates events for a token within [start, end] into interval buckets.
func (s *TradeEventStore) VolumeByInterval(ctx context.Context, tokenID string, interval time.Duration, start, end time.Time) ([]*domain.VolumeBucket, error) {
	seconds := int64(interval / time.Second)
	if seconds <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT
			toStartOfInterval(executed_at, toIntervalSecond(?)) AS bucket,
			sumIf(amount, direction = 'buy') AS buy_volume,
			sumIf(amount, direction = 'sell') AS sell_volume,
			count() AS trade_count,
			argMin(price_before, sequence) AS open_price,
			argMax(price_after, sequence) AS close_price
		FROM trade_events FINAL
		WHERE token_id = ? AND executed_at >= ? AND executed_at <= ?
		GROUP BY bucket
		ORDER BY bucket ASC
	`

	rows, err := s.conn.Query(ctx, query, seconds, tokenID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query volume by interval: %w", err)
	}
	defer rows.Close()

	var buckets []*domain.VolumeBucket
	for rows.Next() {
		var (
			b                     domain.VolumeBucket
			buyVol, sellVol       decimal.Decimal
			openPrice, closePrice decimal.Decimal
			count                 uint64
		)
		if err := rows.Scan(&b.BucketStart, &buyVol, &sellVol, &count, &openPrice, &closePrice); err != nil {
			return nil, fmt.Errorf("scan volume bucket row: %w", err)
		}
		b.TokenID = tokenID
		b.BucketStart = b.BucketStart.UTC()
		b.BuyVolume = buyVol
		b.SellVolume = sellVol
		b.TradeCount = int64(count)
		b.OpenPrice = openPrice
		b.ClosePrice = closePrice
		buckets = append(buckets, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate volume bucket rows: %w", err)
	}

	return buckets, nil
}

// exists checks if an event with the given trade_id exists.
func (s *TradeEventStore) exists(ctx context.Context, tokenID, tradeID string) (bool, error) {
	query := `
		SELECT count(*) FROM trade_events
		WHERE token_id = ? AND trade_id = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, tokenID, tradeID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanTradeEvents scans multiple rows.
func scanTradeEvents(rows chRows) ([]*domain.TradeRecord, error) {
	var events []*domain.TradeRecord

	for rows.Next() {
		var (
			t               domain.TradeRecord
			sequence        uint64
			direction, tier string
			riskScore       uint8
		)

		err := rows.Scan(
			&t.TradeID, &t.TokenID, &t.UserID, &sequence, &direction, &tier,
			&t.Amount, &t.TokensOrProceeds, &t.PriceBefore, &t.PriceAfter,
			&riskScore, &t.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade event row: %w", err)
		}

		t.Sequence = int64(sequence)
		t.Direction = domain.Direction(direction)
		t.Tier = domain.VerificationTier(tier)
		t.RiskScore = int(riskScore)
		t.Timestamp = t.Timestamp.UTC()
		events = append(events, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade event rows: %w", err)
	}

	return events, nil
}
