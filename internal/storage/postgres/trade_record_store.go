package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fairlaunch/internal/domain"
	"fairlaunch/internal/storage"
)

// TradeRecordStore implements storage.TradeRecordStore using PostgreSQL.
type TradeRecordStore struct {
	pool *Pool
}

// NewTradeRecordStore creates a new TradeRecordStore.
func NewTradeRecordStore(pool *Pool) *TradeRecordStore {
	return &TradeRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)

const insertTradeRecordQuery = `
	INSERT INTO trade_records (
		trade_id, token_id, user_id, sequence, direction, tier,
		amount, tokens_or_proceeds, price_before, price_after,
		risk_score, executed_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10,
		$11, $12
	)
`

const selectTradeRecordColumns = `
	SELECT
		trade_id, token_id, user_id, sequence, direction, tier,
		amount, tokens_or_proceeds, price_before, price_after,
		risk_score, executed_at
	FROM trade_records
`

func tradeRecordArgs(t *domain.TradeRecord) []any {
	return []any{
		t.TradeID, t.TokenID, t.UserID, t.Sequence, string(t.Direction), string(t.Tier),
		t.Amount, t.TokensOrProceeds, t.PriceBefore, t.PriceAfter,
		t.RiskScore, t.Timestamp,
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id or (token_id, sequence) exists.
func (s *TradeRecordStore) Insert(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertTradeRecordQuery, tradeRecordArgs(t)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade record: %w", err)
	}
	return nil
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeRecordStore) InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range trades {
		if t == nil || t.TradeID == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, insertTradeRecordQuery, tradeRecordArgs(t)...)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert trade record in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeRecordStore) GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	row := s.pool.QueryRow(ctx, selectTradeRecordColumns+` WHERE trade_id = $1`, tradeID)
	t, err := scanTradeRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade record by id: %w", err)
	}
	return t, nil
}

// GetByTokenID retrieves all trades for a token, ordered by sequence ASC.
func (s *TradeRecordStore) GetByTokenID(ctx context.Context, tokenID string) ([]*domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx, selectTradeRecordColumns+`
		WHERE token_id = $1
		ORDER BY sequence ASC
	`, tokenID)
	if err != nil {
		return nil, fmt.Errorf("get trade records by token id: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

// GetByUserID retrieves all trades of a user, ordered by timestamp ASC.
func (s *TradeRecordStore) GetByUserID(ctx context.Context, userID string) ([]*domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx, selectTradeRecordColumns+`
		WHERE user_id = $1
		ORDER BY executed_at ASC, trade_id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("get trade records by user id: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

// TokenIDs returns every token with at least one trade, sorted.
func (s *TradeRecordStore) TokenIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT token_id FROM trade_records ORDER BY token_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("get traded token ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan token id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token id rows: %w", err)
	}
	return ids, nil
}

// scanTradeRecord scans a single row into a TradeRecord.
func scanTradeRecord(row pgx.Row) (*domain.TradeRecord, error) {
	var t domain.TradeRecord
	var direction, tier string

	err := row.Scan(
		&t.TradeID, &t.TokenID, &t.UserID, &t.Sequence, &direction, &tier,
		&t.Amount, &t.TokensOrProceeds, &t.PriceBefore, &t.PriceAfter,
		&t.RiskScore, &t.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	t.Direction = domain.Direction(direction)
	t.Tier = domain.VerificationTier(tier)
	t.Timestamp = t.Timestamp.UTC()
	return &t, nil
}

// scanTradeRecords scans multiple rows into a slice of TradeRecord.
func scanTradeRecords(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var trades []*domain.TradeRecord

	for rows.Next() {
		t, err := scanTradeRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade record row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade record rows: %w", err)
	}

	return trades, nil
}
