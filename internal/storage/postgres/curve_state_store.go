package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"fairlaunch/internal/domain"
	"fairlaunch/internal/storage"
)

// CurveStateStore implements storage.CurveStateStore using PostgreSQL.
type CurveStateStore struct {
	pool *Pool
}

// NewCurveStateStore creates a new CurveStateStore.
func NewCurveStateStore(pool *Pool) *CurveStateStore {
	return &CurveStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CurveStateStore = (*CurveStateStore)(nil)

const selectCurveStateColumns = `
	SELECT
		token_id, initial_price, price_increment, max_price,
		current_price, total_supply, total_raised, graduated,
		last_trade_time, trade_count, created_at
	FROM curve_states
`

// Save inserts or replaces the state of a token.
func (s *CurveStateStore) Save(ctx context.Context, st *domain.BondingCurveState) error {
	if st == nil || st.TokenID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO curve_states (
			token_id, initial_price, price_increment, max_price,
			current_price, total_supply, total_raised, graduated,
			last_trade_time, trade_count, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, now()
		)
		ON CONFLICT (token_id) DO UPDATE SET
			current_price = EXCLUDED.current_price,
			total_supply = EXCLUDED.total_supply,
			total_raised = EXCLUDED.total_raised,
			graduated = EXCLUDED.graduated,
			last_trade_time = EXCLUDED.last_trade_time,
			trade_count = EXCLUDED.trade_count,
			updated_at = now()
	`

	var lastTrade *time.Time
	if !st.LastTradeTime.IsZero() {
		lastTrade = &st.LastTradeTime
	}

	_, err := s.pool.Exec(ctx, query,
		st.TokenID, st.Params.InitialPrice, st.Params.PriceIncrement, st.Params.MaxPrice,
		st.CurrentPrice, st.TotalSupply, st.TotalRaised, st.Graduated,
		lastTrade, st.TradeCount, st.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save curve state: %w", err)
	}
	return nil
}

// GetByTokenID retrieves a token's state. Returns ErrNotFound if not exists.
func (s *CurveStateStore) GetByTokenID(ctx context.Context, tokenID string) (*domain.BondingCurveState, error) {
	row := s.pool.QueryRow(ctx, selectCurveStateColumns+` WHERE token_id = $1`, tokenID)
	st, err := scanCurveState(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get curve state: %w", err)
	}
	return st, nil
}

// GetAll retrieves all states, ordered by token_id ASC.
func (s *CurveStateStore) GetAll(ctx context.Context) ([]*domain.BondingCurveState, error) {
	rows, err := s.pool.Query(ctx, selectCurveStateColumns+` ORDER BY token_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("get all curve states: %w", err)
	}
	defer rows.Close()

	var states []*domain.BondingCurveState
	for rows.Next() {
		st, err := scanCurveState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan curve state row: %w", err)
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate curve state rows: %w", err)
	}
	return states, nil
}

// Delete removes a token's state. Returns ErrNotFound if not exists.
func (s *CurveStateStore) Delete(ctx context.Context, tokenID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM curve_states WHERE token_id = $1`, tokenID)
	if err != nil {
		return fmt.Errorf("delete curve state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanCurveState(row pgx.Row) (*domain.BondingCurveState, error) {
	var st domain.BondingCurveState
	var lastTrade *time.Time

	err := row.Scan(
		&st.TokenID, &st.Params.InitialPrice, &st.Params.PriceIncrement, &st.Params.MaxPrice,
		&st.CurrentPrice, &st.TotalSupply, &st.TotalRaised, &st.Graduated,
		&lastTrade, &st.TradeCount, &st.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastTrade != nil {
		st.LastTradeTime = lastTrade.UTC()
	}
	st.CreatedAt = st.CreatedAt.UTC()
	return &st, nil
}
