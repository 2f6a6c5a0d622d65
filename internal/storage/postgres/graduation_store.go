package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fairlaunch/internal/domain"
	"fairlaunch/internal/storage"
)

// GraduationStore implements storage.GraduationStore using PostgreSQL.
type GraduationStore struct {
	pool *Pool
}

// NewGraduationStore creates a new GraduationStore.
func NewGraduationStore(pool *Pool) *GraduationStore {
	return &GraduationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.GraduationStore = (*GraduationStore)(nil)

const selectGraduationColumns = `
	SELECT
		graduation_id, token_id, pool_ref, quote_amount, token_amount,
		total_raised, total_supply, graduated_at
	FROM graduations
`

// Insert adds a graduation. Returns ErrDuplicateKey if the token already graduated.
func (s *GraduationStore) Insert(ctx context.Context, g *domain.GraduationResult) error {
	if g == nil || g.TokenID == "" || g.GraduationID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO graduations (
			graduation_id, token_id, pool_ref, quote_amount, token_amount,
			total_raised, total_supply, graduated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		g.GraduationID, g.TokenID, g.PoolRef, g.QuoteAmount, g.TokenAmount,
		g.TotalRaised, g.TotalSupply, g.GraduatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert graduation: %w", err)
	}
	return nil
}

// GetByTokenID retrieves a token's graduation. Returns ErrNotFound if not exists.
func (s *GraduationStore) GetByTokenID(ctx context.Context, tokenID string) (*domain.GraduationResult, error) {
	row := s.pool.QueryRow(ctx, selectGraduationColumns+` WHERE token_id = $1`, tokenID)
	g, err := scanGraduation(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get graduation: %w", err)
	}
	return g, nil
}

// GetAll retrieves all graduations, ordered by graduated_at ASC.
func (s *GraduationStore) GetAll(ctx context.Context) ([]*domain.GraduationResult, error) {
	rows, err := s.pool.Query(ctx, selectGraduationColumns+` ORDER BY graduated_at ASC, token_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("get all graduations: %w", err)
	}
	defer rows.Close()

	var result []*domain.GraduationResult
	for rows.Next() {
		g, err := scanGraduation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan graduation row: %w", err)
		}
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate graduation rows: %w", err)
	}
	return result, nil
}

func scanGraduation(row pgx.Row) (*domain.GraduationResult, error) {
	var g domain.GraduationResult
	err := row.Scan(
		&g.GraduationID, &g.TokenID, &g.PoolRef, &g.QuoteAmount, &g.TokenAmount,
		&g.TotalRaised, &g.TotalSupply, &g.GraduatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.GraduatedAt = g.GraduatedAt.UTC()
	return &g, nil
}
