package postgres

import (
	"context"
	"fmt"
	"time"

	"fairlaunch/internal/domain"
	"fairlaunch/internal/storage"
)

// AssessmentStore implements storage.AssessmentStore using PostgreSQL.
type AssessmentStore struct {
	pool *Pool
}

// NewAssessmentStore creates a new AssessmentStore.
func NewAssessmentStore(pool *Pool) *AssessmentStore {
	return &AssessmentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AssessmentStore = (*AssessmentStore)(nil)

// Insert appends an assessment and sets its ID.
func (s *AssessmentStore) Insert(ctx context.Context, a *domain.AssessmentRecord) error {
	if a == nil || a.UserID == "" || a.TokenID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO risk_assessments (
			user_id, token_id, direction, amount,
			score, allowed, reasons, executed, error_kind, assessed_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9, $10
		)
		RETURNING id
	`

	reasons := make([]string, len(a.Reasons))
	for i, r := range a.Reasons {
		reasons[i] = string(r)
	}

	err := s.pool.QueryRow(ctx, query,
		a.UserID, a.TokenID, string(a.Direction), a.Amount,
		a.Score, a.Allowed, reasons, a.Executed, string(a.ErrorKind), a.Timestamp,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert risk assessment: %w", err)
	}
	return nil
}

// GetByUserID retrieves a user's assessments at or after since, ordered by timestamp ASC.
func (s *AssessmentStore) GetByUserID(ctx context.Context, userID string, since time.Time) ([]*domain.AssessmentRecord, error) {
	query := `
		SELECT
			id, user_id, token_id, direction, amount,
			score, allowed, reasons, executed, error_kind, assessed_at
		FROM risk_assessments
		WHERE user_id = $1 AND assessed_at >= $2
		ORDER BY assessed_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("get risk assessments by user: %w", err)
	}
	defer rows.Close()

	var result []*domain.AssessmentRecord
	for rows.Next() {
		var a domain.AssessmentRecord
		var direction, errorKind string
		var reasons []string

		err := rows.Scan(
			&a.ID, &a.UserID, &a.TokenID, &direction, &a.Amount,
			&a.Score, &a.Allowed, &reasons, &a.Executed, &errorKind, &a.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan risk assessment row: %w", err)
		}

		a.Direction = domain.Direction(direction)
		a.ErrorKind = domain.ErrorKind(errorKind)
		a.Timestamp = a.Timestamp.UTC()
		for _, r := range reasons {
			a.Reasons = append(a.Reasons, domain.FactorTag(r))
		}
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate risk assessment rows: %w", err)
	}

	return result, nil
}

// CountRejected counts a user's rejected assessments at or after since.
func (s *AssessmentStore) CountRejected(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `
		SELECT count(*) FROM risk_assessments
		WHERE user_id = $1 AND NOT allowed AND assessed_at >= $2
	`

	var n int
	if err := s.pool.QueryRow(ctx, query, userID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rejected assessments: %w", err)
	}
	return n, nil
}
