package storage

import (
	"context"
	"time"

	"fairlaunch/internal/domain"
)

// CurveStateStore provides access to curve_states storage.
// Unlike the append-only stores, a token's state row is overwritten after every trade.
type CurveStateStore interface {
	// Save inserts or replaces the state of a token.
	Save(ctx context.Context, s *domain.BondingCurveState) error

	// GetByTokenID retrieves a token's state. Returns ErrNotFound if not exists.
	GetByTokenID(ctx context.Context, tokenID string) (*domain.BondingCurveState, error)

	// GetAll retrieves all states, ordered by token_id ASC.
	GetAll(ctx context.Context) ([]*domain.BondingCurveState, error)

	// Delete removes a token's state. Returns ErrNotFound if not exists.
	Delete(ctx context.Context, tokenID string) error
}

// TradeRecordStore provides access to trade_records storage.
type TradeRecordStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error)

	// GetByTokenID retrieves all trades for a token, ordered by sequence ASC.
	GetByTokenID(ctx context.Context, tokenID string) ([]*domain.TradeRecord, error)

	// GetByUserID retrieves all trades of a user, ordered by timestamp ASC.
	GetByUserID(ctx context.Context, userID string) ([]*domain.TradeRecord, error)

	// TokenIDs returns every token with at least one trade, sorted.
	TokenIDs(ctx context.Context) ([]string, error)
}

// AssessmentStore provides access to risk_assessments storage.
type AssessmentStore interface {
	// Insert appends an assessment and sets its ID.
	Insert(ctx context.Context, a *domain.AssessmentRecord) error

	// GetByUserID retrieves a user's assessments at or after since, ordered by timestamp ASC.
	GetByUserID(ctx context.Context, userID string, since time.Time) ([]*domain.AssessmentRecord, error)

	// CountRejected counts a user's rejected assessments at or after since.
	CountRejected(ctx context.Context, userID string, since time.Time) (int, error)
}

// GraduationStore provides access to graduations storage.
type GraduationStore interface {
	// Insert adds a graduation. Returns ErrDuplicateKey if the token already graduated.
	Insert(ctx context.Context, g *domain.GraduationResult) error

	// GetByTokenID retrieves a token's graduation. Returns ErrNotFound if not exists.
	GetByTokenID(ctx context.Context, tokenID string) (*domain.GraduationResult, error)

	// GetAll retrieves all graduations, ordered by graduated_at ASC.
	GetAll(ctx context.Context) ([]*domain.GraduationResult, error)
}

// TradeEventStore provides access to the trade_events analytics table.
type TradeEventStore interface {
	// InsertBulk adds multiple trade events. Fails entire batch on duplicate trade_id.
	InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error

	// GetByTimeRange retrieves events for a token within [start, end] (inclusive),
	// ordered by sequence ASC.
	GetByTimeRange(ctx context.Context, tokenID string, start, end time.Time) ([]*domain.TradeRecord, error)

	// VolumeByInterval aggregates events for a token within [start, end] into
	// buckets of the given interval, ordered by bucket start ASC.
	VolumeByInterval(ctx context.Context, tokenID string, interval time.Duration, start, end time.Time) ([]*domain.VolumeBucket, error)
}
