package curve

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fairlaunch/internal/domain"
)

// Step is one trade of a replayed sequence.
type Step struct {
	Direction domain.Direction
	Amount    decimal.Decimal
	At        time.Time
}

// StepsFromRecords converts persisted trades, already ordered by sequence, to replay steps.
func StepsFromRecords(records []*domain.TradeRecord) []Step {
	steps := make([]Step, len(records))
	for i, r := range records {
		steps[i] = Step{Direction: r.Direction, Amount: r.Amount, At: r.Timestamp}
	}
	return steps
}

// Replay applies steps in order to a fresh state and returns the final state
// and every fill. The same params and steps always produce the same result.
func Replay(cfg Config, tokenID string, params domain.CurveParams, createdAt time.Time, steps []Step) (*domain.BondingCurveState, []domain.Fill, error) {
	e := New(Options{Config: cfg})

	ctx := context.Background()
	if _, err := e.Register(ctx, tokenID, params, createdAt); err != nil {
		return nil, nil, err
	}

	fills := make([]domain.Fill, 0, len(steps))
	for i, s := range steps {
		f, err := e.Apply(ctx, tokenID, s.Direction, s.Amount, s.At)
		if err != nil {
			return nil, fills, fmt.Errorf("replay step %d: %w", i+1, err)
		}
		fills = append(fills, f)
	}

	st, err := e.State(tokenID)
	if err != nil {
		return nil, fills, err
	}
	return st, fills, nil
}
