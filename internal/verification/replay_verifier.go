package verification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"fairlaunch/internal/curve"
	"fairlaunch/internal/storage"
)

// ErrStateNotFound is returned when a token has trades but no stored curve state.
var ErrStateNotFound = errors.New("curve state not found")

// ReplayVerifier implements Verifier over the trade log and curve state stores.
type ReplayVerifier struct {
	tradeStore storage.TradeRecordStore
	stateStore storage.CurveStateStore
	cfg        curve.Config
	logger     *log.Logger
	verbose    bool
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	TradeStore storage.TradeRecordStore
	StateStore storage.CurveStateStore

	// CurveConfig must match the engine that wrote the log.
	CurveConfig curve.Config

	Logger  *log.Logger
	Verbose bool
}

var _ Verifier = (*ReplayVerifier)(nil)

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &ReplayVerifier{
		tradeStore: opts.TradeStore,
		stateStore: opts.StateStore,
		cfg:        opts.CurveConfig,
		logger:     logger,
		verbose:    opts.Verbose,
	}
}

// VerifyToken replays a token's stored trades from its stored params.
func (v *ReplayVerifier) VerifyToken(ctx context.Context, tokenID string) (*TokenResult, error) {
	// 1. Load stored state for params and creation time
	stored, err := v.stateStore.GetByTokenID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrStateNotFound, tokenID)
		}
		return nil, err
	}

	// 2. Load the trade log
	trades, err := v.tradeStore.GetByTokenID(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}

	res := &TokenResult{TokenID: tokenID, Trades: len(trades)}
	res.Divergences = append(res.Divergences, checkSequences(trades)...)

	// 3. Replay
	replayed, fills, err := curve.Replay(v.cfg, tokenID, stored.Params, stored.CreatedAt, curve.StepsFromRecords(trades))
	if err != nil {
		res.Divergences = append(res.Divergences, FieldDivergence{Field: "Replay", Expected: nil, Actual: err.Error()})
	}

	// 4. Compare every fill that replayed, then the final state
	for i, f := range fills {
		res.Divergences = append(res.Divergences, CompareTrade(trades[i], f)...)
	}
	if replayed != nil {
		res.Divergences = append(res.Divergences, CompareStates(stored, replayed)...)
	}

	res.Match = len(res.Divergences) == 0
	v.log("%s: %d trades, %d divergences", tokenID, res.Trades, len(res.Divergences))
	return res, nil
}

// VerifyAll verifies every token that has a stored state or a stored trade.
func (v *ReplayVerifier) VerifyAll(ctx context.Context) (*Report, error) {
	ids, err := v.tokenIDs(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		TotalTokens: len(ids),
		Results:     make([]TokenResult, 0, len(ids)),
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := v.VerifyToken(ctx, id)
		if err != nil {
			// Record error as divergence
			report.Results = append(report.Results, TokenResult{
				TokenID: id,
				Divergences: []FieldDivergence{
					{Field: "Error", Expected: nil, Actual: err.Error()},
				},
			})
			report.DivergentTokens++
			continue
		}

		report.TotalTrades += result.Trades
		report.Results = append(report.Results, *result)
		if result.Match {
			report.MatchedTokens++
		} else {
			report.DivergentTokens++
		}
	}

	return report, nil
}

func (v *ReplayVerifier) tokenIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})

	states, err := v.stateStore.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load curve states: %w", err)
	}
	for _, s := range states {
		seen[s.TokenID] = struct{}{}
	}

	traded, err := v.tradeStore.TokenIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load traded tokens: %w", err)
	}
	for _, id := range traded {
		seen[id] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (v *ReplayVerifier) log(format string, args ...interface{}) {
	if v.verbose {
		v.logger.Printf("[verification] "+format, args...)
	}
}
