// Package curve owns every token's bonding-curve state and prices trades
// against it. Each token has its own lock; different tokens never contend.
package curve

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fairlaunch/internal/domain"
)

// Config holds engine-wide trading rules.
type Config struct {
	// AllowSells enables selling tokens back into the curve before graduation.
	// Off by default: the curve only accumulates until it graduates.
	AllowSells bool `yaml:"allow_sells"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{}
}

// Snapshotter persists curve state. storage.CurveStateStore satisfies it.
type Snapshotter interface {
	Save(ctx context.Context, s *domain.BondingCurveState) error
	Delete(ctx context.Context, tokenID string) error
}

// Options for creating an Engine.
type Options struct {
	Config Config

	// Snapshotter is optional. Snapshot failures are logged; in-memory state stays authoritative.
	Snapshotter Snapshotter

	Logger  *log.Logger
	Verbose bool
}

// handle guards one token's state.
type handle struct {
	mu    sync.Mutex
	state *domain.BondingCurveState
}

// Engine is the registry of per-token curve states.
type Engine struct {
	mu     sync.RWMutex
	tokens map[string]*handle

	cfg     Config
	snap    Snapshotter
	logger  *log.Logger
	verbose bool
}

// New creates an empty Engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		tokens:  make(map[string]*handle),
		cfg:     opts.Config,
		snap:    opts.Snapshotter,
		logger:  logger,
		verbose: opts.Verbose,
	}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Register creates the initial state of a new token.
func (e *Engine) Register(ctx context.Context, tokenID string, params domain.CurveParams, createdAt time.Time) (*domain.BondingCurveState, error) {
	if tokenID == "" {
		return nil, fmt.Errorf("%w: empty token id", domain.ErrInvalidParams)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	st := domain.NewBondingCurveState(tokenID, params, createdAt)
	if err := e.add(st); err != nil {
		return nil, err
	}

	e.snapshot(ctx, st)
	e.log("registered %s: initial=%s increment=%s max=%s", tokenID, params.InitialPrice, params.PriceIncrement, params.MaxPrice)
	return st.Clone(), nil
}

// Restore loads a previously persisted state, e.g. on startup.
func (e *Engine) Restore(st *domain.BondingCurveState) error {
	if st == nil || st.TokenID == "" {
		return fmt.Errorf("%w: empty state", domain.ErrInvalidParams)
	}
	if err := st.Params.Validate(); err != nil {
		return err
	}
	if err := st.CheckInvariants(); err != nil {
		return fmt.Errorf("restore %s: %w", st.TokenID, err)
	}
	return e.add(st.Clone())
}

func (e *Engine) add(st *domain.BondingCurveState) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tokens[st.TokenID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrTokenExists, st.TokenID)
	}
	e.tokens[st.TokenID] = &handle{state: st}
	return nil
}

// Retire removes a token. Later operations on it return ErrTokenNotFound.
func (e *Engine) Retire(ctx context.Context, tokenID string) error {
	e.mu.Lock()
	_, exists := e.tokens[tokenID]
	delete(e.tokens, tokenID)
	e.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrTokenNotFound, tokenID)
	}

	if e.snap != nil {
		if err := e.snap.Delete(ctx, tokenID); err != nil {
			e.logger.Printf("[curve] delete snapshot %s: %v", tokenID, err)
		}
	}
	e.log("retired %s", tokenID)
	return nil
}

// State returns a copy of a token's current state.
func (e *Engine) State(tokenID string) (*domain.BondingCurveState, error) {
	h, err := e.handle(tokenID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Clone(), nil
}

// Tokens returns the registered token ids, sorted.
func (e *Engine) Tokens() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.tokens))
	for id := range e.tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Quote simulates a trade without mutating state.
func (e *Engine) Quote(tokenID string, dir domain.Direction, amount decimal.Decimal) (domain.Quote, error) {
	if err := e.checkTrade(dir, amount); err != nil {
		return domain.Quote{}, err
	}

	h, err := e.handle(tokenID)
	if err != nil {
		return domain.Quote{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state.Graduated {
		return domain.Quote{}, fmt.Errorf("%w: %s", domain.ErrAlreadyGraduated, tokenID)
	}

	s, err := price(h.state, dir, amount)
	if err != nil {
		return domain.Quote{}, err
	}

	return domain.Quote{
		TokenID:          tokenID,
		Direction:        dir,
		Amount:           amount,
		TokensOrProceeds: s.tokensOrProceeds,
		CurrentPrice:     h.state.CurrentPrice,
		NewPrice:         s.nextPrice,
		PriceImpact:      impact(h.state.CurrentPrice, s.nextPrice),
	}, nil
}

// Apply executes a trade atomically against the token's state.
func (e *Engine) Apply(ctx context.Context, tokenID string, dir domain.Direction, amount decimal.Decimal, at time.Time) (domain.Fill, error) {
	if err := e.checkTrade(dir, amount); err != nil {
		return domain.Fill{}, err
	}

	h, err := e.handle(tokenID)
	if err != nil {
		return domain.Fill{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.state
	if st.Graduated {
		return domain.Fill{}, fmt.Errorf("%w: %s", domain.ErrAlreadyGraduated, tokenID)
	}

	s, err := price(st, dir, amount)
	if err != nil {
		return domain.Fill{}, err
	}

	before := st.CurrentPrice
	st.CurrentPrice = s.nextPrice
	st.TotalSupply = s.nextSupply
	st.TotalRaised = s.nextRaised
	st.TradeCount++
	if at.After(st.LastTradeTime) {
		st.LastTradeTime = at
	}

	e.snapshot(ctx, st)
	e.log("%s %s %s: price %s -> %s, supply %s, raised %s", tokenID, dir, amount, before, st.CurrentPrice, st.TotalSupply, st.TotalRaised)

	return domain.Fill{
		TokenID:          tokenID,
		Direction:        dir,
		Amount:           amount,
		TokensOrProceeds: s.tokensOrProceeds,
		PriceBefore:      before,
		NewPrice:         st.CurrentPrice,
		Sequence:         st.TradeCount,
		Timestamp:        at,
	}, nil
}

// MarkGraduated sets the terminal graduated flag. Marking twice is a no-op.
func (e *Engine) MarkGraduated(ctx context.Context, tokenID string) error {
	h, err := e.handle(tokenID)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state.Graduated {
		return nil
	}
	h.state.Graduated = true
	e.snapshot(ctx, h.state)
	e.log("%s graduated at raised=%s supply=%s", tokenID, h.state.TotalRaised, h.state.TotalSupply)
	return nil
}

func (e *Engine) checkTrade(dir domain.Direction, amount decimal.Decimal) error {
	if !dir.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidDirection, dir)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", domain.ErrInvalidAmount, amount)
	}
	if dir == domain.DirectionSell && !e.cfg.AllowSells {
		return domain.ErrSellDisabled
	}
	return nil
}

func (e *Engine) handle(tokenID string) (*handle, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	h, ok := e.tokens[tokenID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTokenNotFound, tokenID)
	}
	return h, nil
}

// snapshot must be called with the handle lock held so snapshots land in order.
func (e *Engine) snapshot(ctx context.Context, st *domain.BondingCurveState) {
	if e.snap == nil {
		return
	}
	if err := e.snap.Save(ctx, st.Clone()); err != nil {
		e.logger.Printf("[curve] snapshot %s: %v", st.TokenID, err)
	}
}

func (e *Engine) log(format string, args ...interface{}) {
	if e.verbose {
		e.logger.Printf("[curve] "+format, args...)
	}
}
