// Package graduation tracks each token's progress toward its raise threshold
// and moves it, exactly once, from the bonding curve to an external pool.
//
// Phases: ACCUMULATING -> READY -> GRADUATED. READY is reached by Evaluate
// once TotalRaised meets the threshold; GRADUATED only by a successful
// TriggerGraduation. A failed trigger leaves the token READY.
package graduation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"fairlaunch/internal/collab"
	"fairlaunch/internal/domain"
	"fairlaunch/internal/idhash"
	"fairlaunch/internal/keylock"
	"fairlaunch/internal/liquidity"
	"fairlaunch/internal/notify"
	"fairlaunch/internal/observability"
	"fairlaunch/internal/retry"
	"fairlaunch/internal/session"
	"fairlaunch/internal/storage"
)

var (
	hundred = decimal.NewFromInt(100)
	sixty   = decimal.NewFromInt(60)

	// maxETASeconds keeps projections inside time.Duration.
	maxETASeconds = decimal.NewFromInt(int64((100 * 365 * 24 * time.Hour) / time.Second))
)

// Curves is the part of the curve engine the monitor reads and marks.
type Curves interface {
	State(tokenID string) (*domain.BondingCurveState, error)
	MarkGraduated(ctx context.Context, tokenID string) error
}

// Activity supplies per-token trade windows. *session.Registry satisfies it.
type Activity interface {
	Get(key string) *session.Session
}

// Options for creating a Monitor.
type Options struct {
	Config Config

	Curves    Curves                 // required
	Liquidity liquidity.Collaborator // required

	Activity Activity                // optional, enables ETA projections
	Store    storage.GraduationStore // optional
	Notifier notify.Notifier         // optional

	// Locks, when set, is held by watchers around their own triggers. Callers of
	// TriggerGraduation that also trade the token should hold the same lock.
	Locks *keylock.Map

	Now     func() time.Time
	Logger  *log.Logger
	Verbose bool
}

type tokenState struct {
	phase  domain.GraduationPhase
	result *domain.GraduationResult
}

type watcher struct {
	cancel context.CancelFunc
}

// Monitor is the graduation state machine of every token.
type Monitor struct {
	mu     sync.Mutex
	tokens map[string]*tokenState
	group  singleflight.Group

	watchMu  sync.Mutex
	watchers map[string]*watcher
	wg       sync.WaitGroup
	stopped  bool

	cfg       Config
	curves    Curves
	liquidity liquidity.Collaborator
	activity  Activity
	store     storage.GraduationStore
	notifier  notify.Notifier
	locks     *keylock.Map
	now       func() time.Time
	logger    *log.Logger
	verbose   bool
}

// New creates a Monitor.
func New(opts Options) (*Monitor, error) {
	if opts.Curves == nil {
		return nil, errors.New("graduation: curves required")
	}
	if opts.Liquidity == nil {
		return nil, errors.New("graduation: liquidity collaborator required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("graduation: %w", err)
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Monitor{
		tokens:    make(map[string]*tokenState),
		watchers:  make(map[string]*watcher),
		cfg:       opts.Config,
		curves:    opts.Curves,
		liquidity: opts.Liquidity,
		activity:  opts.Activity,
		store:     opts.Store,
		notifier:  notifier,
		locks:     opts.Locks,
		now:       now,
		logger:    logger,
		verbose:   opts.Verbose,
	}, nil
}

// Config returns the monitor configuration.
func (m *Monitor) Config() Config {
	return m.cfg
}

// Evaluate re-reads the token's curve state and advances ACCUMULATING to READY
// when the threshold is met. graduation-ready is emitted on that transition only.
func (m *Monitor) Evaluate(ctx context.Context, tokenID string) (domain.GraduationPhase, error) {
	st, err := m.curves.State(tokenID)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	ts := m.stateLocked(tokenID)
	prev := ts.phase
	switch {
	case st.Graduated:
		ts.phase = domain.PhaseGraduated
	case CanTransition(ts.phase, domain.PhaseReady) && st.TotalRaised.GreaterThanOrEqual(m.cfg.Threshold):
		ts.phase = domain.PhaseReady
	}
	phase := ts.phase
	m.mu.Unlock()

	if prev == domain.PhaseAccumulating && phase == domain.PhaseReady {
		observability.RecordGraduationReady()
		m.logger.Printf("[graduation] %s ready: raised %s >= threshold %s", tokenID, st.TotalRaised, m.cfg.Threshold)
		m.notifier.Notify(ctx, notify.NewEvent(domain.EventGraduationReady, tokenID, "", m.now(), map[string]string{
			"total_raised": st.TotalRaised.String(),
			"threshold":    m.cfg.Threshold.String(),
		}))
	}
	return phase, nil
}

// TriggerGraduation creates the token's liquidity pool and marks it graduated.
// Concurrent calls for one token share a single attempt; calls on a graduated
// token return the original result without contacting the collaborator.
func (m *Monitor) TriggerGraduation(ctx context.Context, tokenID string) (*domain.GraduationResult, error) {
	v, err, _ := m.group.Do(tokenID, func() (interface{}, error) {
		return m.trigger(ctx, tokenID)
	})
	if err != nil {
		return nil, err
	}
	return copyResult(v.(*domain.GraduationResult)), nil
}

func (m *Monitor) trigger(ctx context.Context, tokenID string) (*domain.GraduationResult, error) {
	if res := m.cachedResult(tokenID); res != nil {
		return res, nil
	}
	if res, err := m.adoptStored(ctx, tokenID); err != nil || res != nil {
		return res, err
	}

	phase, err := m.Evaluate(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(phase, domain.PhaseGraduated) {
		if phase == domain.PhaseGraduated {
			return nil, fmt.Errorf("%w: %s has no graduation record", domain.ErrAlreadyGraduated, tokenID)
		}
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrNotReady, tokenID, phase)
	}

	st, err := m.curves.State(tokenID)
	if err != nil {
		return nil, err
	}
	quoteAmount := st.TotalRaised.Mul(m.cfg.QuoteSplitPct).Truncate(18)
	tokenAmount := st.TotalSupply.Mul(m.cfg.TokenSplitPct).Truncate(18)

	m.log("%s: creating pool with quote=%s tokens=%s", tokenID, quoteAmount, tokenAmount)
	poolRef, err := m.createPool(ctx, tokenID, quoteAmount, tokenAmount)
	if err != nil {
		observability.RecordGraduation("failure")
		m.logger.Printf("[graduation] %s: pool creation failed, staying %s: %v", tokenID, domain.PhaseReady, err)
		return nil, err
	}

	if err := m.curves.MarkGraduated(ctx, tokenID); err != nil {
		observability.RecordGraduation("failure")
		return nil, fmt.Errorf("mark %s graduated: %w", tokenID, err)
	}

	res := &domain.GraduationResult{
		GraduationID: idhash.ComputeGraduationID(tokenID, st.TotalRaised, st.TotalSupply),
		TokenID:      tokenID,
		PoolRef:      poolRef,
		QuoteAmount:  quoteAmount,
		TokenAmount:  tokenAmount,
		TotalRaised:  st.TotalRaised,
		TotalSupply:  st.TotalSupply,
		GraduatedAt:  m.now().UTC(),
	}
	res = m.persist(ctx, res)

	m.mu.Lock()
	ts := m.stateLocked(tokenID)
	ts.phase = domain.PhaseGraduated
	ts.result = copyResult(res)
	m.mu.Unlock()

	m.stopWatcher(tokenID)
	observability.RecordGraduation("success")
	m.logger.Printf("[graduation] %s graduated: pool=%s quote=%s tokens=%s", tokenID, poolRef, quoteAmount, tokenAmount)
	m.notifier.Notify(ctx, notify.NewEvent(domain.EventGraduationCompleted, tokenID, "", res.GraduatedAt, res))

	return res, nil
}

// createPool calls the collaborator under CallTimeout, retrying retryable failures.
func (m *Monitor) createPool(ctx context.Context, tokenID string, quoteAmount, tokenAmount decimal.Decimal) (string, error) {
	cfg := m.cfg.Retry
	cfg.RetryIf = domain.IsRetryable
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		m.log("%s: pool attempt %d failed: %v, retrying in %v", tokenID, attempt, err, delay)
	}

	return retry.DoWithResult(ctx, cfg, func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
		defer cancel()

		start := time.Now()
		ref, err := m.liquidity.CreatePoolAndLock(callCtx, tokenID, quoteAmount, tokenAmount)
		observability.RecordCollaboratorCall("liquidity", time.Since(start).Seconds(), err)
		if err != nil {
			return "", collab.Classify(callCtx, err)
		}
		if ref == "" {
			return "", fmt.Errorf("%w: empty pool reference", domain.ErrCollaboratorFailure)
		}
		return ref, nil
	})
}

// persist stores the result. If another instance already recorded the token,
// the stored result wins. Other store errors are logged; the in-memory result stays.
func (m *Monitor) persist(ctx context.Context, res *domain.GraduationResult) *domain.GraduationResult {
	if m.store == nil {
		return res
	}
	err := m.store.Insert(ctx, res)
	if err == nil {
		return res
	}
	if errors.Is(err, storage.ErrDuplicateKey) {
		if existing, gerr := m.store.GetByTokenID(ctx, res.TokenID); gerr == nil {
			return existing
		}
	}
	m.logger.Printf("[graduation] persist %s: %v", res.TokenID, err)
	return res
}

// adoptStored returns a previously persisted result, marking the engine graduated.
func (m *Monitor) adoptStored(ctx context.Context, tokenID string) (*domain.GraduationResult, error) {
	if m.store == nil {
		return nil, nil
	}
	res, err := m.store.GetByTokenID(ctx, tokenID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load graduation of %s: %w", tokenID, err)
	}

	if err := m.curves.MarkGraduated(ctx, tokenID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	ts := m.stateLocked(tokenID)
	ts.phase = domain.PhaseGraduated
	ts.result = copyResult(res)
	m.mu.Unlock()

	m.log("%s: adopted stored graduation %s", tokenID, res.GraduationID)
	return res, nil
}

// Status derives the token's graduation status from its current curve state.
func (m *Monitor) Status(tokenID string) (domain.GraduationStatus, error) {
	st, err := m.curves.State(tokenID)
	if err != nil {
		return domain.GraduationStatus{}, err
	}

	phase := m.derivePhase(tokenID, st)

	// Truncated, so 100 is only reported once the threshold is actually met.
	progress, _ := st.TotalRaised.Mul(hundred).QuoRem(m.cfg.Threshold, 2)
	if progress.GreaterThan(hundred) {
		progress = hundred
	}

	status := domain.GraduationStatus{
		TokenID:            tokenID,
		Phase:              phase,
		ProgressPercentage: progress,
		IsGraduated:        phase == domain.PhaseGraduated,
		TotalRaised:        st.TotalRaised,
		Threshold:          m.cfg.Threshold,
	}

	if phase == domain.PhaseAccumulating {
		status.EstimatedTimeToGraduation = m.eta(tokenID, st)
	} else {
		var zero time.Duration
		status.EstimatedTimeToGraduation = &zero
	}
	return status, nil
}

func (m *Monitor) derivePhase(tokenID string, st *domain.BondingCurveState) domain.GraduationPhase {
	if st.Graduated {
		return domain.PhaseGraduated
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ts, ok := m.tokens[tokenID]; ok && ts.phase == domain.PhaseReady {
		return domain.PhaseReady
	}
	if st.TotalRaised.GreaterThanOrEqual(m.cfg.Threshold) {
		return domain.PhaseReady
	}
	return domain.PhaseAccumulating
}

// eta projects the remaining raise at the token's recent quote velocity.
// Nil means unknown: no activity source, no trades in the window, or no inflow.
func (m *Monitor) eta(tokenID string, st *domain.BondingCurveState) *time.Duration {
	if m.activity == nil {
		return nil
	}
	avgSize, perMinute, ok := m.activity.Get(tokenID).Velocity(m.now(), m.cfg.VelocityWindow)
	if !ok {
		return nil
	}
	rate := avgSize.Mul(perMinute)
	if !rate.IsPositive() {
		return nil
	}

	remaining := m.cfg.Threshold.Sub(st.TotalRaised)
	seconds := remaining.Mul(sixty).Div(rate)
	if seconds.GreaterThan(maxETASeconds) {
		return nil
	}
	d := time.Duration(seconds.Mul(decimal.NewFromInt(int64(time.Second))).IntPart())
	return &d
}

// Result returns the graduation result of a token, if it graduated through this monitor.
func (m *Monitor) Result(tokenID string) (*domain.GraduationResult, bool) {
	res := m.cachedResult(tokenID)
	return res, res != nil
}

// Phase returns the tracked phase of a token. Untracked tokens are ACCUMULATING.
func (m *Monitor) Phase(tokenID string) domain.GraduationPhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts, ok := m.tokens[tokenID]; ok {
		return ts.phase
	}
	return domain.PhaseAccumulating
}

// Forget drops a retired token's tracking state and stops its watcher.
func (m *Monitor) Forget(tokenID string) {
	m.stopWatcher(tokenID)
	m.mu.Lock()
	delete(m.tokens, tokenID)
	m.mu.Unlock()
}

func (m *Monitor) cachedResult(tokenID string) *domain.GraduationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts, ok := m.tokens[tokenID]; ok && ts.result != nil {
		return copyResult(ts.result)
	}
	return nil
}

func (m *Monitor) stateLocked(tokenID string) *tokenState {
	ts, ok := m.tokens[tokenID]
	if !ok {
		ts = &tokenState{phase: domain.PhaseAccumulating}
		m.tokens[tokenID] = ts
	}
	return ts
}

func copyResult(r *domain.GraduationResult) *domain.GraduationResult {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

func (m *Monitor) log(format string, args ...interface{}) {
	if m.verbose {
		m.logger.Printf("[graduation] "+format, args...)
	}
}
