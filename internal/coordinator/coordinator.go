// Package coordinator runs trade attempts through the engine.
// It coordinates: validate → assess → price → apply → record → notify
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"fairlaunch/internal/collab"
	"fairlaunch/internal/curve"
	"fairlaunch/internal/domain"
	"fairlaunch/internal/graduation"
	"fairlaunch/internal/keylock"
	"fairlaunch/internal/notify"
	"fairlaunch/internal/observability"
	"fairlaunch/internal/risk"
	"fairlaunch/internal/session"
	"fairlaunch/internal/storage"
)

// Curves is the part of the curve engine the coordinator drives.
// *curve.Engine satisfies it.
type Curves interface {
	Register(ctx context.Context, tokenID string, params domain.CurveParams, createdAt time.Time) (*domain.BondingCurveState, error)
	Retire(ctx context.Context, tokenID string) error
	State(tokenID string) (*domain.BondingCurveState, error)
	Tokens() []string
	Quote(tokenID string, dir domain.Direction, amount decimal.Decimal) (domain.Quote, error)
	Apply(ctx context.Context, tokenID string, dir domain.Direction, amount decimal.Decimal, at time.Time) (domain.Fill, error)
}

var _ Curves = (*curve.Engine)(nil)

// Coordinator executes trade attempts. Attempts on one token are serialized
// from assessment to apply, so risk always sees the exact pre-trade price.
type Coordinator struct {
	curves  Curves
	scorer  *risk.Scorer
	monitor *graduation.Monitor

	users    *session.Registry
	activity *session.Registry

	identity   collab.IdentityProvider
	reputation collab.ReputationStore
	limits     collab.TierLimits

	tradeStore      storage.TradeRecordStore
	assessmentStore storage.AssessmentStore
	eventStore      storage.TradeEventStore
	notifier        notify.Notifier

	locks           *keylock.Map
	callTimeout     time.Duration
	autoGraduate    bool
	watchOnRegister bool
	now             func() time.Time
	logger          *log.Logger
	verbose         bool
}

// Options for creating Coordinator.
type Options struct {
	// Required
	Curves Curves
	Scorer *risk.Scorer

	// Monitor is optional; without it no graduation is tracked.
	Monitor *graduation.Monitor

	// Users holds per-user sessions, Activity per-token sessions.
	// Both are created from session.DefaultConfig when nil.
	Users    *session.Registry
	Activity *session.Registry

	// Collaborators. Nil identity resolves every user to the device tier,
	// nil reputation is neutral, nil limits are uncapped.
	Identity   collab.IdentityProvider
	Reputation collab.ReputationStore
	Limits     collab.TierLimits

	// Stores, all optional
	TradeStore      storage.TradeRecordStore
	AssessmentStore storage.AssessmentStore
	EventStore      storage.TradeEventStore // analytics, best effort

	Notifier notify.Notifier

	// Locks serializes attempts per token. Share it with the monitor so
	// watchers never graduate a token mid-trade.
	Locks *keylock.Map

	CallTimeout     time.Duration // identity and reputation calls, default 2s
	AutoGraduate    bool          // trigger graduation inline once READY
	WatchOnRegister bool          // start a graduation watcher for new tokens

	Now     func() time.Time
	Logger  *log.Logger
	Verbose bool
}

// New creates a new Coordinator.
func New(opts Options) (*Coordinator, error) {
	if opts.Curves == nil {
		return nil, errors.New("coordinator: curves required")
	}
	if opts.Scorer == nil {
		return nil, errors.New("coordinator: scorer required")
	}

	c := &Coordinator{
		curves:          opts.Curves,
		scorer:          opts.Scorer,
		monitor:         opts.Monitor,
		users:           opts.Users,
		activity:        opts.Activity,
		identity:        opts.Identity,
		reputation:      opts.Reputation,
		limits:          opts.Limits,
		tradeStore:      opts.TradeStore,
		assessmentStore: opts.AssessmentStore,
		eventStore:      opts.EventStore,
		notifier:        opts.Notifier,
		locks:           opts.Locks,
		callTimeout:     opts.CallTimeout,
		autoGraduate:    opts.AutoGraduate,
		watchOnRegister: opts.WatchOnRegister,
		now:             opts.Now,
		logger:          opts.Logger,
		verbose:         opts.Verbose,
	}

	if c.users == nil {
		c.users = session.NewRegistry(session.DefaultConfig())
	}
	if c.activity == nil {
		c.activity = session.NewRegistry(session.DefaultConfig())
	}
	if c.notifier == nil {
		c.notifier = notify.Nop{}
	}
	if c.locks == nil {
		c.locks = keylock.New()
	}
	if c.callTimeout <= 0 {
		c.callTimeout = 2 * time.Second
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	return c, nil
}

// Register creates a token's curve and, if configured, starts its graduation watcher.
func (c *Coordinator) Register(ctx context.Context, tokenID string, params domain.CurveParams) (*domain.BondingCurveState, error) {
	unlock := c.locks.Lock(tokenID)
	defer unlock()

	st, err := c.curves.Register(ctx, tokenID, params, c.now().UTC())
	if err != nil {
		return nil, err
	}
	observability.UpdateTokensRegistered(len(c.curves.Tokens()))
	if c.monitor != nil && c.watchOnRegister {
		c.monitor.Watch(context.Background(), tokenID)
	}
	c.log("registered token %s", tokenID)
	return st, nil
}

// Retire removes a token and drops its activity and graduation tracking.
func (c *Coordinator) Retire(ctx context.Context, tokenID string) error {
	unlock := c.locks.Lock(tokenID)
	defer unlock()

	if err := c.curves.Retire(ctx, tokenID); err != nil {
		return err
	}
	c.activity.Remove(tokenID)
	observability.UpdateTokensRegistered(len(c.curves.Tokens()))
	if c.monitor != nil {
		c.monitor.Forget(tokenID)
	}
	c.log("retired token %s", tokenID)
	return nil
}

// Quote simulates a trade without mutating state.
func (c *Coordinator) Quote(tokenID string, dir domain.Direction, amount decimal.Decimal) (domain.Quote, error) {
	return c.curves.Quote(tokenID, dir, amount)
}

// Status returns the token's graduation status.
func (c *Coordinator) Status(tokenID string) (domain.GraduationStatus, error) {
	if c.monitor == nil {
		return domain.GraduationStatus{}, errors.New("graduation monitor not configured")
	}
	return c.monitor.Status(tokenID)
}

// Graduate triggers graduation of a READY token, serialized with its trades.
func (c *Coordinator) Graduate(ctx context.Context, tokenID string) (*domain.GraduationResult, error) {
	if c.monitor == nil {
		return nil, errors.New("graduation monitor not configured")
	}
	unlock := c.locks.Lock(tokenID)
	defer unlock()
	return c.monitor.TriggerGraduation(ctx, tokenID)
}

// SweepSessions evicts idle user and token sessions. Returns the evicted count.
func (c *Coordinator) SweepSessions(now time.Time) int {
	n := c.users.Sweep(now) + c.activity.Sweep(now)
	observability.RecordSessionsSwept(n)
	if n > 0 {
		c.log("swept %d idle sessions", n)
	}
	return n
}

func (c *Coordinator) log(format string, args ...interface{}) {
	if c.verbose {
		c.logger.Printf("[coordinator] "+format, args...)
	}
}

// callCollaborator runs fn under the collaborator timeout and classifies its error.
func (c *Coordinator) callCollaborator(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	start := time.Now()
	err := collab.Classify(callCtx, fn(callCtx))
	observability.RecordCollaboratorCall(name, time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
