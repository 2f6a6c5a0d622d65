package graduation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairlaunch/internal/curve"
	"fairlaunch/internal/domain"
	"fairlaunch/internal/keylock"
	"fairlaunch/internal/liquidity"
	"fairlaunch/internal/notify"
	"fairlaunch/internal/retry"
	"fairlaunch/internal/session"
	"fairlaunch/internal/storage"
	"fairlaunch/internal/storage/memory"
)

var now = time.Date(2026, 7, 1, 15, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Threshold = dec("100")
	cfg.CallTimeout = 50 * time.Millisecond
	cfg.Retry = retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	cfg.WatchInterval = 5 * time.Millisecond
	cfg.WatchMaxInterval = 20 * time.Millisecond
	return cfg
}

type fixture struct {
	engine   *curve.Engine
	stub     *liquidity.Stub
	store    *memory.GraduationStore
	activity *session.Registry
	events   *notify.Recorder
	monitor  *Monitor
}

func newFixture(t *testing.T, cfg Config, liq liquidity.Collaborator) *fixture {
	t.Helper()

	f := &fixture{
		engine:   curve.New(curve.Options{Config: curve.DefaultConfig()}),
		stub:     liquidity.NewStub(liquidity.StubOptions{}),
		store:    memory.NewGraduationStore(),
		activity: session.NewRegistry(session.DefaultConfig()),
		events:   &notify.Recorder{},
	}
	if liq == nil {
		liq = f.stub
	}

	_, err := f.engine.Register(context.Background(), "tok", domain.CurveParams{
		InitialPrice:   dec("0.0001"),
		PriceIncrement: dec("0.000000001"),
		MaxPrice:       dec("0.01"),
	}, now)
	require.NoError(t, err)

	f.monitor, err = New(Options{
		Config:    cfg,
		Curves:    f.engine,
		Liquidity: liq,
		Activity:  f.activity,
		Store:     f.store,
		Notifier:  f.events,
		Locks:     keylock.New(),
		Now:       func() time.Time { return now },
	})
	require.NoError(t, err)
	t.Cleanup(f.monitor.Stop)
	return f
}

func (f *fixture) buy(t *testing.T, amount string) {
	t.Helper()
	_, err := f.engine.Apply(context.Background(), "tok", domain.DirectionBuy, dec(amount), now)
	require.NoError(t, err)
}

// flakyLiquidity fails the first n calls with err, then delegates.
type flakyLiquidity struct {
	next  liquidity.Collaborator
	fails int32
	err   error
	calls atomic.Int32
}

func (f *flakyLiquidity) CreatePoolAndLock(ctx context.Context, tokenID string, q, tk decimal.Decimal) (string, error) {
	if f.calls.Add(1) <= f.fails {
		return "", f.err
	}
	return f.next.CreatePoolAndLock(ctx, tokenID, q, tk)
}

// hangingLiquidity blocks until the call context is done.
type hangingLiquidity struct{}

func (hangingLiquidity) CreatePoolAndLock(ctx context.Context, _ string, _, _ decimal.Decimal) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestMonitor_ThresholdReachedIsReadyNotGraduated(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()

	f.buy(t, "60")
	phase, err := f.monitor.Evaluate(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseAccumulating, phase)

	f.buy(t, "40")
	phase, err = f.monitor.Evaluate(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseReady, phase)

	status, err := f.monitor.Status("tok")
	require.NoError(t, err)
	assert.True(t, status.ProgressPercentage.Equal(dec("100")), "progress %s", status.ProgressPercentage)
	assert.False(t, status.IsGraduated)
	assert.Equal(t, domain.PhaseReady, status.Phase)
	require.NotNil(t, status.EstimatedTimeToGraduation)
	assert.Zero(t, *status.EstimatedTimeToGraduation)

	st, _ := f.engine.State("tok")
	assert.False(t, st.Graduated, "crossing the threshold alone does not graduate")
	assert.Zero(t, f.stub.Calls())

	_, err = f.monitor.Evaluate(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 1, f.events.Count(domain.EventGraduationReady), "ready is emitted once")
}

func TestMonitor_TriggerBelowThreshold(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	f.buy(t, "50")
	_, err := f.monitor.TriggerGraduation(context.Background(), "tok")
	assert.ErrorIs(t, err, domain.ErrNotReady)

	status, err := f.monitor.Status("tok")
	require.NoError(t, err)
	assert.True(t, status.ProgressPercentage.Equal(dec("50")))
	assert.Equal(t, domain.PhaseAccumulating, status.Phase)
	assert.Zero(t, f.stub.Calls())
}

func TestStatus_ProgressJustBelowThreshold(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	f.buy(t, "99.999")
	phase, err := f.monitor.Evaluate(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, domain.PhaseAccumulating, phase)

	status, err := f.monitor.Status("tok")
	require.NoError(t, err)
	assert.True(t, status.ProgressPercentage.Equal(dec("99.99")), "progress %s", status.ProgressPercentage)
	assert.True(t, status.ProgressPercentage.LessThan(dec("100")))
}

func TestMonitor_GraduatesExactlyOnce(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()
	f.buy(t, "120")

	const callers = 10
	results := make([]*domain.GraduationResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.monitor.TriggerGraduation(ctx, "tok")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].GraduationID, results[i].GraduationID)
		assert.Equal(t, results[0].PoolRef, results[i].PoolRef)
	}
	assert.Equal(t, 1, f.stub.Calls())
	assert.Equal(t, 1, f.stub.Pools())

	again, err := f.monitor.TriggerGraduation(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, results[0], again)
	assert.Equal(t, 1, f.stub.Calls(), "graduated token never reaches the collaborator again")

	st, _ := f.engine.State("tok")
	assert.True(t, st.Graduated)
	_, err = f.engine.Apply(ctx, "tok", domain.DirectionBuy, dec("1"), now)
	assert.ErrorIs(t, err, domain.ErrAlreadyGraduated)

	stored, err := f.store.GetByTokenID(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, results[0].GraduationID, stored.GraduationID)

	assert.Equal(t, 1, f.events.Count(domain.EventGraduationCompleted))
	assert.Equal(t, domain.PhaseGraduated, f.monitor.Phase("tok"))

	status, _ := f.monitor.Status("tok")
	assert.True(t, status.IsGraduated)
}

func TestMonitor_SplitsAmounts(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	f.buy(t, "100")

	res, err := f.monitor.TriggerGraduation(context.Background(), "tok")
	require.NoError(t, err)

	st, _ := f.engine.State("tok")
	assert.True(t, res.QuoteAmount.Equal(dec("80")), "80%% of 100 raised, got %s", res.QuoteAmount)
	assert.True(t, res.TokenAmount.Equal(st.TotalSupply.Mul(dec("0.2"))))
	assert.True(t, res.TotalRaised.Equal(dec("100")))

	lock, ok := f.stub.Lock("tok")
	require.True(t, ok)
	assert.Equal(t, res.PoolRef, lock.PoolRef)
	assert.True(t, lock.QuoteAmount.Equal(res.QuoteAmount))
}

func TestMonitor_FailureStaysReadyThenRetrySucceeds(t *testing.T) {
	stub := liquidity.NewStub(liquidity.StubOptions{})
	flaky := &flakyLiquidity{next: stub, fails: 3, err: errors.New("rpc unavailable")}
	f := newFixture(t, testConfig(), flaky)
	ctx := context.Background()
	f.buy(t, "100")

	_, err := f.monitor.TriggerGraduation(ctx, "tok")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCollaboratorFailure)
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, int32(2), flaky.calls.Load(), "retried up to MaxAttempts")

	assert.Equal(t, domain.PhaseReady, f.monitor.Phase("tok"))
	st, _ := f.engine.State("tok")
	assert.False(t, st.Graduated)
	_, err = f.store.GetByTokenID(ctx, "tok")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Zero(t, f.events.Count(domain.EventGraduationCompleted))

	res, err := f.monitor.TriggerGraduation(ctx, "tok")
	require.NoError(t, err)
	assert.NotEmpty(t, res.PoolRef)
	assert.Equal(t, int32(4), flaky.calls.Load())
	assert.Equal(t, 1, stub.Pools())
	assert.Equal(t, domain.PhaseGraduated, f.monitor.Phase("tok"))
}

func TestMonitor_CollaboratorTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.CallTimeout = 10 * time.Millisecond
	cfg.Retry.MaxAttempts = 1
	f := newFixture(t, cfg, hangingLiquidity{})
	f.buy(t, "100")

	start := time.Now()
	_, err := f.monitor.TriggerGraduation(context.Background(), "tok")
	assert.ErrorIs(t, err, domain.ErrCollaboratorTimeout)
	assert.Less(t, time.Since(start), time.Second, "call must not hang")
	assert.Equal(t, domain.PhaseReady, f.monitor.Phase("tok"))
}

func TestMonitor_AdoptsStoredResult(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()

	stored := &domain.GraduationResult{
		GraduationID: "g-1",
		TokenID:      "tok",
		PoolRef:      "pool-1",
		QuoteAmount:  dec("80"),
		TokenAmount:  dec("1"),
		TotalRaised:  dec("100"),
		TotalSupply:  dec("5"),
		GraduatedAt:  now,
	}
	require.NoError(t, f.store.Insert(ctx, stored))

	res, err := f.monitor.TriggerGraduation(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "pool-1", res.PoolRef)
	assert.Zero(t, f.stub.Calls())

	st, _ := f.engine.State("tok")
	assert.True(t, st.Graduated)
}

func TestStatus_ETA(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	f.buy(t, "50")

	status, err := f.monitor.Status("tok")
	require.NoError(t, err)
	assert.Nil(t, status.EstimatedTimeToGraduation, "no recent activity means unknown")

	// 5 trades of 2 in a 10 minute window: 1 quote per minute, 50 to go.
	for i := 1; i <= 5; i++ {
		f.activity.Record("tok", domain.TradeFact{
			Amount:    dec("2"),
			Price:     dec("0.0001"),
			Direction: domain.DirectionBuy,
			Timestamp: now.Add(-time.Duration(i) * time.Minute),
		})
	}

	status, err = f.monitor.Status("tok")
	require.NoError(t, err)
	require.NotNil(t, status.EstimatedTimeToGraduation)
	assert.Equal(t, 50*time.Minute, *status.EstimatedTimeToGraduation)
}

func TestStatus_UnknownToken(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	_, err := f.monitor.Status("nope")
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestWatcher_GraduatesAndStops(t *testing.T) {
	cfg := testConfig()
	cfg.AutoGraduate = true
	f := newFixture(t, cfg, nil)
	f.buy(t, "100")

	require.True(t, f.monitor.Watch(context.Background(), "tok"))
	assert.False(t, f.monitor.Watch(context.Background(), "tok"), "one watcher per token")

	require.Eventually(t, func() bool {
		st, _ := f.engine.State("tok")
		return st.Graduated && !f.monitor.Watching("tok")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.stub.Pools())
}

func TestWatcher_BacksOffOnFailureThenGraduates(t *testing.T) {
	cfg := testConfig()
	cfg.AutoGraduate = true
	cfg.Retry.MaxAttempts = 1
	stub := liquidity.NewStub(liquidity.StubOptions{})
	flaky := &flakyLiquidity{next: stub, fails: 2, err: errors.New("busy")}
	f := newFixture(t, cfg, flaky)
	f.buy(t, "100")

	require.True(t, f.monitor.Watch(context.Background(), "tok"))
	require.Eventually(t, func() bool {
		return f.monitor.Phase("tok") == domain.PhaseGraduated
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), flaky.calls.Load())
}

func TestWatcher_StopsWhenTokenRetired(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	require.True(t, f.monitor.Watch(context.Background(), "tok"))
	require.NoError(t, f.engine.Retire(context.Background(), "tok"))

	require.Eventually(t, func() bool { return !f.monitor.Watching("tok") }, 2*time.Second, 5*time.Millisecond)
}

func TestWatcher_UnwatchAndStop(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()

	require.True(t, f.monitor.Watch(ctx, "tok"))
	assert.True(t, f.monitor.Unwatch("tok"))
	assert.False(t, f.monitor.Unwatch("tok"))

	require.True(t, f.monitor.Watch(ctx, "tok"))
	f.monitor.Stop()
	assert.False(t, f.monitor.Watching("tok"))
	assert.False(t, f.monitor.Watch(ctx, "tok"), "stopped monitor refuses new watchers")
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(domain.PhaseAccumulating, domain.PhaseReady))
	assert.True(t, CanTransition(domain.PhaseReady, domain.PhaseGraduated))
	assert.False(t, CanTransition(domain.PhaseAccumulating, domain.PhaseGraduated))
	assert.False(t, CanTransition(domain.PhaseReady, domain.PhaseAccumulating))
	assert.False(t, CanTransition(domain.PhaseGraduated, domain.PhaseReady))
	assert.NotEqual(t, PhaseInfo(domain.PhaseReady), PhaseInfo("bogus"))
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.QuoteSplitPct = dec("1.5")
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Threshold = decimal.Zero
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.WatchMaxInterval = time.Second
	assert.Error(t, cfg.Validate())

	_, err := New(Options{Config: DefaultConfig()})
	assert.Error(t, err)
}
