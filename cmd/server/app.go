package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"

	"fairlaunch/internal/collab"
	"fairlaunch/internal/config"
	"fairlaunch/internal/coordinator"
	"fairlaunch/internal/curve"
	"fairlaunch/internal/domain"
	"fairlaunch/internal/graduation"
	"fairlaunch/internal/keylock"
	"fairlaunch/internal/liquidity"
	"fairlaunch/internal/notify"
	"fairlaunch/internal/observability"
	"fairlaunch/internal/risk"
	"fairlaunch/internal/session"
)

// app holds every wired component of the service.
type app struct {
	cfg      *config.Config
	stores   *allStores
	engine   *curve.Engine
	monitor  *graduation.Monitor
	coord    *coordinator.Coordinator
	hub      *notify.Hub
	stub     *liquidity.Stub
	identity *collab.StaticIdentity
	logger   *log.Logger
}

// newApp wires the components over the given stores and restores persisted curves.
func newApp(ctx context.Context, cfg *config.Config, stores *allStores, logger *log.Logger) (*app, error) {
	verbose := cfg.Logging.Verbose
	componentLogger := log.New(logger.Writer(), "", log.LstdFlags)

	limits, err := cfg.Limits()
	if err != nil {
		return nil, err
	}

	engine := curve.New(curve.Options{
		Config:      cfg.Curve.Config,
		Snapshotter: stores.curveStateStore,
		Logger:      componentLogger,
		Verbose:     verbose,
	})

	hub := notify.NewHub(notify.HubOptions{
		CheckOrigin: originChecker(cfg.Server.AllowedOrigins),
		Logger:      componentLogger,
		Verbose:     verbose,
	})
	notifier := notify.Multi{hub, notify.NewLogNotifier(componentLogger)}

	stub := liquidity.NewStub(liquidity.StubOptions{
		ProgramID: cfg.Liquidity.ProgramID,
		Latency:   cfg.Liquidity.Latency,
		Logger:    componentLogger,
		Verbose:   verbose,
	})

	locks := keylock.New()
	users := session.NewRegistry(cfg.Session)
	activity := session.NewRegistry(cfg.Session)

	monitor, err := graduation.New(graduation.Options{
		Config:    cfg.Graduation,
		Curves:    engine,
		Liquidity: stub,
		Activity:  activity,
		Store:     stores.graduationStore,
		Notifier:  notifier,
		Locks:     locks,
		Logger:    componentLogger,
		Verbose:   verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("graduation monitor: %w", err)
	}

	identity := collab.NewStaticIdentity(domain.VerificationTier(cfg.Coordinator.DefaultTier))
	reputation := collab.NewMemoryReputation(collab.ReputationOptions{
		DefaultScore: cfg.Coordinator.DefaultReputation,
		Assessments:  stores.assessmentStore,
	})

	coord, err := coordinator.New(coordinator.Options{
		Curves:          engine,
		Scorer:          risk.NewScorer(cfg.Risk),
		Monitor:         monitor,
		Users:           users,
		Activity:        activity,
		Identity:        identity,
		Reputation:      reputation,
		Limits:          limits,
		TradeStore:      stores.tradeStore,
		AssessmentStore: stores.assessmentStore,
		EventStore:      stores.eventStore,
		Notifier:        notifier,
		Locks:           locks,
		CallTimeout:     cfg.Coordinator.CallTimeout,
		AutoGraduate:    cfg.Graduation.AutoGraduate,
		WatchOnRegister: cfg.Coordinator.WatchOnRegister,
		Logger:          componentLogger,
		Verbose:         verbose,
	})
	if err != nil {
		monitor.Stop()
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	a := &app{
		cfg:      cfg,
		stores:   stores,
		engine:   engine,
		monitor:  monitor,
		coord:    coord,
		hub:      hub,
		stub:     stub,
		identity: identity,
		logger:   logger,
	}
	if err := a.restore(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// restore loads persisted curve states into the engine, re-derives their
// graduation phase and resumes watchers for tokens still accumulating.
func (a *app) restore(ctx context.Context) error {
	states, err := a.stores.curveStateStore.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load curve states: %w", err)
	}

	for _, st := range states {
		if err := a.engine.Restore(st); err != nil {
			return fmt.Errorf("restore %s: %w", st.TokenID, err)
		}
		phase, err := a.monitor.Evaluate(ctx, st.TokenID)
		if err != nil {
			return fmt.Errorf("evaluate %s: %w", st.TokenID, err)
		}
		if phase != domain.PhaseGraduated && a.cfg.Coordinator.WatchOnRegister {
			a.monitor.Watch(context.Background(), st.TokenID)
		}
		price, _ := st.CurrentPrice.Float64()
		observability.UpdateCurvePrice(st.TokenID, price)
	}

	observability.UpdateTokensRegistered(len(states))
	if len(states) > 0 {
		a.logger.Printf("Restored %d tokens", len(states))
	}
	return nil
}

func (a *app) close() {
	a.monitor.Stop()
	a.hub.Close()
}

// originChecker allows any origin when the list is empty, otherwise only
// requests whose Origin host is listed.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[u.Host]
		return ok
	}
}
