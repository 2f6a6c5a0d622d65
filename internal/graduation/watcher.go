package graduation

import (
	"context"
	"errors"
	"time"

	"fairlaunch/internal/domain"
	"fairlaunch/internal/retry"
)

// Watch starts a background re-check of one token, a safety net for funds
// raised outside the trade path. It polls every WatchInterval, backs off
// exponentially up to WatchMaxInterval on errors, triggers graduation when
// AutoGraduate is set, and exits once the token graduates or is retired.
// Returns false if the token is already watched or the monitor is stopped.
func (m *Monitor) Watch(ctx context.Context, tokenID string) bool {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()

	if m.stopped {
		return false
	}
	if _, ok := m.watchers[tokenID]; ok {
		return false
	}

	wctx, cancel := context.WithCancel(ctx)
	w := &watcher{cancel: cancel}
	m.watchers[tokenID] = w

	m.wg.Add(1)
	go m.watch(wctx, tokenID, w)

	m.log("watching %s every %v", tokenID, m.cfg.WatchInterval)
	return true
}

// Unwatch stops the token's watcher. Returns false if it had none.
func (m *Monitor) Unwatch(tokenID string) bool {
	return m.stopWatcher(tokenID)
}

// Watching reports whether the token has a live watcher.
func (m *Monitor) Watching(tokenID string) bool {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	_, ok := m.watchers[tokenID]
	return ok
}

// Stop cancels every watcher and waits for them to exit.
// Later Watch calls are refused.
func (m *Monitor) Stop() {
	m.watchMu.Lock()
	m.stopped = true
	for id, w := range m.watchers {
		w.cancel()
		delete(m.watchers, id)
	}
	m.watchMu.Unlock()

	m.wg.Wait()
}

func (m *Monitor) stopWatcher(tokenID string) bool {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()

	w, ok := m.watchers[tokenID]
	if !ok {
		return false
	}
	w.cancel()
	delete(m.watchers, tokenID)
	return true
}

func (m *Monitor) watch(ctx context.Context, tokenID string, w *watcher) {
	defer m.wg.Done()
	defer func() {
		m.watchMu.Lock()
		if m.watchers[tokenID] == w {
			delete(m.watchers, tokenID)
		}
		m.watchMu.Unlock()
		w.cancel()
	}()

	backoff := retry.NewBackoff(retry.Config{
		InitialDelay: m.cfg.WatchInterval,
		MaxDelay:     m.cfg.WatchMaxInterval,
		Multiplier:   2,
		JitterFactor: 0.1,
	})

	for {
		done, err := m.check(ctx, tokenID)
		if done {
			m.log("stopped watching %s", tokenID)
			return
		}

		delay := m.cfg.WatchInterval
		if err != nil {
			delay = backoff.Next()
			m.logger.Printf("[graduation] watch %s: %v (next check in %v)", tokenID, err, delay)
		} else {
			backoff.Reset()
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// check evaluates the token once. done is true when nothing is left to watch.
func (m *Monitor) check(ctx context.Context, tokenID string) (done bool, err error) {
	if ctx.Err() != nil {
		return true, nil
	}

	phase, err := m.Evaluate(ctx, tokenID)
	if errors.Is(err, domain.ErrTokenNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	switch phase {
	case domain.PhaseGraduated:
		return true, nil
	case domain.PhaseReady:
		if !m.cfg.AutoGraduate {
			return false, nil
		}
		unlock := m.lock(tokenID)
		_, err := m.TriggerGraduation(ctx, tokenID)
		unlock()
		switch {
		case err == nil, errors.Is(err, domain.ErrAlreadyGraduated), errors.Is(err, domain.ErrTokenNotFound):
			return true, nil
		case errors.Is(err, context.Canceled):
			return true, nil
		default:
			return false, err
		}
	default:
		return false, nil
	}
}

func (m *Monitor) lock(tokenID string) func() {
	if m.locks == nil {
		return func() {}
	}
	return m.locks.Lock(tokenID)
}
