package session

import (
	"sync"
	"time"

	"fairlaunch/internal/domain"
)

// Registry lazily creates one Session per key. Safe for concurrent use;
// sessions of different keys never contend beyond the map lookup.
type Registry struct {
	mu       sync.RWMutex
	cfg      Config
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for key, or nil if none exists yet.
// A nil *Session answers every statistic with a neutral value.
func (r *Registry) Get(key string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[key]
}

// GetOrCreate returns the session for key, creating it on first use.
func (r *Registry) GetOrCreate(key string) *Session {
	if s := r.Get(key); s != nil {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		return s
	}
	s := New(r.cfg)
	r.sessions[key] = s
	return s
}

// Record appends a fact to the key's session.
func (r *Registry) Record(key string, f domain.TradeFact) {
	r.GetOrCreate(key).Record(f)
}

// Remove drops the session for key.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	delete(r.sessions, key)
	r.mu.Unlock()
}

// Sweep evicts sessions with no writes since now-IdleTTL. Returns evicted count.
func (r *Registry) Sweep(now time.Time) int {
	if r.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-r.cfg.IdleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for key, s := range r.sessions {
		if s.LastWrite().Before(cutoff) {
			delete(r.sessions, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
