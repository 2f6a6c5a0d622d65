// Package session keeps bounded rolling windows of recent trade facts,
// one window per user (risk velocity checks) or per token (price averages, graduation ETA).
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fairlaunch/internal/domain"
)

// Config bounds a session's memory.
type Config struct {
	// Lookback is the window statistics are computed over. Older facts are ignored
	// and pruned on the next write.
	Lookback time.Duration `yaml:"lookback"`
	// MaxFacts caps the number of retained facts; the oldest are dropped first.
	MaxFacts int `yaml:"max_facts"`
	// IdleTTL is how long a session may go without writes before Sweep evicts it.
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

// DefaultConfig returns default session bounds.
func DefaultConfig() Config {
	return Config{
		Lookback: 1 * time.Hour,
		MaxFacts: 512,
		IdleTTL:  24 * time.Hour,
	}
}

// Session is an append-only ordered window of trade facts.
// All read methods are safe on a nil *Session and return neutral values,
// so a first trade is never compared against an empty baseline.
type Session struct {
	mu        sync.RWMutex
	cfg       Config
	facts     []domain.TradeFact // ordered by Timestamp ASC
	lastWrite time.Time
}

// New creates an empty session.
func New(cfg Config) *Session {
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultConfig().Lookback
	}
	if cfg.MaxFacts <= 0 {
		cfg.MaxFacts = DefaultConfig().MaxFacts
	}
	return &Session{cfg: cfg}
}

// Record appends a fact, keeping timestamp order, then prunes by age and size.
func (s *Session) Record(f domain.TradeFact) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.facts = append(s.facts, f)
	if n := len(s.facts); n > 1 && f.Timestamp.Before(s.facts[n-2].Timestamp) {
		sort.SliceStable(s.facts, func(i, j int) bool {
			return s.facts[i].Timestamp.Before(s.facts[j].Timestamp)
		})
	}
	if f.Timestamp.After(s.lastWrite) {
		s.lastWrite = f.Timestamp
	}
	s.pruneLocked()
}

// pruneLocked drops facts outside the lookback of the newest fact and enforces MaxFacts.
func (s *Session) pruneLocked() {
	if len(s.facts) == 0 {
		return
	}
	cutoff := s.facts[len(s.facts)-1].Timestamp.Add(-s.cfg.Lookback)
	drop := sort.Search(len(s.facts), func(i int) bool {
		return s.facts[i].Timestamp.After(cutoff)
	})
	if over := len(s.facts) - drop - s.cfg.MaxFacts; over > 0 {
		drop += over
	}
	if drop > 0 {
		s.facts = append(s.facts[:0:0], s.facts[drop:]...)
	}
}

// RecentFacts returns copies of the facts in (now-window, now].
func (s *Session) RecentFacts(now time.Time, window time.Duration) []domain.TradeFact {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.windowLocked(now, window)
}

func (s *Session) windowLocked(now time.Time, window time.Duration) []domain.TradeFact {
	if window <= 0 || window > s.cfg.Lookback {
		window = s.cfg.Lookback
	}
	cutoff := now.Add(-window)

	var out []domain.TradeFact
	for _, f := range s.facts {
		if f.Timestamp.After(cutoff) && !f.Timestamp.After(now) {
			out = append(out, f)
		}
	}
	return out
}

// Count returns the number of facts in (now-window, now].
func (s *Session) Count(now time.Time, window time.Duration) int {
	return len(s.RecentFacts(now, window))
}

// AverageTradeSize returns the mean amount over the lookback, zero if empty.
func (s *Session) AverageTradeSize(now time.Time) decimal.Decimal {
	facts := s.RecentFacts(now, 0)
	if len(facts) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, f := range facts {
		sum = sum.Add(f.Amount)
	}
	return sum.Div(decimal.NewFromInt(int64(len(facts))))
}

// AveragePrice returns the mean execution price over the lookback, zero if empty.
func (s *Session) AveragePrice(now time.Time) decimal.Decimal {
	facts := s.RecentFacts(now, 0)
	if len(facts) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, f := range facts {
		sum = sum.Add(f.Price)
	}
	return sum.Div(decimal.NewFromInt(int64(len(facts))))
}

// DirectionCounts returns buy and sell counts over the lookback.
func (s *Session) DirectionCounts(now time.Time) (buys, sells int) {
	for _, f := range s.RecentFacts(now, 0) {
		if f.Direction == domain.DirectionSell {
			sells++
		} else {
			buys++
		}
	}
	return buys, sells
}

// FlaggedCount returns how many recent facts were flagged suspicious.
func (s *Session) FlaggedCount(now time.Time) int {
	n := 0
	for _, f := range s.RecentFacts(now, 0) {
		if f.Flagged {
			n++
		}
	}
	return n
}

// Velocity returns the average trade size and trades per minute within window.
// Windows longer than the lookback are clamped to it, rate included.
// ok is false when there is no activity in the window.
func (s *Session) Velocity(now time.Time, window time.Duration) (avgSize, perMinute decimal.Decimal, ok bool) {
	if window <= 0 {
		return decimal.Zero, decimal.Zero, false
	}
	facts := s.RecentFacts(now, window)
	if len(facts) == 0 {
		return decimal.Zero, decimal.Zero, false
	}
	if window > s.cfg.Lookback {
		window = s.cfg.Lookback
	}
	sum := decimal.Zero
	for _, f := range facts {
		sum = sum.Add(f.Amount)
	}
	n := decimal.NewFromInt(int64(len(facts)))
	minutes := decimal.NewFromFloat(window.Minutes())
	return sum.Div(n), n.Div(minutes), true
}

// LastWrite returns the timestamp of the newest recorded fact.
func (s *Session) LastWrite() time.Time {
	if s == nil {
		return time.Time{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastWrite
}

// Len returns the number of retained facts.
func (s *Session) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts)
}
